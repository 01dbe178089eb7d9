package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey = "userID"
	ContextOrgIDKey  = "orgID"
	ContextRoleKey   = "role"
)

// AuthMiddleware проверяет JWT access токен и кладёт в контекст
// пользователя, его организацию и роль. Организация берётся только из
// токена: параметрами запроса её подменить нельзя.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			abortUnauthorized(c, "требуется авторизация")
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		claims, err := tokens.ParseAccess(raw)
		if err != nil || claims.UserID == uuid.Nil || claims.OrgID == uuid.Nil {
			abortUnauthorized(c, "токен невалиден")
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextOrgIDKey, claims.OrgID)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireManager пропускает только владельца и администраторов.
// Ставится после AuthMiddleware на управляющие маршруты.
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextRoleKey)
		r, _ := role.(string)
		if r != models.UserRoleOwner && r != models.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "недостаточно прав",
				"code":  apperror.ErrCodeForbidden,
			})
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"code":  apperror.ErrCodeUnauthorized,
	})
}
