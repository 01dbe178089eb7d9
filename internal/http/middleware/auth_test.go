package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/service"
)

func newAuthTestRouter(tokens *service.TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(tokens))
	r.GET("/protected", func(c *gin.Context) {
		orgID, _ := c.Get(ContextOrgIDKey)
		c.JSON(http.StatusOK, gin.H{"org_id": orgID})
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokens := service.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	user := &models.User{ID: uuid.New(), OrgID: uuid.New(), Role: models.UserRoleOwner}

	pair, _, _, err := tokens.GeneratePair(user)
	require.NoError(t, err)

	r := newAuthTestRouter(tokens)
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.OrgID.String())
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	tokens := service.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)

	r := newAuthTestRouter(tokens)
	req, _ := http.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ForeignSignature(t *testing.T) {
	tokens := service.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	foreign := service.NewTokenManager("другой-секрет", "refresh-secret", 15*time.Minute, time.Hour)

	pair, _, _, err := foreign.GeneratePair(&models.User{ID: uuid.New(), OrgID: uuid.New(), Role: models.UserRoleOwner})
	require.NoError(t, err)

	r := newAuthTestRouter(tokens)
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireManager(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		role string
		want int
	}{
		{models.UserRoleOwner, http.StatusOK},
		{models.UserRoleAdmin, http.StatusOK},
		{models.UserRoleMember, http.StatusForbidden},
		{"", http.StatusForbidden},
	}

	for _, tc := range cases {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if tc.role != "" {
				c.Set(ContextRoleKey, tc.role)
			}
		}, RequireManager())
		r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

		req, _ := http.NewRequest("GET", "/admin", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, tc.want, w.Code, "роль %q", tc.role)
	}
}
