// Package common содержит разделяемые помощники HTTP-хэндлеров: извлечение
// контекста авторизации, разбор параметров и передача ошибок в
// error-middleware.
package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/http/middleware"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/service"
)

// Error передаёт ошибку в error-middleware и прерывает цепочку.
// Хэндлеры не форматируют ответы об ошибках сами: формат единый
// и собирается в одном месте.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// CurrentUserID извлекает идентификатор пользователя из контекста.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, ok := raw.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// CurrentOrgID извлекает организацию пользователя из контекста.
func CurrentOrgID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextOrgIDKey)
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	orgID, ok := raw.(uuid.UUID)
	if !ok || orgID == uuid.Nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return orgID, nil
}

// CurrentUserRole извлекает роль пользователя из контекста.
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", apperror.ErrUnauthorized
	}

	role, ok := raw.(string)
	if !ok {
		return "", apperror.ErrUnauthorized
	}

	return role, nil
}

// CurrentActor собирает действующее лицо для сервисного слоя:
// пользователь, его организация и IP запроса для журнала аудита.
func CurrentActor(c *gin.Context) (service.Actor, error) {
	userID, err := CurrentUserID(c)
	if err != nil {
		return service.Actor{}, err
	}

	orgID, err := CurrentOrgID(c)
	if err != nil {
		return service.Actor{}, err
	}

	return service.Actor{UserID: userID, OrgID: orgID, IP: c.ClientIP()}, nil
}

// ParseUUIDParam разбирает UUID из параметра маршрута.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.ErrCodeBadRequest, "неверный формат идентификатора "+name)
	}

	return parsed, nil
}

// BindJSON разбирает тело запроса. Ошибка разбора отдаётся клиенту
// как ошибка валидации, детали синтаксиса JSON наружу не уходят.
func BindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "некорректное тело запроса")
	}
	return nil
}

// ParseIntQuery возвращает целочисленный query-параметр или дефолт.
func ParseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}

// Pagination разбирает limit и offset с разумными границами.
func Pagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset = ParseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
