package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

func serveWithError(t *testing.T, production bool, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandler(production))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(err)
		c.Abort()
	})

	req, _ := http.NewRequest("GET", "/fail", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandler_AppError(t *testing.T) {
	w := serveWithError(t, false, apperror.ErrApprovalExpired)

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "APPROVAL_EXPIRED")
}

func TestErrorHandler_RepoSentinel(t *testing.T) {
	// Сырая ошибка хранилища, не обёрнутая сервисом, не должна
	// превращаться в 500.
	w := serveWithError(t, false, repository.ErrClientNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestErrorHandler_UnknownError(t *testing.T) {
	w := serveWithError(t, false, errors.New("что-то сломалось внутри"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "что-то сломалось внутри")
}

func TestErrorHandler_UnknownErrorInProduction(t *testing.T) {
	w := serveWithError(t, true, errors.New("секретные детали бэкенда"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "секретные детали")
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
