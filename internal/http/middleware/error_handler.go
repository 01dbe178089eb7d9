package middleware

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/repository/common"
)

// Классы ошибок PostgreSQL, которые переводятся в клиентские статусы.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// ErrorHandler переводит ошибки, сложенные хендлерами через c.Error,
// в единый JSON-ответ: {"error": сообщение, "code": код}. Хендлеры
// сами ответ об ошибке не пишут.
func ErrorHandler(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status, code, message := mapError(err, production)

		if status >= http.StatusInternalServerError {
			logger.WithComponent("http").WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Запрос завершился ошибкой")
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(status, gin.H{"error": message, "code": code})
	}
}

// mapError сводит ошибку к статусу, коду и сообщению. Порядок важен:
// сервисы отдают AppError, всё остальное — сырые ошибки хранилища.
func mapError(err error, production bool) (int, apperror.ErrorCode, string) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, appErr.Code, appErr.Message
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return http.StatusConflict, apperror.ErrCodeConflict, "запись с такими данными уже существует"
		case pqForeignKeyViolation:
			return http.StatusBadRequest, apperror.ErrCodeBadRequest, "ссылка на несуществующую запись"
		}
	}

	if errors.Is(err, sql.ErrNoRows) || isRepoNotFound(err) {
		return http.StatusNotFound, apperror.ErrCodeNotFound, "ресурс не найден"
	}

	if errors.Is(err, common.ErrAlreadyExists) {
		return http.StatusConflict, apperror.ErrCodeConflict, "запись с такими данными уже существует"
	}

	message := "внутренняя ошибка сервера"
	if !production {
		message = err.Error()
	}
	return http.StatusInternalServerError, apperror.ErrCodeInternal, message
}

// notFoundSentinels перечисляет сторожевые ошибки "не найдено" всех репозиториев.
// Сервисы обычно сводят их к AppError, но ошибки, дошедшие сюда в сыром
// виде, не должны превращаться в 500.
var notFoundSentinels = []error{
	common.ErrNotFound,
	repository.ErrUserNotFound,
	repository.ErrSessionNotFound,
	repository.ErrOrganizationNotFound,
	repository.ErrClientNotFound,
	repository.ErrProjectNotFound,
	repository.ErrApprovalNotFound,
	repository.ErrFileNotFound,
	repository.ErrNotificationNotFound,
	repository.ErrEmailTemplateNotFound,
	repository.ErrIntegrationNotFound,
	repository.ErrCsrfTokenNotFound,
}

func isRepoNotFound(err error) bool {
	for _, sentinel := range notFoundSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
