package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeApprovalClosed     ErrorCode = "APPROVAL_CLOSED"
	ErrCodeApprovalExpired    ErrorCode = "APPROVAL_EXPIRED"
	ErrCodeResubmitNotAllowed ErrorCode = "RESUBMIT_NOT_ALLOWED"
	ErrCodeCSRF               ErrorCode = "CSRF_INVALID"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeCSRF:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeApprovalClosed, ErrCodeResubmitNotAllowed:
		return http.StatusConflict
	case ErrCodeApprovalExpired:
		return http.StatusGone
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

// CodeOf возвращает код ошибки, если это AppError, иначе INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

var (
	ErrApprovalNotFound     = New(ErrCodeNotFound, "согласование не найдено")
	ErrProjectNotFound      = New(ErrCodeNotFound, "проект не найден")
	ErrClientNotFound       = New(ErrCodeNotFound, "клиент не найден")
	ErrOrganizationNotFound = New(ErrCodeNotFound, "организация не найдена")
	ErrUnauthorized         = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden            = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials   = New(ErrCodeUnauthorized, "неверные учетные данные")
	ErrApprovalClosed       = New(ErrCodeApprovalClosed, "по согласованию уже дан ответ")
	ErrApprovalExpired      = New(ErrCodeApprovalExpired, "срок действия ссылки на согласование истёк")
	ErrResubmitNotAllowed   = New(ErrCodeResubmitNotAllowed, "повторная отправка возможна только после запроса правок")
	ErrCSRFInvalid          = New(ErrCodeCSRF, "CSRF токен невалиден или истёк")
)
