package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/ids"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// CsrfStore описывает хранилище CSRF-токенов.
type CsrfStore interface {
	Create(ctx context.Context, token *models.CsrfToken) error
	GetByToken(ctx context.Context, token string) (*models.CsrfToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// CsrfService выдаёт и проверяет CSRF-токены портала по схеме
// double-submit: значение приходит и в cookie, и в заголовке, а сервер
// дополнительно сверяет его с выданными.
type CsrfService struct {
	store CsrfStore
	ttl   time.Duration
}

// NewCsrfService создаёт сервис CSRF-токенов.
func NewCsrfService(store CsrfStore, ttl time.Duration) *CsrfService {
	return &CsrfService{store: store, ttl: ttl}
}

// TTL возвращает срок жизни токена.
func (s *CsrfService) TTL() time.Duration {
	return s.ttl
}

// Issue выдаёт токен для согласования.
func (s *CsrfService) Issue(ctx context.Context, approvalID uuid.UUID) (*models.CsrfToken, error) {
	token := &models.CsrfToken{
		ApprovalID: approvalID,
		Token:      ids.NewToken(),
		ExpiresAt:  time.Now().UTC().Add(s.ttl),
	}

	if err := s.store.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("csrf service: issue %w", err)
	}

	return token, nil
}

// Validate проверяет пару заголовок+cookie против выданных токенов.
// Любое расхождение сводится к одной ошибке без уточнения причины.
func (s *CsrfService) Validate(ctx context.Context, headerToken, cookieToken string, approvalID uuid.UUID) error {
	if headerToken == "" || cookieToken == "" || headerToken != cookieToken {
		return apperror.ErrCSRFInvalid
	}

	record, err := s.store.GetByToken(ctx, headerToken)
	if err != nil {
		if errors.Is(err, repository.ErrCsrfTokenNotFound) {
			return apperror.ErrCSRFInvalid
		}
		return fmt.Errorf("csrf service: validate %w", err)
	}

	if record.ApprovalID != approvalID {
		return apperror.ErrCSRFInvalid
	}

	if record.IsExpired(time.Now().UTC()) {
		return apperror.ErrCSRFInvalid
	}

	return nil
}

// Cleanup удаляет истёкшие токены, возвращает их число.
func (s *CsrfService) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("csrf service: cleanup %w", err)
	}
	return deleted, nil
}
