package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
)

const (
	auditDefaultLimit = 50
	auditMaxLimit     = 200
)

// AuditService отдаёт журнал аудита организации. Записи создаёт
// audit.Recorder, сервис только читает.
type AuditService struct {
	repo *repository.AuditRepository
}

// NewAuditService создаёт экземпляр сервиса.
func NewAuditService(repo *repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// List возвращает записи журнала с фильтрами и пагинацией.
func (s *AuditService) List(ctx context.Context, orgID uuid.UUID, params repository.ListAuditParams) ([]models.AuditLog, error) {
	if params.Limit <= 0 {
		params.Limit = auditDefaultLimit
	}
	if params.Limit > auditMaxLimit {
		params.Limit = auditMaxLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	return s.repo.List(ctx, orgID, params)
}

// EntityTrail возвращает записи журнала по конкретной сущности,
// старые первыми. Используется для хронологии в PDF-отчёте.
func (s *AuditService) EntityTrail(ctx context.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	entries, err := s.repo.List(ctx, orgID, repository.ListAuditParams{
		EntityType: entityType,
		EntityID:   &entityID,
		Limit:      auditMaxLimit,
	})
	if err != nil {
		return nil, err
	}

	// List отдаёт новые первыми, для хронологии порядок обратный.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}
