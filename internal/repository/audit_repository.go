package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// AuditRepository отвечает за журнал аудита. Журнал только дописывается,
// правка и удаление записей не предусмотрены.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository создаёт экземпляр репозитория.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert добавляет запись журнала.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, org_id, actor_type, actor_id, action, entity_type, entity_id, details, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.OrgID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Details,
		entry.IP,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit repository: insert %w", err)
	}

	return nil
}

// ListAuditParams задаёт фильтры выборки журнала.
type ListAuditParams struct {
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// List возвращает записи журнала организации, новые первыми.
func (r *AuditRepository) List(ctx context.Context, orgID uuid.UUID, params ListAuditParams) ([]models.AuditLog, error) {
	query := `SELECT * FROM audit_logs WHERE org_id = $1`
	args := []interface{}{orgID}
	argIndex := 2

	if params.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIndex)
		args = append(args, params.Action)
		argIndex++
	}

	if params.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argIndex)
		args = append(args, params.EntityType)
		argIndex++
	}

	if params.EntityID != nil {
		query += fmt.Sprintf(" AND entity_id = $%d", argIndex)
		args = append(args, *params.EntityID)
		argIndex++
	}

	if params.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *params.From)
		argIndex++
	}

	if params.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *params.To)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, params.Limit)
		argIndex++
	}

	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, params.Offset)
	}

	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("audit repository: list %w", err)
	}

	return entries, nil
}
