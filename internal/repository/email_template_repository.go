package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// ErrEmailTemplateNotFound возвращается, когда у организации нет
// переопределения для вида письма.
var ErrEmailTemplateNotFound = errors.New("email template not found")

// EmailTemplateRepository хранит переопределения писем организаций.
type EmailTemplateRepository struct {
	db *sqlx.DB
}

// NewEmailTemplateRepository создаёт экземпляр репозитория.
func NewEmailTemplateRepository(db *sqlx.DB) *EmailTemplateRepository {
	return &EmailTemplateRepository{db: db}
}

// GetByKind возвращает переопределение вида письма для организации.
func (r *EmailTemplateRepository) GetByKind(ctx context.Context, orgID uuid.UUID, kind string) (*models.EmailTemplate, error) {
	var tpl models.EmailTemplate
	query := `SELECT * FROM email_templates WHERE org_id = $1 AND kind = $2`

	if err := r.db.GetContext(ctx, &tpl, query, orgID, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailTemplateNotFound
		}
		return nil, fmt.Errorf("email template repository: get by kind %w", err)
	}

	return &tpl, nil
}

// ListByOrg возвращает все переопределения организации.
func (r *EmailTemplateRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.EmailTemplate, error) {
	var templates []models.EmailTemplate
	query := `SELECT * FROM email_templates WHERE org_id = $1 ORDER BY kind ASC`

	if err := r.db.SelectContext(ctx, &templates, query, orgID); err != nil {
		return nil, fmt.Errorf("email template repository: list by org %w", err)
	}

	return templates, nil
}

// Upsert сохраняет переопределение, заменяя существующее для того же
// вида письма.
func (r *EmailTemplateRepository) Upsert(ctx context.Context, tpl *models.EmailTemplate) error {
	query := `
		INSERT INTO email_templates (org_id, kind, subject, body_html, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (org_id, kind)
		DO UPDATE SET subject = EXCLUDED.subject, body_html = EXCLUDED.body_html, updated_at = NOW()
		RETURNING id, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		tpl.OrgID,
		tpl.Kind,
		tpl.Subject,
		tpl.BodyHTML,
	).Scan(&tpl.ID, &tpl.UpdatedAt); err != nil {
		return fmt.Errorf("email template repository: upsert %w", err)
	}

	return nil
}

// Delete удаляет переопределение, возвращая организацию к шаблону по
// умолчанию.
func (r *EmailTemplateRepository) Delete(ctx context.Context, orgID uuid.UUID, kind string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM email_templates WHERE org_id = $1 AND kind = $2`, orgID, kind)
	if err != nil {
		return fmt.Errorf("email template repository: delete %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("email template repository: delete rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrEmailTemplateNotFound
	}

	return nil
}
