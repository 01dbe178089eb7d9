package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository/common"
)

// ErrOrganizationNotFound возвращается, когда организация не найдена.
var ErrOrganizationNotFound = errors.New("organization not found")

// OrganizationRepository отвечает за организации.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository создаёт экземпляр репозитория.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID возвращает организацию по идентификатору.
func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return common.GetByID[models.Organization](ctx, r.db, "organizations", id, ErrOrganizationNotFound)
}

// GetBySlug возвращает организацию по слагу.
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return common.GetByField[models.Organization](ctx, r.db, "organizations", "slug", slug, ErrOrganizationNotFound)
}

// Update обновляет название и логотип организации.
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, logo_url = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, org.ID, org.Name, org.LogoURL)
	if err != nil {
		return fmt.Errorf("organization repository: update %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("organization repository: update rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrganizationNotFound
	}

	return nil
}
