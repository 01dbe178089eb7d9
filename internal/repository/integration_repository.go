package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// ErrIntegrationNotFound возвращается, когда интеграция не подключена.
var ErrIntegrationNotFound = errors.New("integration not found")

// IntegrationRepository хранит подключённые внешние учётные записи.
type IntegrationRepository struct {
	db *sqlx.DB
}

// NewIntegrationRepository создаёт экземпляр репозитория.
func NewIntegrationRepository(db *sqlx.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// Upsert сохраняет подключение, заменяя существующее для того же
// провайдера: у организации не больше одной учётной записи на провайдера.
func (r *IntegrationRepository) Upsert(ctx context.Context, account *models.IntegrationAccount) error {
	query := `
		INSERT INTO integration_accounts (org_id, provider, access_token, refresh_token, token_expiry, external_id, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_id, provider)
		DO UPDATE SET access_token = EXCLUDED.access_token,
		              refresh_token = EXCLUDED.refresh_token,
		              token_expiry = EXCLUDED.token_expiry,
		              external_id = EXCLUDED.external_id,
		              settings = EXCLUDED.settings,
		              updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		account.OrgID,
		account.Provider,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiry,
		account.ExternalID,
		account.Settings,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return fmt.Errorf("integration repository: upsert %w", err)
	}

	return nil
}

// GetByProvider возвращает подключение организации к провайдеру.
func (r *IntegrationRepository) GetByProvider(ctx context.Context, orgID uuid.UUID, provider string) (*models.IntegrationAccount, error) {
	var account models.IntegrationAccount
	query := `SELECT * FROM integration_accounts WHERE org_id = $1 AND provider = $2`

	if err := r.db.GetContext(ctx, &account, query, orgID, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("integration repository: get by provider %w", err)
	}

	return &account, nil
}

// UpdateSettings обновляет настройки подключения: доску Monday,
// колонку статуса и т.п.
func (r *IntegrationRepository) UpdateSettings(ctx context.Context, orgID uuid.UUID, provider string, settings json.RawMessage) error {
	query := `UPDATE integration_accounts SET settings = $3, updated_at = NOW() WHERE org_id = $1 AND provider = $2`

	result, err := r.db.ExecContext(ctx, query, orgID, provider, settings)
	if err != nil {
		return fmt.Errorf("integration repository: update settings %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("integration repository: update settings rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrIntegrationNotFound
	}

	return nil
}

// ListByOrg возвращает подключения организации.
func (r *IntegrationRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.IntegrationAccount, error) {
	var accounts []models.IntegrationAccount
	query := `SELECT * FROM integration_accounts WHERE org_id = $1 ORDER BY provider ASC`

	if err := r.db.SelectContext(ctx, &accounts, query, orgID); err != nil {
		return nil, fmt.Errorf("integration repository: list by org %w", err)
	}

	return accounts, nil
}

// ListByProvider возвращает все подключения к провайдеру. Используется
// обработчиками вебхуков, когда событие не привязано к организации.
func (r *IntegrationRepository) ListByProvider(ctx context.Context, provider string) ([]models.IntegrationAccount, error) {
	var accounts []models.IntegrationAccount
	query := `SELECT * FROM integration_accounts WHERE provider = $1`

	if err := r.db.SelectContext(ctx, &accounts, query, provider); err != nil {
		return nil, fmt.Errorf("integration repository: list by provider %w", err)
	}

	return accounts, nil
}

// Delete отключает интеграцию.
func (r *IntegrationRepository) Delete(ctx context.Context, orgID uuid.UUID, provider string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM integration_accounts WHERE org_id = $1 AND provider = $2`, orgID, provider)
	if err != nil {
		return fmt.Errorf("integration repository: delete %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("integration repository: delete rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrIntegrationNotFound
	}

	return nil
}
