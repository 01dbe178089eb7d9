package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// ErrClientNotFound возвращается, когда клиент не найден.
var ErrClientNotFound = errors.New("client not found")

// ClientRepository отвечает за работу с клиентами организации.
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository создаёт экземпляр репозитория.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create создаёт клиента.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	query := `
		INSERT INTO clients (org_id, name, email, portal_token, phone, company, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		client.OrgID,
		client.Name,
		client.Email,
		client.PortalToken,
		client.Phone,
		client.Company,
		client.Notes,
	).Scan(&client.ID, &client.CreatedAt, &client.UpdatedAt); err != nil {
		return fmt.Errorf("client repository: create %w", err)
	}

	return nil
}

// GetByPortalToken возвращает клиента по токену его личной страницы.
// Архивные клиенты по токену не находятся: доступ закрыт вместе с архивацией.
func (r *ClientRepository) GetByPortalToken(ctx context.Context, token string) (*models.Client, error) {
	var client models.Client
	query := `SELECT * FROM clients WHERE portal_token = $1 AND archived_at IS NULL`

	if err := r.db.GetContext(ctx, &client, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("client repository: get by portal token %w", err)
	}

	return &client, nil
}

// RegeneratePortalToken заменяет токен личной страницы клиента.
func (r *ClientRepository) RegeneratePortalToken(ctx context.Context, orgID, id uuid.UUID, token string) error {
	query := `UPDATE clients SET portal_token = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, orgID, id, token)
	if err != nil {
		return fmt.Errorf("client repository: regenerate portal token %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("client repository: regenerate portal token rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrClientNotFound
	}

	return nil
}

// GetByID возвращает клиента организации по идентификатору.
func (r *ClientRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	query := `SELECT * FROM clients WHERE org_id = $1 AND id = $2`

	if err := r.db.GetContext(ctx, &client, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("client repository: get by id %w", err)
	}

	return &client, nil
}

// ListClientsParams задаёт фильтры списка клиентов.
type ListClientsParams struct {
	// Search ищет по имени, email и компании без учёта регистра.
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// List возвращает клиентов организации по алфавиту.
func (r *ClientRepository) List(ctx context.Context, orgID uuid.UUID, params ListClientsParams) ([]models.Client, error) {
	query := `SELECT * FROM clients WHERE org_id = $1`
	args := []interface{}{orgID}
	argIndex := 2

	if !params.IncludeArchived {
		query += " AND archived_at IS NULL"
	}

	if params.Search != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d OR company ILIKE $%d)", argIndex, argIndex, argIndex)
		args = append(args, "%"+params.Search+"%")
		argIndex++
	}

	query += " ORDER BY name ASC"

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, params.Limit)
		argIndex++
	}

	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, params.Offset)
	}

	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, query, args...); err != nil {
		return nil, fmt.Errorf("client repository: list %w", err)
	}

	return clients, nil
}

// Update обновляет данные клиента.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	query := `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, company = $6, notes = $7, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		client.OrgID,
		client.ID,
		client.Name,
		client.Email,
		client.Phone,
		client.Company,
		client.Notes,
	)
	if err != nil {
		return fmt.Errorf("client repository: update %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("client repository: update rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrClientNotFound
	}

	return nil
}

// Archive выводит клиента из работы. Повторный вызов не ошибка.
func (r *ClientRepository) Archive(ctx context.Context, orgID, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE clients
		SET archived_at = COALESCE(archived_at, $3), updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query, orgID, id, at)
	if err != nil {
		return fmt.Errorf("client repository: archive %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("client repository: archive rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrClientNotFound
	}

	return nil
}

// CountActive возвращает количество активных клиентов организации.
func (r *ClientRepository) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM clients WHERE org_id = $1 AND archived_at IS NULL`

	if err := r.db.GetContext(ctx, &count, query, orgID); err != nil {
		return 0, fmt.Errorf("client repository: count active %w", err)
	}

	return count, nil
}
