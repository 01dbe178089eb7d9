package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// ErrCsrfTokenNotFound возвращается, когда CSRF-токен не найден.
var ErrCsrfTokenNotFound = errors.New("csrf token not found")

// CsrfRepository хранит выданные порталу CSRF-токены.
type CsrfRepository struct {
	db *sqlx.DB
}

// NewCsrfRepository создаёт экземпляр репозитория.
func NewCsrfRepository(db *sqlx.DB) *CsrfRepository {
	return &CsrfRepository{db: db}
}

// Create сохраняет выданный токен.
func (r *CsrfRepository) Create(ctx context.Context, token *models.CsrfToken) error {
	query := `
		INSERT INTO csrf_tokens (approval_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		token.ApprovalID,
		token.Token,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt); err != nil {
		return fmt.Errorf("csrf repository: create %w", err)
	}

	return nil
}

// GetByToken возвращает запись по значению токена.
func (r *CsrfRepository) GetByToken(ctx context.Context, token string) (*models.CsrfToken, error) {
	var record models.CsrfToken
	query := `SELECT * FROM csrf_tokens WHERE token = $1`

	if err := r.db.GetContext(ctx, &record, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCsrfTokenNotFound
		}
		return nil, fmt.Errorf("csrf repository: get by token %w", err)
	}

	return &record, nil
}

// DeleteExpired удаляет истёкшие токены, возвращает их число.
func (r *CsrfRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("csrf repository: delete expired %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("csrf repository: delete expired rows affected %w", err)
	}

	return rowsAffected, nil
}
