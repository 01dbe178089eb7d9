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
	"github.com/approvhq/approv-backend/internal/repository/common"
)

// Ошибки репозитория пользователей.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// UserRepository отвечает за пользователей и их сессии.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (org_id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		user.OrgID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// CreateWithOrganization атомарно создаёт организацию и её владельца.
func (r *UserRepository) CreateWithOrganization(ctx context.Context, org *models.Organization, user *models.User) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		orgQuery := `
			INSERT INTO organizations (name, slug, plan)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, orgQuery, org.Name, org.Slug, org.Plan).
			Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return fmt.Errorf("user repository: create organization %w", err)
		}

		user.OrgID = org.ID
		userQuery := `
			INSERT INTO users (org_id, email, password_hash, name, role)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, userQuery, user.OrgID, user.Email, user.PasswordHash, user.Name, user.Role).
			Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return fmt.Errorf("user repository: create owner %w", err)
		}

		return nil
	})
}

// GetByEmail возвращает пользователя по email. Email уникален во всей
// системе, поиск используется при входе до определения организации.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "email", email, ErrUserNotFound)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

// ListByOrg возвращает сотрудников организации.
func (r *UserRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	var users []models.User
	query := `SELECT * FROM users WHERE org_id = $1 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &users, query, orgID); err != nil {
		return nil, fmt.Errorf("user repository: list by org %w", err)
	}

	return users, nil
}

// UpdateRole меняет роль сотрудника организации.
func (r *UserRepository) UpdateRole(ctx context.Context, orgID, id uuid.UUID, role string) error {
	query := `UPDATE users SET role = $3, updated_at = NOW() WHERE org_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, orgID, id, role)
	if err != nil {
		return fmt.Errorf("user repository: update role %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: update role rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Delete удаляет сотрудника организации. Его сессии удаляются каскадом.
func (r *UserRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("user repository: delete %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: delete rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CreateSession создаёт сессию с refresh-токеном.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (user_id, refresh_token_hash, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		session.UserID,
		session.RefreshTokenHash,
		session.UserAgent,
		session.IP,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}

	return nil
}

// GetSessionByTokenHash возвращает живую сессию по хэшу refresh-токена.
func (r *UserRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var session models.Session
	query := `SELECT * FROM sessions WHERE refresh_token_hash = $1 AND expires_at > NOW()`

	if err := r.db.GetContext(ctx, &session, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("user repository: get session %w", err)
	}

	return &session, nil
}

// RotateSession заменяет refresh-токен сессии при обновлении пары.
func (r *UserRepository) RotateSession(ctx context.Context, sessionID uuid.UUID, newTokenHash string, expiresAt time.Time) error {
	query := `UPDATE sessions SET refresh_token_hash = $2, expires_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, sessionID, newTokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("user repository: rotate session %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: rotate session rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteSessionByTokenHash удаляет сессию при выходе.
func (r *UserRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}
	return nil
}

// DeleteExpiredSessions удаляет истёкшие сессии, возвращает их число.
func (r *UserRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("user repository: delete expired sessions %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("user repository: delete expired sessions rows affected %w", err)
	}

	return rowsAffected, nil
}
