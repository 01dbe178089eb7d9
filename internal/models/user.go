package models

import (
	"time"

	"github.com/google/uuid"
)

// User представляет сотрудника организации.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	OrgID        uuid.UUID `db:"org_id" json:"org_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin сообщает, может ли пользователь управлять организацией.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleOwner || u.Role == UserRoleAdmin
}

// Session описывает сессию пользователя, к которой привязан refresh-токен.
// Ротация: при обновлении пары токенов старый hash заменяется новым.
type Session struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	RefreshTokenHash string    `db:"refresh_token_hash" json:"-"`
	UserAgent        *string   `db:"user_agent" json:"user_agent,omitempty"`
	IP               *string   `db:"ip" json:"ip,omitempty"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
