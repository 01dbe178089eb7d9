package models

import (
	"time"

	"github.com/google/uuid"
)

// CsrfToken представляет выданный порталу CSRF-токен (double-submit схема).
// Токен живёт ограниченное время и привязан к согласованию.
type CsrfToken struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ApprovalID uuid.UUID `db:"approval_id" json:"approval_id"`
	Token      string    `db:"token" json:"token"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IsExpired сообщает, истёк ли токен.
func (t *CsrfToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
