package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization представляет студию или бюро, арендатора системы. Все остальные
// сущности привязаны к организации через org_id.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Plan      string    `db:"plan" json:"plan"`
	LogoURL   *string   `db:"logo_url" json:"logo_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
