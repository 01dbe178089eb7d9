package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IntegrationAccount описывает подключённую внешнюю учётную запись организации
// (Monday.com или Dropbox). Токены хранятся только на сервере и в API
// наружу не отдаются.
type IntegrationAccount struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OrgID        uuid.UUID  `db:"org_id" json:"org_id"`
	Provider     string     `db:"provider" json:"provider"`
	AccessToken  string     `db:"access_token" json:"-"`
	RefreshToken *string    `db:"refresh_token" json:"-"`
	TokenExpiry  *time.Time `db:"token_expiry" json:"-"`
	ExternalID   *string    `db:"external_id" json:"external_id,omitempty"`
	// Настройки провайдера: id доски Monday, путь папки Dropbox и т.п.
	Settings  json.RawMessage `db:"settings" json:"settings,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
