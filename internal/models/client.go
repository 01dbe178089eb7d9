package models

import (
	"time"

	"github.com/google/uuid"
)

// Client представляет заказчика организации: человека, которому уходят ссылки
// на согласования. Учётной записи у клиента нет, доступ только по токену.
type Client struct {
	ID    uuid.UUID `db:"id" json:"id"`
	OrgID uuid.UUID `db:"org_id" json:"org_id"`
	Name  string    `db:"name" json:"name"`
	Email string    `db:"email" json:"email"`
	// PortalToken долгоживущий токен личной страницы клиента.
	// Перевыпуск обесценивает старую ссылку.
	PortalToken string     `db:"portal_token" json:"portal_token"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Company     *string    `db:"company" json:"company,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	ArchivedAt  *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// IsArchived сообщает, выведен ли клиент из работы.
func (c *Client) IsArchived() bool {
	return c.ArchivedAt != nil
}
