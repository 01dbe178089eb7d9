package models

import (
	"time"

	"github.com/google/uuid"
)

// Project описывает проект организации для одного клиента. Стадия меняется
// вручную по мере продвижения работ, согласования привязаны к проекту.
type Project struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrgID     uuid.UUID `db:"org_id" json:"org_id"`
	ClientID  uuid.UUID `db:"client_id" json:"client_id"`
	Name      string    `db:"name" json:"name"`
	Stage     string    `db:"stage" json:"stage"`
	Status    string    `db:"status" json:"status"`
	Address   *string   `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Заполняется JOIN-ом в списках, в таблице projects колонки нет.
	ClientName string `db:"client_name" json:"client_name,omitempty"`
}
