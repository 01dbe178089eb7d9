package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification описывает внутреннее уведомление сотрудникам организации.
// Дублируется в WebSocket-канал организации в момент создания.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	OrgID     uuid.UUID       `db:"org_id" json:"org_id"`
	Event     string          `db:"event" json:"event"`
	Title     string          `db:"title" json:"title"`
	Body      string          `db:"body" json:"body"`
	Payload   json.RawMessage `db:"payload" json:"payload,omitempty"`
	ReadAt    *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
