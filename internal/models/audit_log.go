package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog представляет запись журнала аудита. Детали события хранятся в JSONB
// уже после маскирования чувствительных полей, обратного пути к
// исходным значениям нет.
type AuditLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	OrgID      uuid.UUID       `db:"org_id" json:"org_id"`
	ActorType  string          `db:"actor_type" json:"actor_type"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   *uuid.UUID      `db:"entity_id" json:"entity_id,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	IP         *string         `db:"ip" json:"ip,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
