package models

import (
	"time"

	"github.com/google/uuid"
)

// Reminder фиксирует факт отправки напоминания по согласованию. Ведётся для
// истории и для ограничения частоты (cooldown ручных напоминаний).
type Reminder struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrgID      uuid.UUID `db:"org_id" json:"org_id"`
	ApprovalID uuid.UUID `db:"approval_id" json:"approval_id"`
	Kind       string    `db:"kind" json:"kind"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}

// Виды напоминаний: автоматические по порогам срока и ручные.
const (
	ReminderKindAuto   = "auto"
	ReminderKindManual = "manual"
)
