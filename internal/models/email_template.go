package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailTemplate хранит переопределение письма организацией. При отсутствии
// строки для вида письма используется встроенный шаблон по умолчанию.
type EmailTemplate struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrgID     uuid.UUID `db:"org_id" json:"org_id"`
	Kind      string    `db:"kind" json:"kind"`
	Subject   string    `db:"subject" json:"subject"`
	BodyHTML  string    `db:"body_html" json:"body_html"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
