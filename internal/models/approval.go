package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval описывает запрос согласования, отправляемый клиенту. Жизненный цикл:
// pending -> approved | changes_requested; из changes_requested возможна
// повторная отправка (resubmit), возвращающая pending с новой версией.
// Просроченность не хранится: pending с истёкшим expires_at читается
// как expired через EffectiveStatus.
type Approval struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrgID       uuid.UUID  `db:"org_id" json:"org_id"`
	ProjectID   uuid.UUID  `db:"project_id" json:"project_id"`
	Token       string     `db:"token" json:"-"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	Version     int        `db:"version" json:"version"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`

	ViewCount     int        `db:"view_count" json:"view_count"`
	FirstViewedAt *time.Time `db:"first_viewed_at" json:"first_viewed_at,omitempty"`
	LastViewedAt  *time.Time `db:"last_viewed_at" json:"last_viewed_at,omitempty"`

	ReminderCount  int        `db:"reminder_count" json:"reminder_count"`
	LastReminderAt *time.Time `db:"last_reminder_at" json:"last_reminder_at,omitempty"`

	RespondedAt   *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	ResponseNotes *string    `db:"response_notes" json:"response_notes,omitempty"`

	// Элемент доски Monday, если организация подключила синхронизацию.
	MondayItemID *string `db:"monday_item_id" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Заполняются JOIN-ами в списках.
	ProjectName string    `db:"project_name" json:"project_name,omitempty"`
	ClientID    uuid.UUID `db:"client_id" json:"-"`
	ClientName  string    `db:"client_name" json:"client_name,omitempty"`
	ClientEmail string    `db:"client_email" json:"-"`

	// Ссылка на портал, подставляется при выдаче, в БД не хранится.
	PortalURL string `db:"-" json:"portal_url,omitempty"`

	Files []ApprovalFile `db:"-" json:"files,omitempty"`
}

// EffectiveStatus возвращает статус с учётом срока действия:
// pending после expires_at читается как expired. Остальные статусы
// срок не затрагивает: данный ответ остаётся ответом.
func (a *Approval) EffectiveStatus(now time.Time) string {
	if a.Status == ApprovalStatusPending && now.After(a.ExpiresAt) {
		return ApprovalStatusExpired
	}
	return a.Status
}

// IsOpen сообщает, принимает ли согласование ответ клиента.
func (a *Approval) IsOpen(now time.Time) bool {
	return a.EffectiveStatus(now) == ApprovalStatusPending
}

// ApprovalFile описывает файл, приложенный к согласованию. Хранится в объектном
// хранилище, клиенту отдаётся по временной presigned-ссылке.
type ApprovalFile struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ApprovalID uuid.UUID `db:"approval_id" json:"approval_id"`
	OrgID      uuid.UUID `db:"org_id" json:"-"`
	ObjectKey  string    `db:"object_key" json:"-"`
	FileName   string    `db:"file_name" json:"file_name"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	// Временная ссылка, подставляется при выдаче, в БД не хранится.
	URL string `db:"-" json:"url,omitempty"`
}
