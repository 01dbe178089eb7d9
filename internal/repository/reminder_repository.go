package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/approvhq/approv-backend/internal/models"
)

// ReminderRepository отвечает за историю напоминаний.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository создаёт экземпляр репозитория.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create фиксирует отправленное напоминание.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	query := `
		INSERT INTO reminders (org_id, approval_id, kind, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		reminder.OrgID,
		reminder.ApprovalID,
		reminder.Kind,
		reminder.SentAt,
	).Scan(&reminder.ID); err != nil {
		return fmt.Errorf("reminder repository: create %w", err)
	}

	return nil
}

// LastSentAt возвращает время последнего напоминания по согласованию
// указанного вида. Если напоминаний не было, возвращает нулевое время.
func (r *ReminderRepository) LastSentAt(ctx context.Context, approvalID uuid.UUID, kind string) (time.Time, error) {
	var sentAt time.Time
	query := `
		SELECT sent_at FROM reminders
		WHERE approval_id = $1 AND kind = $2
		ORDER BY sent_at DESC
		LIMIT 1
	`

	if err := r.db.GetContext(ctx, &sentAt, query, approvalID, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("reminder repository: last sent at %w", err)
	}

	return sentAt, nil
}

// ListByApproval возвращает историю напоминаний по согласованию.
func (r *ReminderRepository) ListByApproval(ctx context.Context, orgID, approvalID uuid.UUID) ([]models.Reminder, error) {
	var reminders []models.Reminder
	query := `
		SELECT * FROM reminders
		WHERE org_id = $1 AND approval_id = $2
		ORDER BY sent_at DESC
	`

	if err := r.db.SelectContext(ctx, &reminders, query, orgID, approvalID); err != nil {
		return nil, fmt.Errorf("reminder repository: list by approval %w", err)
	}

	return reminders, nil
}
