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

// ErrApprovalNotFound возвращается, когда согласование не найдено.
var ErrApprovalNotFound = errors.New("approval not found")

// ApprovalRepository отвечает за работу с согласованиями.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository создаёт экземпляр репозитория.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// selectWithNames базовый SELECT согласования с именами проекта и
// клиента. Email клиента нужен сервисам рассылки, наружу не отдаётся.
const selectWithNames = `
	SELECT a.*, p.name AS project_name, c.id AS client_id, c.name AS client_name, c.email AS client_email
	FROM approvals a
	JOIN projects p ON p.id = a.project_id
	JOIN clients c ON c.id = p.client_id
`

// Create создаёт согласование.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.Approval) error {
	query := `
		INSERT INTO approvals (org_id, project_id, token, title, description, status, version, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		approval.OrgID,
		approval.ProjectID,
		approval.Token,
		approval.Title,
		approval.Description,
		approval.Status,
		approval.Version,
		approval.ExpiresAt,
	).Scan(&approval.ID, &approval.CreatedAt, &approval.UpdatedAt); err != nil {
		return fmt.Errorf("approval repository: create %w", err)
	}

	return nil
}

// GetByID возвращает согласование организации по идентификатору.
func (r *ApprovalRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Approval, error) {
	var approval models.Approval
	query := selectWithNames + ` WHERE a.org_id = $1 AND a.id = $2`

	if err := r.db.GetContext(ctx, &approval, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("approval repository: get by id %w", err)
	}

	return &approval, nil
}

// GetByToken возвращает согласование по токену портала. Токен сам по
// себе является полномочием, фильтра по организации здесь нет.
func (r *ApprovalRepository) GetByToken(ctx context.Context, token string) (*models.Approval, error) {
	var approval models.Approval
	query := selectWithNames + ` WHERE a.token = $1`

	if err := r.db.GetContext(ctx, &approval, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("approval repository: get by token %w", err)
	}

	return &approval, nil
}

// ListApprovalsParams задаёт фильтры списка согласований.
type ListApprovalsParams struct {
	ProjectID *uuid.UUID
	ClientID  *uuid.UUID
	// Статус с учётом срока: "expired" отбирает просроченные pending.
	Status string
	// OnlySent скрывает черновики, ссылка на которые клиенту не уходила.
	OnlySent bool
	// ExpiresWithin в паре со статусом pending отбирает согласования,
	// срок которых истекает в ближайший интервал.
	ExpiresWithin time.Duration
	Limit         int
	Offset        int
}

// List возвращает согласования организации, новые первыми.
func (r *ApprovalRepository) List(ctx context.Context, orgID uuid.UUID, params ListApprovalsParams) ([]models.Approval, error) {
	query := selectWithNames + ` WHERE a.org_id = $1`
	args := []interface{}{orgID}
	argIndex := 2

	if params.ProjectID != nil {
		query += fmt.Sprintf(" AND a.project_id = $%d", argIndex)
		args = append(args, *params.ProjectID)
		argIndex++
	}

	if params.ClientID != nil {
		query += fmt.Sprintf(" AND c.id = $%d", argIndex)
		args = append(args, *params.ClientID)
		argIndex++
	}

	if params.OnlySent {
		query += " AND a.sent_at IS NOT NULL"
	}

	if params.ExpiresWithin > 0 {
		query += fmt.Sprintf(" AND a.expires_at <= $%d", argIndex)
		args = append(args, time.Now().UTC().Add(params.ExpiresWithin))
		argIndex++
	}

	switch params.Status {
	case "":
	case models.ApprovalStatusExpired:
		query += fmt.Sprintf(" AND a.status = '%s' AND a.expires_at < NOW()", models.ApprovalStatusPending)
	case models.ApprovalStatusPending:
		query += fmt.Sprintf(" AND a.status = '%s' AND a.expires_at >= NOW()", models.ApprovalStatusPending)
	default:
		query += fmt.Sprintf(" AND a.status = $%d", argIndex)
		args = append(args, params.Status)
		argIndex++
	}

	query += " ORDER BY a.created_at DESC"

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, params.Limit)
		argIndex++
	}

	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, params.Offset)
	}

	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, args...); err != nil {
		return nil, fmt.Errorf("approval repository: list %w", err)
	}

	return approvals, nil
}

// MarkSent фиксирует отправку ссылки клиенту.
func (r *ApprovalRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	query := `UPDATE approvals SET sent_at = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("approval repository: mark sent %w", err)
	}

	return nil
}

// SetMondayItem привязывает согласование к элементу доски Monday.
func (r *ApprovalRepository) SetMondayItem(ctx context.Context, id uuid.UUID, itemID string) error {
	query := `UPDATE approvals SET monday_item_id = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, itemID); err != nil {
		return fmt.Errorf("approval repository: set monday item %w", err)
	}

	return nil
}

// RecordView атомарно учитывает просмотр портала: счётчик растёт,
// first_viewed_at выставляется только первым просмотром.
func (r *ApprovalRepository) RecordView(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE approvals
		SET view_count = view_count + 1,
		    first_viewed_at = COALESCE(first_viewed_at, $2),
		    last_viewed_at = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("approval repository: record view %w", err)
	}

	return nil
}

// Respond записывает ответ клиента. Условие в WHERE воспроизводит
// машину состояний на уровне БД: ответ проходит только по открытому
// согласованию, параллельные ответы схлопываются в один. Возвращает
// false, если строка не подошла под условие.
func (r *ApprovalRepository) Respond(ctx context.Context, id uuid.UUID, status string, notes *string, at time.Time) (bool, error) {
	query := `
		UPDATE approvals
		SET status = $2,
		    response_notes = $3,
		    responded_at = $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = $5
		  AND expires_at >= $4
	`

	result, err := r.db.ExecContext(ctx, query, id, status, notes, at, models.ApprovalStatusPending)
	if err != nil {
		return false, fmt.Errorf("approval repository: respond %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approval repository: respond rows affected %w", err)
	}

	return rowsAffected > 0, nil
}

// Resubmit повторно отправляет согласование после правок: только из
// changes_requested, с очисткой ответа и напоминаний и новой версией.
// Счётчик просмотров не сбрасывается. Возвращает false, если
// согласование не находилось в changes_requested.
func (r *ApprovalRepository) Resubmit(ctx context.Context, id uuid.UUID, expiresAt, sentAt time.Time) (bool, error) {
	query := `
		UPDATE approvals
		SET status = $2,
		    version = version + 1,
		    expires_at = $3,
		    sent_at = $4,
		    responded_at = NULL,
		    response_notes = NULL,
		    reminder_count = 0,
		    last_reminder_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, models.ApprovalStatusPending, expiresAt, sentAt, models.ApprovalStatusChangesRequested)
	if err != nil {
		return false, fmt.Errorf("approval repository: resubmit %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approval repository: resubmit rows affected %w", err)
	}

	return rowsAffected > 0, nil
}

// Revoke удаляет согласование, по которому ещё нет ответа. Файлы
// удаляются каскадом, записи аудита остаются.
func (r *ApprovalRepository) Revoke(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	query := `DELETE FROM approvals WHERE org_id = $1 AND id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, orgID, id, models.ApprovalStatusPending)
	if err != nil {
		return false, fmt.Errorf("approval repository: revoke %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approval repository: revoke rows affected %w", err)
	}

	return rowsAffected > 0, nil
}

// ListDueForReminder возвращает открытые согласования, до истечения
// которых осталось не больше within и по которым ещё не исчерпан
// лимит автоматических напоминаний.
func (r *ApprovalRepository) ListDueForReminder(ctx context.Context, now time.Time, within time.Duration, maxReminders int, limit int) ([]models.Approval, error) {
	query := selectWithNames + `
		WHERE a.status = $1
		  AND a.expires_at > $2
		  AND a.expires_at <= $3
		  AND a.reminder_count < $4
		  AND a.sent_at IS NOT NULL
		ORDER BY a.expires_at ASC
		LIMIT $5
	`

	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query,
		models.ApprovalStatusPending, now, now.Add(within), maxReminders, limit); err != nil {
		return nil, fmt.Errorf("approval repository: list due for reminder %w", err)
	}

	return approvals, nil
}

// IncrementReminder учитывает отправленное напоминание.
func (r *ApprovalRepository) IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE approvals
		SET reminder_count = reminder_count + 1,
		    last_reminder_at = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("approval repository: increment reminder %w", err)
	}

	return nil
}

// StatusCount содержит количество согласований в статусе с учётом срока.
type StatusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// CountByStatus агрегирует согласования организации по эффективному
// статусу: просроченные pending считаются как expired.
func (r *ApprovalRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) ([]StatusCount, error) {
	query := `
		SELECT CASE
		         WHEN status = 'pending' AND expires_at < NOW() THEN 'expired'
		         ELSE status
		       END AS status,
		       COUNT(*) AS count
		FROM approvals
		WHERE org_id = $1
		GROUP BY 1
	`

	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, orgID); err != nil {
		return nil, fmt.Errorf("approval repository: count by status %w", err)
	}

	return counts, nil
}

// AvgResponseHours возвращает среднее время ответа клиента в часах.
// Согласования без ответа не учитываются.
func (r *ApprovalRepository) AvgResponseHours(ctx context.Context, orgID uuid.UUID) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (responded_at - sent_at)) / 3600), 0)
		FROM approvals
		WHERE org_id = $1 AND responded_at IS NOT NULL AND sent_at IS NOT NULL
	`

	var hours float64
	if err := r.db.GetContext(ctx, &hours, query, orgID); err != nil {
		return 0, fmt.Errorf("approval repository: avg response hours %w", err)
	}

	return hours, nil
}
