package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/approvhq/approv-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestApprovalRepositoryRespondUpdatesOpenApproval(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	id := uuid.New()
	now := time.Now().UTC()
	notes := "Согласовано без замечаний"

	mock.ExpectExec("UPDATE approvals").
		WithArgs(id, models.ApprovalStatusApproved, notes, now, models.ApprovalStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Respond(context.Background(), id, models.ApprovalStatusApproved, &notes, now)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryRespondSkipsClosedApproval(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	id := uuid.New()
	now := time.Now().UTC()

	// Условие WHERE не подошло: ответ уже дан или срок истёк.
	mock.ExpectExec("UPDATE approvals").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Respond(context.Background(), id, models.ApprovalStatusApproved, nil, now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryResubmitOnlyFromChangesRequested(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	id := uuid.New()
	now := time.Now().UTC()
	expiresAt := now.Add(14 * 24 * time.Hour)

	mock.ExpectExec("UPDATE approvals").
		WithArgs(id, models.ApprovalStatusPending, expiresAt, now, models.ApprovalStatusChangesRequested).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Resubmit(context.Background(), id, expiresAt, now)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryRecordView(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE approvals").
		WithArgs(id, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordView(context.Background(), id, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryGetByTokenNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	mock.ExpectQuery("FROM approvals a").
		WithArgs("missing-token").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByToken(context.Background(), "missing-token")
	assert.ErrorIs(t, err, ErrApprovalNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryCountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	orgID := uuid.New()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 3).
		AddRow("approved", 5).
		AddRow("expired", 1)

	mock.ExpectQuery("FROM approvals").
		WithArgs(orgID).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, StatusCount{Status: "approved", Count: 5}, counts[1])

	require.NoError(t, mock.ExpectationsWereMet())
}
