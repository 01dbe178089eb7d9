package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// fakeNotificationStore копит созданные уведомления.
type fakeNotificationStore struct {
	mu      sync.Mutex
	created []models.Notification
}

func (f *fakeNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *notification)
	return nil
}

func (f *fakeNotificationStore) List(ctx context.Context, orgID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeNotificationStore) MarkAsRead(ctx context.Context, orgID, id uuid.UUID) error {
	return nil
}

func (f *fakeNotificationStore) MarkAllAsRead(ctx context.Context, orgID uuid.UUID) error {
	return nil
}

func (f *fakeNotificationStore) CountUnread(ctx context.Context, orgID uuid.UUID) (int, error) {
	return 0, nil
}

// fakeAuditStore копит записи журнала аудита.
type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAuditStore) Insert(ctx context.Context, entry *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func newWebhookTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "sqlmock"), mock
}

func integrationAccountRows(account models.IntegrationAccount) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "org_id", "provider", "access_token", "refresh_token",
		"token_expiry", "external_id", "settings", "created_at", "updated_at",
	}).AddRow(
		account.ID, account.OrgID, account.Provider, account.AccessToken, account.RefreshToken,
		account.TokenExpiry, account.ExternalID, []byte(account.Settings), account.CreatedAt, account.UpdatedAt,
	)
}

func dropboxSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func mondayToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestWebhookHandler_DropboxChallenge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "secret", "secret")
	r.GET("/webhooks/dropbox", handler.DropboxChallenge)

	req, _ := http.NewRequest("GET", "/webhooks/dropbox?challenge=abc123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())
}

func TestWebhookHandler_DropboxNotify_BadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "secret", "secret")
	r.POST("/webhooks/dropbox", handler.DropboxNotify)

	req, _ := http.NewRequest("POST", "/webhooks/dropbox", strings.NewReader(`{}`))
	req.Header.Set("X-Dropbox-Signature", "подделка")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_DropboxNotify_NotifiesLinkedOrg(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock := newWebhookTestDB(t)
	orgID := uuid.New()
	externalID := "dbid:AAAA1234"
	now := time.Now().UTC()

	mock.ExpectQuery("FROM integration_accounts").
		WithArgs(models.IntegrationProviderDropbox).
		WillReturnRows(integrationAccountRows(models.IntegrationAccount{
			ID:          uuid.New(),
			OrgID:       orgID,
			Provider:    models.IntegrationProviderDropbox,
			AccessToken: "tok",
			ExternalID:  &externalID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))

	notifications := &fakeNotificationStore{}
	auditStore := &fakeAuditStore{}
	handler := NewWebhookHandler(
		repository.NewIntegrationRepository(db),
		service.NewNotificationService(notifications, nil),
		audit.NewRecorder(auditStore),
		"secret", "secret",
	)

	r := gin.New()
	r.POST("/webhooks/dropbox", handler.DropboxNotify)

	body := []byte(`{"list_folder":{"accounts":["dbid:AAAA1234"]}}`)
	req, _ := http.NewRequest("POST", "/webhooks/dropbox", strings.NewReader(string(body)))
	req.Header.Set("X-Dropbox-Signature", dropboxSign("secret", body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, notifications.created, 1)
	assert.Equal(t, orgID, notifications.created[0].OrgID)
	assert.Equal(t, models.NotificationFilesChanged, notifications.created[0].Event)
	require.Len(t, auditStore.entries, 1)
	assert.Equal(t, models.AuditWebhookReceived, auditStore.entries[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookHandler_DropboxNotify_IgnoresUnknownAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock := newWebhookTestDB(t)
	externalID := "dbid:LINKED"
	now := time.Now().UTC()

	mock.ExpectQuery("FROM integration_accounts").
		WithArgs(models.IntegrationProviderDropbox).
		WillReturnRows(integrationAccountRows(models.IntegrationAccount{
			ID:          uuid.New(),
			OrgID:       uuid.New(),
			Provider:    models.IntegrationProviderDropbox,
			AccessToken: "tok",
			ExternalID:  &externalID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))

	notifications := &fakeNotificationStore{}
	handler := NewWebhookHandler(
		repository.NewIntegrationRepository(db),
		service.NewNotificationService(notifications, nil),
		audit.NewRecorder(&fakeAuditStore{}),
		"secret", "secret",
	)

	r := gin.New()
	r.POST("/webhooks/dropbox", handler.DropboxNotify)

	body := []byte(`{"list_folder":{"accounts":["dbid:SOMEONE_ELSE"]}}`)
	req, _ := http.NewRequest("POST", "/webhooks/dropbox", strings.NewReader(string(body)))
	req.Header.Set("X-Dropbox-Signature", dropboxSign("secret", body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, notifications.created)
}

func TestWebhookHandler_MondayNotify_Challenge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "secret", "monday-secret")
	r.POST("/webhooks/monday", handler.MondayNotify)

	req, _ := http.NewRequest("POST", "/webhooks/monday", strings.NewReader(`{"challenge":"xyz789"}`))
	req.Header.Set("Authorization", mondayToken(t, "monday-secret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "xyz789")
}

func TestWebhookHandler_MondayNotify_BadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "secret", "monday-secret")
	r.POST("/webhooks/monday", handler.MondayNotify)

	req, _ := http.NewRequest("POST", "/webhooks/monday", strings.NewReader(`{"challenge":"xyz"}`))
	req.Header.Set("Authorization", mondayToken(t, "другой-секрет"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_MondayNotify_BoardEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock := newWebhookTestDB(t)
	orgID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM integration_accounts").
		WithArgs(models.IntegrationProviderMonday).
		WillReturnRows(integrationAccountRows(models.IntegrationAccount{
			ID:          uuid.New(),
			OrgID:       orgID,
			Provider:    models.IntegrationProviderMonday,
			AccessToken: "tok",
			Settings:    []byte(`{"board_id":"4521"}`),
			CreatedAt:   now,
			UpdatedAt:   now,
		}))

	notifications := &fakeNotificationStore{}
	handler := NewWebhookHandler(
		repository.NewIntegrationRepository(db),
		service.NewNotificationService(notifications, nil),
		audit.NewRecorder(&fakeAuditStore{}),
		"secret", "monday-secret",
	)

	r := gin.New()
	r.POST("/webhooks/monday", handler.MondayNotify)

	body := `{"event":{"type":"update_column_value","boardId":4521}}`
	req, _ := http.NewRequest("POST", "/webhooks/monday", strings.NewReader(body))
	req.Header.Set("Authorization", mondayToken(t, "monday-secret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, notifications.created, 1)
	assert.Equal(t, orgID, notifications.created[0].OrgID)
	require.NoError(t, mock.ExpectationsWereMet())
}
