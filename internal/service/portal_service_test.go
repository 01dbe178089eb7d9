package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/email"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// mockPortalRepo реализует PortalApprovalRepository для тестов.
type mockPortalRepo struct {
	mu      sync.Mutex
	byToken map[string]*models.Approval
}

func newMockPortalRepo() *mockPortalRepo {
	return &mockPortalRepo{byToken: make(map[string]*models.Approval)}
}

func (m *mockPortalRepo) add(approval *models.Approval) *models.Approval {
	if approval.ID == uuid.Nil {
		approval.ID = uuid.New()
	}
	m.byToken[approval.Token] = approval
	return approval
}

func (m *mockPortalRepo) GetByToken(ctx context.Context, token string) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	approval, ok := m.byToken[token]
	if !ok {
		return nil, repository.ErrApprovalNotFound
	}
	clone := *approval
	return &clone, nil
}

func (m *mockPortalRepo) RecordView(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, approval := range m.byToken {
		if approval.ID == id {
			approval.ViewCount++
			approval.LastViewedAt = &at
			if approval.FirstViewedAt == nil {
				approval.FirstViewedAt = &at
			}
		}
	}
	return nil
}

func (m *mockPortalRepo) Respond(ctx context.Context, id uuid.UUID, status string, notes *string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, approval := range m.byToken {
		if approval.ID != id {
			continue
		}
		if approval.Status != models.ApprovalStatusPending || at.After(approval.ExpiresAt) {
			return false, nil
		}
		approval.Status = status
		approval.RespondedAt = &at
		approval.ResponseNotes = notes
		return true, nil
	}
	return false, nil
}

func (m *mockPortalRepo) List(ctx context.Context, orgID uuid.UUID, params repository.ListApprovalsParams) ([]models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Approval
	for _, approval := range m.byToken {
		if approval.OrgID != orgID {
			continue
		}
		if params.ClientID != nil && approval.ClientID != *params.ClientID {
			continue
		}
		if params.OnlySent && approval.SentAt == nil {
			continue
		}
		out = append(out, *approval)
	}
	return out, nil
}

// mockClientReader отдаёт клиентов по токену личной страницы.
type mockClientReader struct {
	byToken map[string]*models.Client
}

func (m *mockClientReader) GetByPortalToken(ctx context.Context, token string) (*models.Client, error) {
	if client, ok := m.byToken[token]; ok {
		return client, nil
	}
	return nil, repository.ErrClientNotFound
}

// mockProjectLister отдаёт проекты клиента.
type mockProjectLister struct {
	projects []models.Project
}

func (m *mockProjectLister) List(ctx context.Context, orgID uuid.UUID, params repository.ListProjectsParams) ([]models.Project, error) {
	var out []models.Project
	for _, project := range m.projects {
		if project.OrgID != orgID {
			continue
		}
		if params.ClientID != nil && project.ClientID != *params.ClientID {
			continue
		}
		out = append(out, project)
	}
	return out, nil
}

// mockLinker выдаёт предсказуемые ссылки на файлы.
type mockLinker struct{}

func (m *mockLinker) PresignGet(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error) {
	return "https://files.example.com/" + objectKey, nil
}

// mockUserReader отдаёт сотрудников организации.
type mockUserReader struct {
	users []models.User
}

func (m *mockUserReader) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	return m.users, nil
}

// mockNotifier копит события уведомлений.
type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *mockNotifier) Notify(ctx context.Context, orgID uuid.UUID, event, title, body string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) got() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

// portalFixture собирает сервис портала на моках с настоящей проверкой CSRF.
type portalFixture struct {
	repo      *mockPortalRepo
	clients   *mockClientReader
	projects  *mockProjectLister
	files     *mockFileReader
	csrfStore *mockCsrfStore
	csrf      *CsrfService
	notifier  *mockNotifier
	sender    *captureSender
	auditRepo *recordingAuditRepo
	svc       *PortalService
}

func newPortalFixture(orgID uuid.UUID) *portalFixture {
	repo := newMockPortalRepo()
	clients := &mockClientReader{byToken: make(map[string]*models.Client)}
	projects := &mockProjectLister{}
	files := &mockFileReader{files: make(map[uuid.UUID][]models.ApprovalFile)}
	csrfStore := newMockCsrfStore()
	csrf := NewCsrfService(csrfStore, time.Hour)
	notifier := &mockNotifier{}
	sender := &captureSender{}
	auditRepo := &recordingAuditRepo{}

	svc := NewPortalService(
		repo,
		clients,
		projects,
		files,
		&mockLinker{},
		&mockUserReader{},
		&mockOrgReader{org: &models.Organization{ID: orgID, Name: "Студия Треугольник"}},
		csrf,
		email.NewRenderer(nil),
		sender,
		notifier,
		audit.NewRecorder(auditRepo),
		nil,
	)

	return &portalFixture{
		repo:      repo,
		clients:   clients,
		projects:  projects,
		files:     files,
		csrfStore: csrfStore,
		csrf:      csrf,
		notifier:  notifier,
		sender:    sender,
		auditRepo: auditRepo,
		svc:       svc,
	}
}

func (f *portalFixture) addPending(orgID uuid.UUID, token string) *models.Approval {
	now := time.Now().UTC()
	return f.repo.add(&models.Approval{
		OrgID:       orgID,
		ProjectID:   uuid.New(),
		Token:       token,
		Title:       "Планировка первого этажа",
		Status:      models.ApprovalStatusPending,
		Version:     1,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
		SentAt:      &now,
		ClientID:    uuid.New(),
		ClientName:  "Виктор Смирнов",
		ClientEmail: "viktor@example.com",
		ProjectName: "Дом в Репино",
	})
}

// issuePair выдаёт валидную CSRF-пару для согласования.
func (f *portalFixture) issuePair(t *testing.T, approvalID uuid.UUID) string {
	t.Helper()
	token, err := f.csrf.Issue(context.Background(), approvalID)
	if err != nil {
		t.Fatalf("не удалось выдать CSRF-токен: %v", err)
	}
	return token.Token
}

func TestPortalService_View(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	approval := f.addPending(orgID, "tok-view")
	f.files.files[approval.ID] = []models.ApprovalFile{
		{ID: uuid.New(), ApprovalID: approval.ID, ObjectKey: "org/app/plan.pdf", FileName: "plan.pdf"},
	}

	got, err := f.svc.View(context.Background(), "tok-view", "203.0.113.7")
	if err != nil {
		t.Fatalf("view вернул ошибку: %v", err)
	}

	if got.Title != approval.Title {
		t.Fatalf("ожидалось согласование %q, получили %q", approval.Title, got.Title)
	}
	if len(got.Files) != 1 {
		t.Fatalf("ожидался один файл, получили %d", len(got.Files))
	}
	if !strings.HasPrefix(got.Files[0].URL, "https://files.example.com/") {
		t.Fatalf("файл должен отдаваться по временной ссылке, получили %q", got.Files[0].URL)
	}
}

func TestPortalService_View_UnknownToken(t *testing.T) {
	f := newPortalFixture(uuid.New())

	_, err := f.svc.View(context.Background(), "no-such-token", "")
	if apperror.CodeOf(err) != apperror.ErrCodeNotFound {
		t.Fatalf("неизвестный токен должен давать NOT_FOUND, получили %v", err)
	}
}

func TestPortalService_Respond_Approve(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	approval := f.addPending(orgID, "tok-approve")
	pair := f.issuePair(t, approval.ID)

	got, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-approve",
		Decision:   models.ApprovalStatusApproved,
		CsrfHeader: pair,
		CsrfCookie: pair,
		IP:         "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("respond вернул ошибку: %v", err)
	}

	if got.Status != models.ApprovalStatusApproved {
		t.Fatalf("статус должен стать approved, получили %q", got.Status)
	}
	if got.RespondedAt == nil {
		t.Fatalf("момент ответа должен быть зафиксирован")
	}

	events := f.notifier.got()
	if len(events) != 1 || events[0] != models.NotificationApprovalResponded {
		t.Fatalf("студия должна получить уведомление об ответе, получили %v", events)
	}
	if !containsAction(f.auditRepo.actions(), models.AuditApprovalApproved) {
		t.Fatalf("ответ клиента должен попадать в журнал аудита")
	}
}

func TestPortalService_Respond_ChangesRequireNotes(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	approval := f.addPending(orgID, "tok-changes")
	pair := f.issuePair(t, approval.ID)

	_, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-changes",
		Decision:   models.ApprovalStatusChangesRequested,
		CsrfHeader: pair,
		CsrfCookie: pair,
	})
	if apperror.CodeOf(err) != apperror.ErrCodeValidation {
		t.Fatalf("запрос правок без комментария должен отклоняться, получили %v", err)
	}
}

func TestPortalService_Respond_CsrfMismatch(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	approval := f.addPending(orgID, "tok-csrf")
	pair := f.issuePair(t, approval.ID)

	_, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-csrf",
		Decision:   models.ApprovalStatusApproved,
		CsrfHeader: pair,
		CsrfCookie: "другое-значение",
	})
	if apperror.CodeOf(err) != apperror.ErrCodeCSRF {
		t.Fatalf("расхождение CSRF-пары должно отклоняться, получили %v", err)
	}
}

func TestPortalService_Respond_CsrfFromAnotherApproval(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	f.addPending(orgID, "tok-first")
	other := f.addPending(orgID, "tok-second")
	pair := f.issuePair(t, other.ID)

	_, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-first",
		Decision:   models.ApprovalStatusApproved,
		CsrfHeader: pair,
		CsrfCookie: pair,
	})
	if apperror.CodeOf(err) != apperror.ErrCodeCSRF {
		t.Fatalf("CSRF-токен чужого согласования должен отклоняться, получили %v", err)
	}
}

func TestPortalService_Respond_Expired(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	approval := f.addPending(orgID, "tok-expired")
	f.repo.byToken["tok-expired"].ExpiresAt = time.Now().UTC().Add(-time.Hour)
	pair := f.issuePair(t, approval.ID)

	_, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-expired",
		Decision:   models.ApprovalStatusApproved,
		CsrfHeader: pair,
		CsrfCookie: pair,
	})
	if apperror.CodeOf(err) != apperror.ErrCodeApprovalExpired {
		t.Fatalf("просроченная ссылка должна давать APPROVAL_EXPIRED, получили %v", err)
	}
}

func TestPortalService_Respond_SecondAnswer(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)
	approval := f.addPending(orgID, "tok-twice")
	pair := f.issuePair(t, approval.ID)

	if _, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-twice",
		Decision:   models.ApprovalStatusApproved,
		CsrfHeader: pair,
		CsrfCookie: pair,
	}); err != nil {
		t.Fatalf("первый ответ вернул ошибку: %v", err)
	}

	second := f.issuePair(t, approval.ID)
	_, err := f.svc.Respond(context.Background(), RespondInput{
		Token:      "tok-twice",
		Decision:   models.ApprovalStatusApproved,
		CsrfHeader: second,
		CsrfCookie: second,
	})
	if apperror.CodeOf(err) != apperror.ErrCodeApprovalClosed {
		t.Fatalf("повторный ответ должен давать APPROVAL_CLOSED, получили %v", err)
	}
}

func TestPortalService_Overview(t *testing.T) {
	orgID := uuid.New()
	f := newPortalFixture(orgID)

	client := &models.Client{ID: uuid.New(), OrgID: orgID, Name: "Виктор Смирнов", PortalToken: "client-tok"}
	f.clients.byToken["client-tok"] = client
	f.projects.projects = []models.Project{
		{ID: uuid.New(), OrgID: orgID, ClientID: client.ID, Name: "Дом в Репино"},
		{ID: uuid.New(), OrgID: orgID, ClientID: uuid.New(), Name: "Чужой проект"},
	}

	now := time.Now().UTC()
	sent := f.addPending(orgID, "tok-sent")
	f.repo.byToken["tok-sent"].ClientID = client.ID
	f.repo.byToken["tok-sent"].SentAt = &now

	draft := f.addPending(orgID, "tok-draft")
	f.repo.byToken["tok-draft"].ClientID = client.ID
	f.repo.byToken["tok-draft"].SentAt = nil
	_ = sent
	_ = draft

	overview, err := f.svc.Overview(context.Background(), "client-tok")
	if err != nil {
		t.Fatalf("overview вернул ошибку: %v", err)
	}

	if overview.Client.ID != client.ID {
		t.Fatalf("на странице должен быть сам клиент")
	}
	if len(overview.Projects) != 1 {
		t.Fatalf("клиент должен видеть только свои проекты, получили %d", len(overview.Projects))
	}
	if len(overview.Approvals) != 1 {
		t.Fatalf("черновики клиенту не показываются, получили %d согласований", len(overview.Approvals))
	}
}

func TestPortalService_Overview_UnknownToken(t *testing.T) {
	f := newPortalFixture(uuid.New())

	_, err := f.svc.Overview(context.Background(), "no-such-client")
	if apperror.CodeOf(err) != apperror.ErrCodeNotFound {
		t.Fatalf("неизвестный токен клиента должен давать NOT_FOUND, получили %v", err)
	}
}
