package service

import (
	"context"
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

// mockApprovalRepo реализует ApprovalRepository для тестов.
type mockApprovalRepo struct {
	byID map[uuid.UUID]*models.Approval
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{byID: make(map[uuid.UUID]*models.Approval)}
}

func (m *mockApprovalRepo) add(approval *models.Approval) *models.Approval {
	if approval.ID == uuid.Nil {
		approval.ID = uuid.New()
	}
	m.byID[approval.ID] = approval
	return approval
}

func (m *mockApprovalRepo) Create(ctx context.Context, approval *models.Approval) error {
	approval.ID = uuid.New()
	now := time.Now().UTC()
	approval.CreatedAt = now
	approval.UpdatedAt = now
	m.byID[approval.ID] = approval
	return nil
}

func (m *mockApprovalRepo) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Approval, error) {
	approval, ok := m.byID[id]
	if !ok || approval.OrgID != orgID {
		return nil, repository.ErrApprovalNotFound
	}
	clone := *approval
	return &clone, nil
}

func (m *mockApprovalRepo) List(ctx context.Context, orgID uuid.UUID, params repository.ListApprovalsParams) ([]models.Approval, error) {
	var out []models.Approval
	for _, approval := range m.byID {
		if approval.OrgID == orgID {
			out = append(out, *approval)
		}
	}
	return out, nil
}

func (m *mockApprovalRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	if approval, ok := m.byID[id]; ok {
		approval.SentAt = &sentAt
	}
	return nil
}

func (m *mockApprovalRepo) Resubmit(ctx context.Context, id uuid.UUID, expiresAt, sentAt time.Time) (bool, error) {
	approval, ok := m.byID[id]
	if !ok || approval.Status != models.ApprovalStatusChangesRequested {
		return false, nil
	}
	approval.Status = models.ApprovalStatusPending
	approval.Version++
	approval.ExpiresAt = expiresAt
	approval.SentAt = &sentAt
	approval.RespondedAt = nil
	approval.ResponseNotes = nil
	approval.ReminderCount = 0
	approval.LastReminderAt = nil
	return true, nil
}

func (m *mockApprovalRepo) Revoke(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	approval, ok := m.byID[id]
	if !ok || approval.OrgID != orgID || approval.Status != models.ApprovalStatusPending {
		return false, nil
	}
	delete(m.byID, id)
	return true, nil
}

func (m *mockApprovalRepo) IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	if approval, ok := m.byID[id]; ok {
		approval.ReminderCount++
		approval.LastReminderAt = &at
	}
	return nil
}

// mockProjectReader отдаёт проекты по идентификатору.
type mockProjectReader struct {
	byID map[uuid.UUID]*models.Project
}

func (m *mockProjectReader) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Project, error) {
	project, ok := m.byID[id]
	if !ok || project.OrgID != orgID {
		return nil, repository.ErrProjectNotFound
	}
	return project, nil
}

// mockOrgReader отдаёт одну организацию.
type mockOrgReader struct {
	org *models.Organization
}

func (m *mockOrgReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return m.org, nil
}

// mockReminderWriter копит созданные напоминания.
type mockReminderWriter struct {
	mu        sync.Mutex
	reminders []models.Reminder
}

func (m *mockReminderWriter) Create(ctx context.Context, reminder *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, *reminder)
	return nil
}

// mockFileReader отдаёт файлы согласования.
type mockFileReader struct {
	files map[uuid.UUID][]models.ApprovalFile
}

func (m *mockFileReader) ListByApproval(ctx context.Context, approvalID uuid.UUID) ([]models.ApprovalFile, error) {
	return m.files[approvalID], nil
}

// captureSender копит отправленные письма.
type captureSender struct {
	mu       sync.Mutex
	messages []email.Message
}

func (s *captureSender) Send(ctx context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *captureSender) sent() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]email.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// recordingAuditRepo копит записи журнала аудита.
type recordingAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (r *recordingAuditRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *recordingAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func containsAction(actions []string, want string) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

// approvalFixture собирает сервис согласований на моках.
type approvalFixture struct {
	repo      *mockApprovalRepo
	projects  *mockProjectReader
	reminders *mockReminderWriter
	sender    *captureSender
	auditRepo *recordingAuditRepo
	svc       *ApprovalService
}

func newApprovalFixture(orgID uuid.UUID) *approvalFixture {
	repo := newMockApprovalRepo()
	projects := &mockProjectReader{byID: make(map[uuid.UUID]*models.Project)}
	reminders := &mockReminderWriter{}
	sender := &captureSender{}
	auditRepo := &recordingAuditRepo{}

	svc := NewApprovalService(
		repo,
		projects,
		&mockOrgReader{org: &models.Organization{ID: orgID, Name: "Студия Треугольник"}},
		reminders,
		&mockFileReader{files: make(map[uuid.UUID][]models.ApprovalFile)},
		email.NewRenderer(nil),
		sender,
		audit.NewRecorder(auditRepo),
		nil,
		ApprovalServiceConfig{
			PortalBaseURL:     "https://portal.example.com",
			DefaultExpiryDays: 14,
			ReminderCooldown:  4 * time.Hour,
		},
	)

	return &approvalFixture{
		repo:      repo,
		projects:  projects,
		reminders: reminders,
		sender:    sender,
		auditRepo: auditRepo,
		svc:       svc,
	}
}

func (f *approvalFixture) addProject(orgID uuid.UUID) *models.Project {
	project := &models.Project{
		ID:         uuid.New(),
		OrgID:      orgID,
		ClientID:   uuid.New(),
		Name:       "Дом в Репино",
		Stage:      models.ProjectStageConcept,
		Status:     models.ProjectStatusActive,
		ClientName: "Виктор Смирнов",
	}
	f.projects.byID[project.ID] = project
	return project
}

func (f *approvalFixture) addPending(orgID uuid.UUID, sentAt *time.Time) *models.Approval {
	return f.repo.add(&models.Approval{
		OrgID:       orgID,
		ProjectID:   uuid.New(),
		Token:       "tok-" + uuid.NewString()[:8],
		Title:       "Планировка первого этажа",
		Status:      models.ApprovalStatusPending,
		Version:     1,
		ExpiresAt:   time.Now().UTC().Add(7 * 24 * time.Hour),
		SentAt:      sentAt,
		ClientName:  "Виктор Смирнов",
		ClientEmail: "viktor@example.com",
		ProjectName: "Дом в Репино",
	})
}

func TestApprovalService_Create(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	project := f.addProject(orgID)
	actor := Actor{UserID: uuid.New(), OrgID: orgID}

	approval, err := f.svc.Create(context.Background(), actor, CreateApprovalInput{
		ProjectID: project.ID,
		Title:     "Эскиз фасада",
	})
	if err != nil {
		t.Fatalf("create вернул ошибку: %v", err)
	}

	if approval.Status != models.ApprovalStatusPending {
		t.Fatalf("новое согласование должно быть pending, получили %q", approval.Status)
	}
	if approval.Token == "" {
		t.Fatalf("токен портала должен быть выдан")
	}
	if approval.Version != 1 {
		t.Fatalf("первая версия должна быть 1, получили %d", approval.Version)
	}

	// Срок по умолчанию 14 дней.
	wantExpiry := time.Now().UTC().Add(14 * 24 * time.Hour)
	if diff := approval.ExpiresAt.Sub(wantExpiry); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("срок действия отличается от ожидаемого: %v", approval.ExpiresAt)
	}

	if !containsAction(f.auditRepo.actions(), models.AuditApprovalCreated) {
		t.Fatalf("создание должно попадать в журнал аудита")
	}
}

func TestApprovalService_Create_ForeignProject(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	foreign := f.addProject(uuid.New())

	_, err := f.svc.Create(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, CreateApprovalInput{
		ProjectID: foreign.ID,
		Title:     "Эскиз фасада",
	})
	if apperror.CodeOf(err) != apperror.ErrCodeNotFound {
		t.Fatalf("чужой проект должен давать NOT_FOUND, получили %v", err)
	}
}

func TestApprovalService_Create_ShortTitle(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	project := f.addProject(orgID)

	_, err := f.svc.Create(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, CreateApprovalInput{
		ProjectID: project.ID,
		Title:     "аб",
	})
	if apperror.CodeOf(err) != apperror.ErrCodeValidation {
		t.Fatalf("короткий заголовок должен отклоняться, получили %v", err)
	}
}

func TestApprovalService_Send(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)
	actor := Actor{UserID: uuid.New(), OrgID: orgID}

	sent, err := f.svc.Send(context.Background(), actor, approval.ID)
	if err != nil {
		t.Fatalf("send вернул ошибку: %v", err)
	}
	if sent.SentAt == nil {
		t.Fatalf("после отправки должен быть установлен sent_at")
	}

	messages := f.sender.sent()
	if len(messages) != 1 {
		t.Fatalf("ожидалось одно письмо, получили %d", len(messages))
	}
	if messages[0].To != "viktor@example.com" {
		t.Fatalf("письмо должно уйти клиенту, ушло на %s", messages[0].To)
	}

	if !containsAction(f.auditRepo.actions(), models.AuditApprovalSent) {
		t.Fatalf("отправка должна попадать в журнал аудита")
	}
}

func TestApprovalService_Send_Expired(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)
	f.repo.byID[approval.ID].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	_, err := f.svc.Send(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if apperror.CodeOf(err) != apperror.ErrCodeApprovalExpired {
		t.Fatalf("просроченное согласование не отправляется, получили %v", err)
	}
}

func TestApprovalService_Send_AlreadyAnswered(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)
	f.repo.byID[approval.ID].Status = models.ApprovalStatusApproved

	_, err := f.svc.Send(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if apperror.CodeOf(err) != apperror.ErrCodeApprovalClosed {
		t.Fatalf("закрытое согласование не отправляется, получили %v", err)
	}
}

func TestApprovalService_Resubmit(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	now := time.Now().UTC()
	notes := "Передвинуть лестницу"
	approval := f.addPending(orgID, &now)
	stored := f.repo.byID[approval.ID]
	stored.Status = models.ApprovalStatusChangesRequested
	stored.RespondedAt = &now
	stored.ResponseNotes = &notes
	stored.ReminderCount = 2

	updated, err := f.svc.Resubmit(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if err != nil {
		t.Fatalf("resubmit вернул ошибку: %v", err)
	}

	if updated.Status != models.ApprovalStatusPending {
		t.Fatalf("после resubmit статус должен быть pending, получили %q", updated.Status)
	}
	if updated.Version != 2 {
		t.Fatalf("версия должна вырасти до 2, получили %d", updated.Version)
	}
	if updated.RespondedAt != nil || updated.ResponseNotes != nil {
		t.Fatalf("прежний ответ должен быть очищен")
	}
	if updated.ReminderCount != 0 {
		t.Fatalf("счётчик напоминаний должен быть сброшен, получили %d", updated.ReminderCount)
	}
}

func TestApprovalService_Resubmit_FromPending(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)

	_, err := f.svc.Resubmit(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if apperror.CodeOf(err) != apperror.ErrCodeResubmitNotAllowed {
		t.Fatalf("resubmit разрешён только из changes_requested, получили %v", err)
	}
}

func TestApprovalService_Remind(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	now := time.Now().UTC()
	approval := f.addPending(orgID, &now)
	actor := Actor{UserID: uuid.New(), OrgID: orgID}

	if err := f.svc.Remind(context.Background(), actor, approval.ID); err != nil {
		t.Fatalf("remind вернул ошибку: %v", err)
	}

	if got := f.repo.byID[approval.ID].ReminderCount; got != 1 {
		t.Fatalf("счётчик напоминаний должен стать 1, получили %d", got)
	}
	if len(f.reminders.reminders) != 1 || f.reminders.reminders[0].Kind != models.ReminderKindManual {
		t.Fatalf("должно быть зафиксировано одно ручное напоминание")
	}
	if len(f.sender.sent()) != 1 {
		t.Fatalf("клиенту должно уйти письмо-напоминание")
	}
}

func TestApprovalService_Remind_Cooldown(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	now := time.Now().UTC()
	approval := f.addPending(orgID, &now)
	recent := now.Add(-time.Hour)
	f.repo.byID[approval.ID].LastReminderAt = &recent

	err := f.svc.Remind(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if apperror.CodeOf(err) != apperror.ErrCodeConflict {
		t.Fatalf("повторное напоминание внутри кулдауна должно отклоняться, получили %v", err)
	}
	if len(f.sender.sent()) != 0 {
		t.Fatalf("письмо при отклонённом напоминании уходить не должно")
	}
}

func TestApprovalService_Remind_NotSentYet(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)

	err := f.svc.Remind(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if apperror.CodeOf(err) != apperror.ErrCodeValidation {
		t.Fatalf("напоминание по неотправленному согласованию должно отклоняться, получили %v", err)
	}
}

func TestApprovalService_Revoke(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)
	actor := Actor{UserID: uuid.New(), OrgID: orgID}

	if err := f.svc.Revoke(context.Background(), actor, approval.ID); err != nil {
		t.Fatalf("revoke вернул ошибку: %v", err)
	}
	if _, ok := f.repo.byID[approval.ID]; ok {
		t.Fatalf("отозванное согласование должно быть удалено")
	}
}

func TestApprovalService_Revoke_AfterAnswer(t *testing.T) {
	orgID := uuid.New()
	f := newApprovalFixture(orgID)
	approval := f.addPending(orgID, nil)
	f.repo.byID[approval.ID].Status = models.ApprovalStatusApproved

	err := f.svc.Revoke(context.Background(), Actor{UserID: uuid.New(), OrgID: orgID}, approval.ID)
	if apperror.CodeOf(err) != apperror.ErrCodeApprovalClosed {
		t.Fatalf("согласование с ответом не отзывается, получили %v", err)
	}
}
