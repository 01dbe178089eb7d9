package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// mockAuthRepo хранит пользователей, организации и сессии в памяти.
// Сессии лежат по хэшу refresh-токена, как в таблице sessions.
type mockAuthRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	sessions map[string]*models.Session
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[string]*models.Session),
	}
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockAuthRepo) CreateWithOrganization(ctx context.Context, org *models.Organization, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org.ID = uuid.New()
	org.CreatedAt = time.Now().UTC()
	user.ID = uuid.New()
	user.OrgID = org.ID
	user.CreatedAt = org.CreatedAt
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *mockAuthRepo) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, user := range m.users {
		if user.OrgID == orgID {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (m *mockAuthRepo) UpdateRole(ctx context.Context, orgID, id uuid.UUID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.OrgID != orgID {
		return repository.ErrUserNotFound
	}
	user.Role = role
	return nil
}

func (m *mockAuthRepo) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.OrgID != orgID {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockAuthRepo) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = uuid.New()
	session.CreatedAt = time.Now().UTC()
	clone := *session
	m.sessions[session.RefreshTokenHash] = &clone
	return nil
}

func (m *mockAuthRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (m *mockAuthRepo) RotateSession(ctx context.Context, sessionID uuid.UUID, newTokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, session := range m.sessions {
		if session.ID == sessionID {
			delete(m.sessions, hash)
			session.RefreshTokenHash = newTokenHash
			session.ExpiresAt = expiresAt
			m.sessions[newTokenHash] = session
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (m *mockAuthRepo) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m *mockAuthRepo) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type authFixture struct {
	repo      *mockAuthRepo
	auditRepo *recordingAuditRepo
	svc       *AuthService
}

func newAuthFixture() *authFixture {
	repo := newMockAuthRepo()
	auditRepo := &recordingAuditRepo{}
	tm := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
	return &authFixture{
		repo:      repo,
		auditRepo: auditRepo,
		svc:       NewAuthService(repo, tm, audit.NewRecorder(auditRepo)),
	}
}

// register регистрирует студию с владельцем anna@studio.ru.
func (f *authFixture) register(t *testing.T) *AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), RegisterInput{
		OrganizationName: "Студия Треугольник",
		Email:            "anna@studio.ru",
		Password:         "Secret123",
		Name:             "Анна Павлова",
	})
	if err != nil {
		t.Fatalf("регистрация вернула ошибку: %v", err)
	}
	return result
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	f := newAuthFixture()

	result := f.register(t)
	if result.User.Role != models.UserRoleOwner {
		t.Fatalf("первый пользователь должен стать владельцем, получили %q", result.User.Role)
	}
	if result.Organization == nil || result.Organization.Slug == "" {
		t.Fatalf("организация должна получить слаг")
	}
	if result.TokenPair.RefreshToken == "" {
		t.Fatalf("регистрация должна выдать пару токенов")
	}
	if f.repo.sessionCount() != 1 {
		t.Fatalf("после регистрации должна существовать одна сессия, получили %d", f.repo.sessionCount())
	}

	logged, err := f.svc.Login(context.Background(), LoginInput{Email: "Anna@studio.ru", Password: "Secret123"})
	if err != nil {
		t.Fatalf("вход вернул ошибку: %v", err)
	}
	if logged.User.ID != result.User.ID {
		t.Fatalf("вход должен находить зарегистрированного пользователя")
	}

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "anna@studio.ru", Password: "WrongPass1"})
	if apperror.CodeOf(err) != apperror.ErrCodeUnauthorized {
		t.Fatalf("неверный пароль должен давать UNAUTHORIZED, получили %v", err)
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.register(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		OrganizationName: "Вторая студия",
		Email:            "ANNA@studio.ru",
		Password:         "Secret123",
		Name:             "Другая Анна",
	})
	if apperror.CodeOf(err) != apperror.ErrCodeConflict {
		t.Fatalf("повторный email должен давать CONFLICT, получили %v", err)
	}
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Register(context.Background(), RegisterInput{
		OrganizationName: "Студия Треугольник",
		Email:            "anna@studio.ru",
		Password:         "secret",
		Name:             "Анна Павлова",
	})
	if apperror.CodeOf(err) != apperror.ErrCodeValidation {
		t.Fatalf("слабый пароль должен отклоняться, получили %v", err)
	}
}

func TestAuthService_Refresh_RotatesSession(t *testing.T) {
	f := newAuthFixture()
	result := f.register(t)
	oldToken := result.TokenPair.RefreshToken

	refreshed, err := f.svc.Refresh(context.Background(), oldToken)
	if err != nil {
		t.Fatalf("обмен refresh-токена вернул ошибку: %v", err)
	}
	if refreshed.TokenPair.RefreshToken == oldToken {
		t.Fatalf("обмен должен выдавать новый refresh-токен")
	}
	if f.repo.sessionCount() != 1 {
		t.Fatalf("ротация не плодит сессии, получили %d", f.repo.sessionCount())
	}

	// Старый токен после ротации мёртв.
	_, err = f.svc.Refresh(context.Background(), oldToken)
	if apperror.CodeOf(err) != apperror.ErrCodeUnauthorized {
		t.Fatalf("старый refresh-токен должен отклоняться, получили %v", err)
	}
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Refresh(context.Background(), "не-токен")
	if apperror.CodeOf(err) != apperror.ErrCodeUnauthorized {
		t.Fatalf("мусорный refresh-токен должен давать UNAUTHORIZED, получили %v", err)
	}
}

func TestAuthService_Logout_Idempotent(t *testing.T) {
	f := newAuthFixture()
	result := f.register(t)

	if err := f.svc.Logout(context.Background(), result.TokenPair.RefreshToken); err != nil {
		t.Fatalf("выход вернул ошибку: %v", err)
	}
	if f.repo.sessionCount() != 0 {
		t.Fatalf("после выхода сессий быть не должно, получили %d", f.repo.sessionCount())
	}

	// Повторный выход и выход без токена проходят молча.
	if err := f.svc.Logout(context.Background(), result.TokenPair.RefreshToken); err != nil {
		t.Fatalf("повторный выход вернул ошибку: %v", err)
	}
	if err := f.svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("выход без токена вернул ошибку: %v", err)
	}
}

func TestAuthService_AddMember(t *testing.T) {
	f := newAuthFixture()
	owner := f.register(t)
	actor := Actor{UserID: owner.User.ID, OrgID: owner.User.OrgID}

	member, err := f.svc.AddMember(context.Background(), actor, AddMemberInput{
		Email:    "boris@studio.ru",
		Name:     "Борис Ильин",
		Password: "Secret123",
		Role:     models.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("добавление сотрудника вернуло ошибку: %v", err)
	}
	if member.OrgID != owner.User.OrgID || member.Role != models.UserRoleAdmin {
		t.Fatalf("сотрудник должен попасть в организацию актора с ролью admin")
	}
	if !containsAction(f.auditRepo.actions(), models.AuditMemberAdded) {
		t.Fatalf("добавление сотрудника должно попадать в журнал аудита")
	}
}

func TestAuthService_AddMember_OwnerRole(t *testing.T) {
	f := newAuthFixture()
	owner := f.register(t)
	actor := Actor{UserID: owner.User.ID, OrgID: owner.User.OrgID}

	_, err := f.svc.AddMember(context.Background(), actor, AddMemberInput{
		Email:    "boris@studio.ru",
		Name:     "Борис Ильин",
		Password: "Secret123",
		Role:     models.UserRoleOwner,
	})
	if apperror.CodeOf(err) != apperror.ErrCodeValidation {
		t.Fatalf("роль owner через добавление сотрудника должна отклоняться, получили %v", err)
	}
}

func TestAuthService_ChangeMemberRole(t *testing.T) {
	f := newAuthFixture()
	owner := f.register(t)
	actor := Actor{UserID: owner.User.ID, OrgID: owner.User.OrgID}

	member, err := f.svc.AddMember(context.Background(), actor, AddMemberInput{
		Email:    "boris@studio.ru",
		Name:     "Борис Ильин",
		Password: "Secret123",
		Role:     models.UserRoleMember,
	})
	if err != nil {
		t.Fatalf("добавление сотрудника вернуло ошибку: %v", err)
	}

	changed, err := f.svc.ChangeMemberRole(context.Background(), actor, member.ID, models.UserRoleAdmin)
	if err != nil {
		t.Fatalf("смена роли вернула ошибку: %v", err)
	}
	if changed.Role != models.UserRoleAdmin {
		t.Fatalf("роль должна смениться на admin, получили %q", changed.Role)
	}

	// Себя и владельца менять нельзя.
	if _, err := f.svc.ChangeMemberRole(context.Background(), actor, actor.UserID, models.UserRoleMember); apperror.CodeOf(err) != apperror.ErrCodeValidation {
		t.Fatalf("смена собственной роли должна отклоняться, получили %v", err)
	}
	memberActor := Actor{UserID: member.ID, OrgID: owner.User.OrgID}
	if _, err := f.svc.ChangeMemberRole(context.Background(), memberActor, owner.User.ID, models.UserRoleMember); apperror.CodeOf(err) != apperror.ErrCodeForbidden {
		t.Fatalf("смена роли владельца должна давать FORBIDDEN, получили %v", err)
	}
}

func TestAuthService_RemoveMember(t *testing.T) {
	f := newAuthFixture()
	owner := f.register(t)
	actor := Actor{UserID: owner.User.ID, OrgID: owner.User.OrgID}

	member, err := f.svc.AddMember(context.Background(), actor, AddMemberInput{
		Email:    "boris@studio.ru",
		Name:     "Борис Ильин",
		Password: "Secret123",
		Role:     models.UserRoleMember,
	})
	if err != nil {
		t.Fatalf("добавление сотрудника вернуло ошибку: %v", err)
	}

	// Владельца удалить нельзя.
	memberActor := Actor{UserID: member.ID, OrgID: owner.User.OrgID}
	if err := f.svc.RemoveMember(context.Background(), memberActor, owner.User.ID); apperror.CodeOf(err) != apperror.ErrCodeForbidden {
		t.Fatalf("удаление владельца должно давать FORBIDDEN, получили %v", err)
	}

	if err := f.svc.RemoveMember(context.Background(), actor, member.ID); err != nil {
		t.Fatalf("удаление сотрудника вернуло ошибку: %v", err)
	}
	if _, err := f.repo.GetByID(context.Background(), member.ID); err == nil {
		t.Fatalf("сотрудник должен быть удалён")
	}
}

func TestAuthService_RemoveMember_ForeignOrg(t *testing.T) {
	f := newAuthFixture()
	owner := f.register(t)

	stranger, err := f.svc.Register(context.Background(), RegisterInput{
		OrganizationName: "Чужая студия",
		Email:            "vera@another.ru",
		Password:         "Secret123",
		Name:             "Вера Козлова",
	})
	if err != nil {
		t.Fatalf("регистрация второй студии вернула ошибку: %v", err)
	}

	actor := Actor{UserID: owner.User.ID, OrgID: owner.User.OrgID}
	if err := f.svc.RemoveMember(context.Background(), actor, stranger.User.ID); apperror.CodeOf(err) != apperror.ErrCodeNotFound {
		t.Fatalf("сотрудник чужой организации должен быть невидим, получили %v", err)
	}
}
