package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/http/middleware"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// authStubRepo хранит пользователей и сессии в памяти.
type authStubRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	sessions map[string]*models.Session
}

func newAuthStubRepo() *authStubRepo {
	return &authStubRepo{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[string]*models.Session),
	}
}

func (s *authStubRepo) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.New()
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *authStubRepo) CreateWithOrganization(ctx context.Context, org *models.Organization, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org.ID = uuid.New()
	user.ID = uuid.New()
	user.OrgID = org.ID
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *authStubRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *authStubRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *authStubRepo) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	return nil, nil
}

func (s *authStubRepo) UpdateRole(ctx context.Context, orgID, id uuid.UUID, role string) error {
	return repository.ErrUserNotFound
}

func (s *authStubRepo) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return repository.ErrUserNotFound
}

func (s *authStubRepo) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = uuid.New()
	clone := *session
	s.sessions[session.RefreshTokenHash] = &clone
	return nil
}

func (s *authStubRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *authStubRepo) RotateSession(ctx context.Context, sessionID uuid.UUID, newTokenHash string, expiresAt time.Time) error {
	return nil
}

func (s *authStubRepo) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	return nil
}

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tm := service.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
	authSvc := service.NewAuthService(newAuthStubRepo(), tm, audit.NewRecorder(&fakeAuditStore{}))
	handler := NewAuthHandler(authSvc)

	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	r.POST("/api/auth/register", handler.Register)
	r.POST("/api/auth/login", handler.Login)
	r.GET("/api/auth/me", handler.Me)

	return r
}

func TestAuthHandler_RegisterAndLogin(t *testing.T) {
	r := newAuthRouter(t)

	body := `{"organization_name":"Студия Треугольник","email":"anna@studio.ru","password":"Secret123","name":"Анна Павлова"}`
	req, _ := http.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.UserRoleOwner, resp.User.Role)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	login := `{"email":"anna@studio.ru","password":"Secret123"}`
	req, _ = http.NewRequest("POST", "/api/auth/login", strings.NewReader(login))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	r := newAuthRouter(t)

	body := `{"organization_name":"Студия Треугольник","email":"anna@studio.ru","password":"Secret123","name":"Анна Павлова"}`
	req, _ := http.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	login := `{"email":"anna@studio.ru","password":"WrongPass1"}`
	req, _ = http.NewRequest("POST", "/api/auth/login", strings.NewReader(login))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestAuthHandler_Register_MissingFields(t *testing.T) {
	r := newAuthRouter(t)

	req, _ := http.NewRequest("POST", "/api/auth/register", strings.NewReader(`{"email":"anna@studio.ru"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestAuthHandler_Me_Unauthorized(t *testing.T) {
	r := newAuthRouter(t)

	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_ChangeMemberRole_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tm := service.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
	authSvc := service.NewAuthService(newAuthStubRepo(), tm, audit.NewRecorder(&fakeAuditStore{}))
	handler := NewAuthHandler(authSvc)

	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		c.Set(middleware.ContextOrgIDKey, uuid.New())
		c.Set(middleware.ContextRoleKey, models.UserRoleOwner)
	})
	r.PUT("/api/members/:id/role", handler.ChangeMemberRole)

	req, _ := http.NewRequest("PUT", "/api/members/not-a-uuid/role", strings.NewReader(`{"role":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}
