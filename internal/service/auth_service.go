package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	CreateWithOrganization(ctx context.Context, org *models.Organization, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.User, error)
	UpdateRole(ctx context.Context, orgID, id uuid.UUID, role string) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	RotateSession(ctx context.Context, sessionID uuid.UUID, newTokenHash string, expiresAt time.Time) error
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
}

// AuthService инкапсулирует регистрацию, вход и обновление токенов.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
	auditor      *audit.Recorder
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tm *TokenManager, auditor *audit.Recorder) *AuthService {
	return &AuthService{repo: repo, tokenManager: tm, auditor: auditor}
}

// RegisterInput содержит данные регистрации новой организации.
type RegisterInput struct {
	OrganizationName string
	Email            string
	Password         string
	Name             string
	IP               string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IP        string
}

// AuthResult возвращает итог регистрации или входа.
type AuthResult struct {
	User         *models.User
	Organization *models.Organization
	TokenPair    *TokenPair
}

// Register создаёт организацию и её владельца. Email уникален во всей
// системе: один адрес на одну учётную запись.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if err := validation.ValidateOrganizationName(input.OrganizationName); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateEmail(input.Email); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePassword(input.Password); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateUserName(input.Name); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "пользователь с таким email уже существует")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("auth service: check email %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password %w", err)
	}

	// Слаг дополняется случайным суффиксом, чтобы одноимённые студии
	// не конфликтовали при регистрации.
	org := &models.Organization{
		Name: strings.TrimSpace(input.OrganizationName),
		Slug: makeSlug(input.OrganizationName) + "-" + uuid.NewString()[:6],
		Plan: "free",
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(passwordHash),
		Name:         strings.TrimSpace(input.Name),
		Role:         models.UserRoleOwner,
	}

	if err := s.repo.CreateWithOrganization(ctx, org, user); err != nil {
		return nil, fmt.Errorf("auth service: register %w", err)
	}

	pair, err := s.issueSession(ctx, user, nil, input.IP)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      org.ID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &user.ID,
		Action:     models.AuditUserRegistered,
		EntityType: "user",
		EntityID:   &user.ID,
		Details:    map[string]any{"email": email, "organization": org.Name},
		IP:         input.IP,
	})

	return &AuthResult{User: user, Organization: org, TokenPair: pair}, nil
}

// Login проверяет учётные данные и выпускает пару токенов.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth service: login %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	var userAgent *string
	if input.UserAgent != "" {
		userAgent = &input.UserAgent
	}

	pair, err := s.issueSession(ctx, user, userAgent, input.IP)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      user.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &user.ID,
		Action:     models.AuditUserLogin,
		EntityType: "user",
		EntityID:   &user.ID,
		IP:         input.IP,
	})

	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Refresh обменивает refresh-токен на новую пару с ротацией сессии:
// старый токен после обмена недействителен.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokenManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperror.ErrUnauthorized
	}

	session, err := s.repo.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, fmt.Errorf("auth service: refresh %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || session.UserID != userID {
		return nil, apperror.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, fmt.Errorf("auth service: refresh user %w", err)
	}

	pair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh tokens %w", err)
	}

	if err := s.repo.RotateSession(ctx, session.ID, hashToken(pair.RefreshToken), refreshExp); err != nil {
		return nil, fmt.Errorf("auth service: rotate session %w", err)
	}

	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Logout завершает сессию. Незнакомый токен не ошибка: выход идемпотентен.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repo.DeleteSessionByTokenHash(ctx, hashToken(refreshToken)); err != nil {
		return fmt.Errorf("auth service: logout %w", err)
	}
	return nil
}

// Me возвращает текущего пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, fmt.Errorf("auth service: me %w", err)
	}
	return user, nil
}

// Members возвращает сотрудников организации.
func (s *AuthService) Members(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	users, err := s.repo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("auth service: members %w", err)
	}
	return users, nil
}

// AddMemberInput содержит данные нового сотрудника.
type AddMemberInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// AddMember создаёт сотрудника организации. Роль owner так не выдаётся:
// владелец назначается один раз при регистрации организации.
func (s *AuthService) AddMember(ctx context.Context, actor Actor, input AddMemberInput) (*models.User, error) {
	if err := validation.ValidateEmail(input.Email); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePassword(input.Password); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateUserName(input.Name); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if input.Role != models.UserRoleAdmin && input.Role != models.UserRoleMember {
		return nil, apperror.New(apperror.ErrCodeValidation, "роль сотрудника должна быть admin или member")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "пользователь с таким email уже существует")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("auth service: check email %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password %w", err)
	}

	user := &models.User{
		OrgID:        actor.OrgID,
		Email:        email,
		PasswordHash: string(passwordHash),
		Name:         strings.TrimSpace(input.Name),
		Role:         input.Role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("auth service: add member %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditMemberAdded,
		EntityType: "user",
		EntityID:   &user.ID,
		Details:    map[string]any{"email": email, "role": user.Role},
		IP:         actor.IP,
	})

	return user, nil
}

// ChangeMemberRole меняет роль сотрудника. Владельца и себя самого
// менять нельзя.
func (s *AuthService) ChangeMemberRole(ctx context.Context, actor Actor, memberID uuid.UUID, role string) (*models.User, error) {
	if role != models.UserRoleAdmin && role != models.UserRoleMember {
		return nil, apperror.New(apperror.ErrCodeValidation, "роль сотрудника должна быть admin или member")
	}
	if memberID == actor.UserID {
		return nil, apperror.New(apperror.ErrCodeValidation, "свою роль изменить нельзя")
	}

	member, err := s.member(ctx, actor.OrgID, memberID)
	if err != nil {
		return nil, err
	}
	if member.Role == models.UserRoleOwner {
		return nil, apperror.New(apperror.ErrCodeForbidden, "роль владельца изменить нельзя")
	}

	if err := s.repo.UpdateRole(ctx, actor.OrgID, memberID, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.New(apperror.ErrCodeNotFound, "сотрудник не найден")
		}
		return nil, fmt.Errorf("auth service: change role %w", err)
	}
	member.Role = role

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditMemberRoleChanged,
		EntityType: "user",
		EntityID:   &memberID,
		Details:    map[string]any{"role": role},
		IP:         actor.IP,
	})

	return member, nil
}

// RemoveMember удаляет сотрудника вместе с его сессиями. Владельца и
// себя самого удалить нельзя.
func (s *AuthService) RemoveMember(ctx context.Context, actor Actor, memberID uuid.UUID) error {
	if memberID == actor.UserID {
		return apperror.New(apperror.ErrCodeValidation, "удалить собственную учётную запись нельзя")
	}

	member, err := s.member(ctx, actor.OrgID, memberID)
	if err != nil {
		return err
	}
	if member.Role == models.UserRoleOwner {
		return apperror.New(apperror.ErrCodeForbidden, "владельца организации удалить нельзя")
	}

	if err := s.repo.Delete(ctx, actor.OrgID, memberID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "сотрудник не найден")
		}
		return fmt.Errorf("auth service: remove member %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditMemberRemoved,
		EntityType: "user",
		EntityID:   &memberID,
		Details:    map[string]any{"email": member.Email},
		IP:         actor.IP,
	})

	return nil
}

// member возвращает сотрудника, убеждаясь, что он из организации актора.
func (s *AuthService) member(ctx context.Context, orgID, memberID uuid.UUID) (*models.User, error) {
	member, err := s.repo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.New(apperror.ErrCodeNotFound, "сотрудник не найден")
		}
		return nil, fmt.Errorf("auth service: get member %w", err)
	}
	if member.OrgID != orgID {
		return nil, apperror.New(apperror.ErrCodeNotFound, "сотрудник не найден")
	}
	return member, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, userAgent *string, ip string) (*TokenPair, error) {
	pair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: generate tokens %w", err)
	}

	session := &models.Session{
		UserID:           user.ID,
		RefreshTokenHash: hashToken(pair.RefreshToken),
		UserAgent:        userAgent,
		ExpiresAt:        refreshExp,
	}
	if ip != "" {
		session.IP = &ip
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("auth service: create session %w", err)
	}

	return pair, nil
}

// hashToken сводит refresh-токен к хэшу для хранения: утечка таблицы
// сессий не раскрывает сами токены.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// makeSlug строит слаг организации из названия. Неподходящие символы
// заменяются дефисом, кириллица не транслитерируется.
func makeSlug(name string) string {
	var b strings.Builder
	prevDash := true

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "org-" + uuid.NewString()[:8]
	}
	return slug
}
