package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/integrations/dropbox"
	"github.com/approvhq/approv-backend/internal/integrations/monday"
	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// oauthStateTTL срок жизни state-токена между редиректом на провайдера
// и возвратом на callback.
const oauthStateTTL = 10 * time.Minute

// MondayAPI описывает операции Monday, используемые сервисом.
type MondayAPI interface {
	ListBoards(ctx context.Context) ([]monday.Board, error)
	CreateItem(ctx context.Context, boardID, name string) (string, error)
	SetColumnValue(ctx context.Context, boardID, itemID, columnID, value string) error
}

// DropboxAPI описывает операции Dropbox, используемые сервисом.
type DropboxAPI interface {
	ListFolder(ctx context.Context, path string) ([]dropbox.Entry, error)
	TemporaryLink(ctx context.Context, path string) (string, string, error)
}

// MondayItemWriter привязывает согласование к элементу доски Monday.
type MondayItemWriter interface {
	SetMondayItem(ctx context.Context, id uuid.UUID, itemID string) error
}

// mondaySettings хранит настройки синхронизации с Monday в поле settings.
type mondaySettings struct {
	BoardID        string `json:"board_id"`
	StatusColumnID string `json:"status_column_id"`
}

// mondayStatusLabels задаёт подписи статусной колонки Monday для состояний
// согласования.
var mondayStatusLabels = map[string]string{
	models.ApprovalStatusApproved:         "Approved",
	models.ApprovalStatusChangesRequested: "Changes requested",
}

// IntegrationService подключает внешние сервисы по OAuth2 и гоняет
// тонкую синхронизацию: элемент на доске Monday на каждое отправленное
// согласование и файлы Dropbox как материалы.
type IntegrationService struct {
	repo         *repository.IntegrationRepository
	items        MondayItemWriter
	auditor      *audit.Recorder
	mondayOAuth  *oauth2.Config
	dropboxOAuth *oauth2.Config
	stateSecret  []byte
	log          *logrus.Entry

	// Фабрики клиентов, подменяются в тестах.
	mondayClient  func(token string) MondayAPI
	dropboxClient func(token string) DropboxAPI
}

// NewIntegrationService создаёт сервис интеграций. Конфигурация OAuth
// любого провайдера может быть nil, тогда его подключение недоступно.
func NewIntegrationService(
	repo *repository.IntegrationRepository,
	items MondayItemWriter,
	auditor *audit.Recorder,
	mondayOAuth *oauth2.Config,
	dropboxOAuth *oauth2.Config,
	stateSecret string,
) *IntegrationService {
	return &IntegrationService{
		repo:         repo,
		items:        items,
		auditor:      auditor,
		mondayOAuth:  mondayOAuth,
		dropboxOAuth: dropboxOAuth,
		stateSecret:  []byte(stateSecret),
		log:          logger.WithComponent("integration_service"),
		mondayClient: func(token string) MondayAPI {
			return monday.NewClient(token)
		},
		dropboxClient: func(token string) DropboxAPI {
			return dropbox.NewClient(token)
		},
	}
}

// List возвращает подключения организации. Токены в ответ не попадают.
func (s *IntegrationService) List(ctx context.Context, orgID uuid.UUID) ([]models.IntegrationAccount, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

// Connect возвращает URL авторизации провайдера. Организация и инициатор
// зашиваются в подписанный state и проверяются на callback.
func (s *IntegrationService) Connect(ctx context.Context, actor Actor, provider string) (string, error) {
	cfg, err := s.oauthConfig(provider)
	if err != nil {
		return "", err
	}

	state, err := s.signState(actor, provider)
	if err != nil {
		return "", fmt.Errorf("integration service: sign state %w", err)
	}

	if provider == models.IntegrationProviderDropbox {
		return cfg.AuthCodeURL(state, dropbox.OfflineAccess), nil
	}
	return cfg.AuthCodeURL(state), nil
}

// Callback завершает авторизацию: проверяет state, меняет код на токены
// и сохраняет подключение организации.
func (s *IntegrationService) Callback(ctx context.Context, provider, code, state, ip string) error {
	orgID, userID, err := s.parseState(state, provider)
	if err != nil {
		return apperror.New(apperror.ErrCodeForbidden, "state не прошёл проверку")
	}

	cfg, err := s.oauthConfig(provider)
	if err != nil {
		return err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "обмен кода авторизации не удался")
	}

	account := &models.IntegrationAccount{
		OrgID:       orgID,
		Provider:    provider,
		AccessToken: token.AccessToken,
	}
	if token.RefreshToken != "" {
		refresh := token.RefreshToken
		account.RefreshToken = &refresh
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		account.TokenExpiry = &expiry
	}

	if err := s.repo.Upsert(ctx, account); err != nil {
		return fmt.Errorf("integration service: callback %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      orgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &userID,
		Action:     models.AuditIntegrationConnected,
		EntityType: "integration",
		EntityID:   &account.ID,
		Details:    map[string]any{"provider": provider},
		IP:         ip,
	})

	return nil
}

// Disconnect отключает провайдера и забывает его токены.
func (s *IntegrationService) Disconnect(ctx context.Context, actor Actor, provider string) error {
	if !validProvider(provider) {
		return apperror.New(apperror.ErrCodeValidation, "неизвестный провайдер")
	}

	if err := s.repo.Delete(ctx, actor.OrgID, provider); err != nil {
		if errors.Is(err, repository.ErrIntegrationNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "интеграция не подключена")
		}
		return fmt.Errorf("integration service: disconnect %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditIntegrationDisconnected,
		EntityType: "integration",
		Details:    map[string]any{"provider": provider},
		IP:         actor.IP,
	})

	return nil
}

// ListBoards возвращает доски Monday, доступные подключённой учётной записи.
func (s *IntegrationService) ListBoards(ctx context.Context, orgID uuid.UUID) ([]monday.Board, error) {
	account, err := s.account(ctx, orgID, models.IntegrationProviderMonday)
	if err != nil {
		return nil, err
	}

	boards, err := s.mondayClient(account.AccessToken).ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("integration service: list boards %w", err)
	}

	return boards, nil
}

// ConfigureMonday выбирает доску и статусную колонку для синхронизации.
func (s *IntegrationService) ConfigureMonday(ctx context.Context, actor Actor, boardID, statusColumnID string) error {
	if boardID == "" {
		return apperror.New(apperror.ErrCodeValidation, "доска не указана")
	}

	settings, err := json.Marshal(mondaySettings{BoardID: boardID, StatusColumnID: statusColumnID})
	if err != nil {
		return fmt.Errorf("integration service: marshal settings %w", err)
	}

	if err := s.repo.UpdateSettings(ctx, actor.OrgID, models.IntegrationProviderMonday, settings); err != nil {
		if errors.Is(err, repository.ErrIntegrationNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "интеграция не подключена")
		}
		return fmt.Errorf("integration service: configure monday %w", err)
	}

	return nil
}

// DropboxEntries возвращает содержимое папки Dropbox.
func (s *IntegrationService) DropboxEntries(ctx context.Context, orgID uuid.UUID, path string) ([]dropbox.Entry, error) {
	token, err := s.dropboxToken(ctx, orgID)
	if err != nil {
		return nil, err
	}

	entries, err := s.dropboxClient(token).ListFolder(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("integration service: list folder %w", err)
	}

	return entries, nil
}

// DropboxFileLink возвращает имя файла и временную ссылку на скачивание.
// Ссылку студия вставляет в согласование как материал.
func (s *IntegrationService) DropboxFileLink(ctx context.Context, orgID uuid.UUID, path string) (string, string, error) {
	if path == "" {
		return "", "", apperror.New(apperror.ErrCodeValidation, "путь к файлу не указан")
	}

	token, err := s.dropboxToken(ctx, orgID)
	if err != nil {
		return "", "", err
	}

	name, link, err := s.dropboxClient(token).TemporaryLink(ctx, path)
	if err != nil {
		return "", "", fmt.Errorf("integration service: temporary link %w", err)
	}

	return name, link, nil
}

// ApprovalSent создаёт элемент на доске Monday по отправленному
// согласованию. Сбой синхронизации не мешает отправке, только пишется
// в лог.
func (s *IntegrationService) ApprovalSent(ctx context.Context, approval *models.Approval) {
	account, settings, ok := s.mondayTarget(ctx, approval.OrgID)
	if !ok {
		return
	}

	name := fmt.Sprintf("%s — %s", approval.ProjectName, approval.Title)
	itemID, err := s.mondayClient(account.AccessToken).CreateItem(ctx, settings.BoardID, name)
	if err != nil {
		s.log.WithError(err).WithField("approval_id", approval.ID).Error("не удалось создать элемент Monday")
		return
	}

	if err := s.items.SetMondayItem(ctx, approval.ID, itemID); err != nil {
		s.log.WithError(err).WithField("approval_id", approval.ID).Error("не удалось сохранить элемент Monday")
	}
}

// ApprovalResponded переводит элемент Monday в статус, соответствующий
// ответу клиента.
func (s *IntegrationService) ApprovalResponded(ctx context.Context, approval *models.Approval, status string) {
	if approval.MondayItemID == nil {
		return
	}

	label, ok := mondayStatusLabels[status]
	if !ok {
		return
	}

	account, settings, ok := s.mondayTarget(ctx, approval.OrgID)
	if !ok {
		return
	}

	columnID := settings.StatusColumnID
	if columnID == "" {
		columnID = "status"
	}

	if err := s.mondayClient(account.AccessToken).SetColumnValue(ctx, settings.BoardID, *approval.MondayItemID, columnID, label); err != nil {
		s.log.WithError(err).WithField("approval_id", approval.ID).Error("не удалось обновить статус в Monday")
	}
}

// mondayTarget возвращает учётную запись Monday с настроенной доской.
func (s *IntegrationService) mondayTarget(ctx context.Context, orgID uuid.UUID) (*models.IntegrationAccount, mondaySettings, bool) {
	account, err := s.repo.GetByProvider(ctx, orgID, models.IntegrationProviderMonday)
	if err != nil {
		if !errors.Is(err, repository.ErrIntegrationNotFound) {
			s.log.WithError(err).Error("не удалось загрузить подключение Monday")
		}
		return nil, mondaySettings{}, false
	}

	var settings mondaySettings
	if len(account.Settings) > 0 {
		if err := json.Unmarshal(account.Settings, &settings); err != nil {
			s.log.WithError(err).Error("настройки Monday повреждены")
			return nil, mondaySettings{}, false
		}
	}
	if settings.BoardID == "" {
		return nil, mondaySettings{}, false
	}

	return account, settings, true
}

// account возвращает подключение провайдера или NOT_FOUND для API.
func (s *IntegrationService) account(ctx context.Context, orgID uuid.UUID, provider string) (*models.IntegrationAccount, error) {
	account, err := s.repo.GetByProvider(ctx, orgID, provider)
	if err != nil {
		if errors.Is(err, repository.ErrIntegrationNotFound) {
			return nil, apperror.New(apperror.ErrCodeNotFound, "интеграция не подключена")
		}
		return nil, fmt.Errorf("integration service: account %w", err)
	}

	return account, nil
}

// dropboxToken возвращает действующий access-токен Dropbox, при
// необходимости обновляя его по refresh-токену.
func (s *IntegrationService) dropboxToken(ctx context.Context, orgID uuid.UUID) (string, error) {
	account, err := s.account(ctx, orgID, models.IntegrationProviderDropbox)
	if err != nil {
		return "", err
	}

	if s.dropboxOAuth == nil || account.RefreshToken == nil {
		return account.AccessToken, nil
	}

	stored := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: *account.RefreshToken,
	}
	if account.TokenExpiry != nil {
		stored.Expiry = *account.TokenExpiry
	}

	fresh, err := s.dropboxOAuth.TokenSource(ctx, stored).Token()
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeBadRequest, "не удалось обновить токен Dropbox")
	}

	if fresh.AccessToken != account.AccessToken {
		account.AccessToken = fresh.AccessToken
		if fresh.RefreshToken != "" {
			refresh := fresh.RefreshToken
			account.RefreshToken = &refresh
		}
		if !fresh.Expiry.IsZero() {
			expiry := fresh.Expiry
			account.TokenExpiry = &expiry
		}
		if err := s.repo.Upsert(ctx, account); err != nil {
			s.log.WithError(err).Error("не удалось сохранить обновлённый токен Dropbox")
		}
	}

	return fresh.AccessToken, nil
}

// oauthConfig возвращает конфигурацию OAuth провайдера.
func (s *IntegrationService) oauthConfig(provider string) (*oauth2.Config, error) {
	switch provider {
	case models.IntegrationProviderMonday:
		if s.mondayOAuth == nil {
			return nil, apperror.New(apperror.ErrCodeBadRequest, "интеграция Monday не настроена на сервере")
		}
		return s.mondayOAuth, nil
	case models.IntegrationProviderDropbox:
		if s.dropboxOAuth == nil {
			return nil, apperror.New(apperror.ErrCodeBadRequest, "интеграция Dropbox не настроена на сервере")
		}
		return s.dropboxOAuth, nil
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный провайдер")
	}
}

func validProvider(provider string) bool {
	return provider == models.IntegrationProviderMonday || provider == models.IntegrationProviderDropbox
}

// signState подписывает state c организацией и инициатором подключения.
func (s *IntegrationService) signState(actor Actor, provider string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"org": actor.OrgID.String(),
		"sub": actor.UserID.String(),
		"prv": provider,
		"iat": now.Unix(),
		"exp": now.Add(oauthStateTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.stateSecret)
}

// parseState проверяет подпись state и возвращает организацию и
// инициатора.
func (s *IntegrationService) parseState(state, provider string) (uuid.UUID, uuid.UUID, error) {
	parsed, err := jwt.Parse(state, func(t *jwt.Token) (interface{}, error) {
		return s.stateSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	if prv, _ := claims["prv"].(string); prv != provider {
		return uuid.Nil, uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	org, _ := claims["org"].(string)
	orgID, err := uuid.Parse(org)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	return orgID, userID, nil
}
