package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/email"
	"github.com/approvhq/approv-backend/internal/goroutine"
	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/validation"
)

// PortalApprovalRepository описывает операции портала над согласованиями.
type PortalApprovalRepository interface {
	GetByToken(ctx context.Context, token string) (*models.Approval, error)
	RecordView(ctx context.Context, id uuid.UUID, at time.Time) error
	Respond(ctx context.Context, id uuid.UUID, status string, notes *string, at time.Time) (bool, error)
	List(ctx context.Context, orgID uuid.UUID, params repository.ListApprovalsParams) ([]models.Approval, error)
}

// UserReader отдаёт сотрудников организации для рассылки уведомлений.
type UserReader interface {
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.User, error)
}

// PortalClientReader отдаёт клиента по токену его личной страницы.
type PortalClientReader interface {
	GetByPortalToken(ctx context.Context, token string) (*models.Client, error)
}

// PortalProjectLister отдаёт проекты клиента для его личной страницы.
type PortalProjectLister interface {
	List(ctx context.Context, orgID uuid.UUID, params repository.ListProjectsParams) ([]models.Project, error)
}

// CsrfValidator сверяет пару CSRF-токенов с выданными для согласования.
type CsrfValidator interface {
	Validate(ctx context.Context, headerToken, cookieToken string, approvalID uuid.UUID) error
}

// FileLinker выдаёт временные ссылки на файлы согласования.
type FileLinker interface {
	PresignGet(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error)
}

// OrgNotifier доставляет событие сотрудникам организации: в ленту
// уведомлений и в открытые WebSocket-сессии.
type OrgNotifier interface {
	Notify(ctx context.Context, orgID uuid.UUID, event, title, body string, payload map[string]any)
}

// PortalService обслуживает клиентскую сторону: просмотр согласования
// по токену и ответ. Авторизации здесь нет, полномочием служит сам токен.
type PortalService struct {
	repo         PortalApprovalRepository
	clients      PortalClientReader
	projects     PortalProjectLister
	files        FileReader
	links        FileLinker
	users        UserReader
	orgs         OrganizationReader
	csrf         CsrfValidator
	renderer     *email.Renderer
	sender       email.Sender
	notifier     OrgNotifier
	auditor      *audit.Recorder
	integrations IntegrationSink
	log          *logrus.Entry
}

// NewPortalService создаёт сервис портала. integrations может быть nil.
func NewPortalService(
	repo PortalApprovalRepository,
	clients PortalClientReader,
	projects PortalProjectLister,
	files FileReader,
	links FileLinker,
	users UserReader,
	orgs OrganizationReader,
	csrf CsrfValidator,
	renderer *email.Renderer,
	sender email.Sender,
	notifier OrgNotifier,
	auditor *audit.Recorder,
	integrations IntegrationSink,
) *PortalService {
	return &PortalService{
		repo:         repo,
		clients:      clients,
		projects:     projects,
		files:        files,
		links:        links,
		users:        users,
		orgs:         orgs,
		csrf:         csrf,
		renderer:     renderer,
		sender:       sender,
		notifier:     notifier,
		auditor:      auditor,
		integrations: integrations,
		log:          logger.WithComponent("portal_service"),
	}
}

// fileLinkTTL срок действия временной ссылки на файл.
const fileLinkTTL = time.Hour

// View возвращает согласование по токену портала и учитывает просмотр.
// Просмотр фиксируется и для закрытых согласований: клиент может
// вернуться к странице после ответа.
func (s *PortalService) View(ctx context.Context, token, ip string) (*models.Approval, error) {
	approval, err := s.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	files, err := s.files.ListByApproval(ctx, approval.ID)
	if err != nil {
		return nil, fmt.Errorf("portal service: view files %w", err)
	}
	for i := range files {
		url, err := s.links.PresignGet(ctx, files[i].ObjectKey, files[i].FileName, fileLinkTTL)
		if err != nil {
			return nil, fmt.Errorf("portal service: presign file %w", err)
		}
		files[i].URL = url
	}
	approval.Files = files

	// Учёт просмотра и аудит не задерживают ответ клиенту.
	approvalID := approval.ID
	orgID := approval.OrgID
	clientID := approval.ClientID
	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.repo.RecordView(ctx, approvalID, time.Now().UTC()); err != nil {
			s.log.WithError(err).WithField("approval_id", approvalID).Error("не удалось учесть просмотр")
			return
		}

		s.auditor.Record(ctx, audit.Event{
			OrgID:      orgID,
			ActorType:  models.ActorTypeClient,
			ActorID:    &clientID,
			Action:     models.AuditApprovalViewed,
			EntityType: "approval",
			EntityID:   &approvalID,
			IP:         ip,
		})
	})

	return approval, nil
}

// RespondInput содержит ответ клиента. CSRF-пара обязательна: значение
// из заголовка и из cookie должны совпасть и числиться выданными.
type RespondInput struct {
	Token      string
	Decision   string
	Notes      *string
	CsrfHeader string
	CsrfCookie string
	IP         string
}

// Respond записывает решение клиента. Ответ принимается только по
// открытому согласованию; повторный или просроченный ответ отклоняется
// с кодом, по которому портал показывает точную причину.
func (s *PortalService) Respond(ctx context.Context, input RespondInput) (*models.Approval, error) {
	if !models.ValidApprovalDecisions[input.Decision] {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимое решение")
	}
	if err := validation.ValidateResponseNotes(input.Decision, input.Notes); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	approval, err := s.getByToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}

	if err := s.csrf.Validate(ctx, input.CsrfHeader, input.CsrfCookie, approval.ID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.closedError(approval, now); err != nil {
		return nil, err
	}

	ok, err := s.repo.Respond(ctx, approval.ID, input.Decision, input.Notes, now)
	if err != nil {
		return nil, fmt.Errorf("portal service: respond %w", err)
	}
	if !ok {
		// Гонка: согласование закрылось между чтением и записью.
		// Перечитываем, чтобы вернуть точную причину.
		fresh, err := s.getByToken(ctx, input.Token)
		if err != nil {
			return nil, err
		}
		if err := s.closedError(fresh, time.Now().UTC()); err != nil {
			return nil, err
		}
		return nil, apperror.ErrApprovalClosed
	}

	approval.Status = input.Decision
	approval.RespondedAt = &now
	approval.ResponseNotes = input.Notes

	s.auditor.Record(ctx, audit.Event{
		OrgID:      approval.OrgID,
		ActorType:  models.ActorTypeClient,
		ActorID:    &approval.ClientID,
		Action:     respondAuditAction(input.Decision),
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details: map[string]any{
			"decision": input.Decision,
			"version":  approval.Version,
		},
		IP: input.IP,
	})

	s.notifyStudio(ctx, approval, input.Decision)

	return approval, nil
}

// ClientOverview описывает личную страницу клиента: его проекты и отправленные
// ему согласования.
type ClientOverview struct {
	Client    *models.Client    `json:"client"`
	Projects  []models.Project  `json:"projects"`
	Approvals []models.Approval `json:"approvals"`
}

// Overview собирает личную страницу клиента по его долгоживущему
// токену. Черновики согласований клиенту не показываются.
func (s *PortalService) Overview(ctx context.Context, portalToken string) (*ClientOverview, error) {
	if portalToken == "" {
		return nil, apperror.ErrClientNotFound
	}

	client, err := s.clients.GetByPortalToken(ctx, portalToken)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, apperror.ErrClientNotFound
		}
		return nil, fmt.Errorf("portal service: overview client %w", err)
	}

	projects, err := s.projects.List(ctx, client.OrgID, repository.ListProjectsParams{ClientID: &client.ID})
	if err != nil {
		return nil, fmt.Errorf("portal service: overview projects %w", err)
	}

	approvals, err := s.repo.List(ctx, client.OrgID, repository.ListApprovalsParams{
		ClientID: &client.ID,
		OnlySent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("portal service: overview approvals %w", err)
	}

	return &ClientOverview{Client: client, Projects: projects, Approvals: approvals}, nil
}

// getByToken возвращает согласование по токену. Кривой и неизвестный
// токен неразличимы для клиента.
func (s *PortalService) getByToken(ctx context.Context, token string) (*models.Approval, error) {
	if token == "" {
		return nil, apperror.ErrApprovalNotFound
	}

	approval, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return nil, apperror.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("portal service: get by token %w", err)
	}

	return approval, nil
}

// closedError возвращает ошибку для закрытого согласования и nil для
// открытого.
func (s *PortalService) closedError(approval *models.Approval, now time.Time) error {
	switch approval.EffectiveStatus(now) {
	case models.ApprovalStatusPending:
		return nil
	case models.ApprovalStatusExpired:
		return apperror.ErrApprovalExpired
	default:
		return apperror.ErrApprovalClosed
	}
}

func respondAuditAction(decision string) string {
	if decision == models.ApprovalStatusApproved {
		return models.AuditApprovalApproved
	}
	return models.AuditApprovalChanges
}

// notifyStudio рассылает студии весть об ответе клиента: лента
// уведомлений, WebSocket и письма администраторам. Всё в фоне, сбои
// не влияют на ответ порталу.
func (s *PortalService) notifyStudio(ctx context.Context, approval *models.Approval, decision string) {
	var (
		event string
		title string
		body  string
	)

	if decision == models.ApprovalStatusApproved {
		event = models.NotificationApprovalResponded
		title = "Согласовано: " + approval.Title
		body = fmt.Sprintf("%s согласовал(а) «%s» по проекту «%s»", approval.ClientName, approval.Title, approval.ProjectName)
	} else {
		event = models.NotificationApprovalResponded
		title = "Запрошены правки: " + approval.Title
		body = fmt.Sprintf("%s запросил(а) правки по «%s» (проект «%s»)", approval.ClientName, approval.Title, approval.ProjectName)
	}

	s.notifier.Notify(ctx, approval.OrgID, event, title, body, map[string]any{
		"approval_id": approval.ID.String(),
		"decision":    decision,
	})

	approvalCopy := *approval
	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.emailStudio(ctx, &approvalCopy, decision)
	})

	if s.integrations != nil {
		syncCopy := *approval
		goroutine.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			s.integrations.ApprovalResponded(ctx, &syncCopy, decision)
		})
	}
}

// emailStudio отправляет письма владельцам и администраторам организации.
func (s *PortalService) emailStudio(ctx context.Context, approval *models.Approval, decision string) {
	org, err := s.orgs.GetByID(ctx, approval.OrgID)
	if err != nil {
		s.log.WithError(err).Error("не удалось загрузить организацию для уведомления")
		return
	}

	users, err := s.users.ListByOrg(ctx, approval.OrgID)
	if err != nil {
		s.log.WithError(err).Error("не удалось загрузить сотрудников для уведомления")
		return
	}

	kind := models.EmailKindApprovalApproved
	if decision == models.ApprovalStatusChangesRequested {
		kind = models.EmailKindApprovalChanges
	}

	notes := ""
	if approval.ResponseNotes != nil {
		notes = *approval.ResponseNotes
	}

	data := email.TemplateData{
		OrgName:     org.Name,
		ClientName:  approval.ClientName,
		ProjectName: approval.ProjectName,
		Title:       approval.Title,
		Notes:       notes,
		Version:     approval.Version,
	}

	subject, bodyHTML, err := s.renderer.Render(ctx, approval.OrgID, kind, data)
	if err != nil {
		s.log.WithError(err).Error("не удалось собрать письмо об ответе клиента")
		return
	}

	for _, user := range users {
		if !user.IsAdmin() {
			continue
		}
		if err := s.sender.Send(ctx, email.Message{To: user.Email, Subject: subject, HTML: bodyHTML}); err != nil {
			s.log.WithError(err).WithField("to", user.Email).Error("не удалось отправить письмо об ответе клиента")
		}
	}
}
