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
	"github.com/approvhq/approv-backend/internal/ids"
	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/validation"
)

// ApprovalRepository описывает зависимости ApprovalService от хранилища.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *models.Approval) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Approval, error)
	List(ctx context.Context, orgID uuid.UUID, params repository.ListApprovalsParams) ([]models.Approval, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	Resubmit(ctx context.Context, id uuid.UUID, expiresAt, sentAt time.Time) (bool, error)
	Revoke(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ProjectReader отдаёт проекты для проверки принадлежности организации.
type ProjectReader interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Project, error)
}

// OrganizationReader отдаёт организацию для писем.
type OrganizationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// ReminderWriter фиксирует отправленные напоминания.
type ReminderWriter interface {
	Create(ctx context.Context, reminder *models.Reminder) error
}

// FileReader отдаёт файлы согласования.
type FileReader interface {
	ListByApproval(ctx context.Context, approvalID uuid.UUID) ([]models.ApprovalFile, error)
}

// IntegrationSink получает события жизненного цикла согласований для
// внешних систем. Синхронизация идёт как лучшая попытка: ошибок наружу нет,
// вызовы идут в фоне.
type IntegrationSink interface {
	ApprovalSent(ctx context.Context, approval *models.Approval)
	ApprovalResponded(ctx context.Context, approval *models.Approval, status string)
}

// ApprovalServiceConfig задаёт настройки жизненного цикла согласований.
type ApprovalServiceConfig struct {
	PortalBaseURL     string
	DefaultExpiryDays int
	ReminderCooldown  time.Duration
}

// ApprovalService реализует жизненный цикл согласований со стороны студии.
type ApprovalService struct {
	repo         ApprovalRepository
	projects     ProjectReader
	orgs         OrganizationReader
	reminders    ReminderWriter
	files        FileReader
	renderer     *email.Renderer
	sender       email.Sender
	auditor      *audit.Recorder
	integrations IntegrationSink
	cfg          ApprovalServiceConfig
	log          *logrus.Entry
}

// NewApprovalService создаёт сервис согласований. integrations может
// быть nil, если внешняя синхронизация не настроена.
func NewApprovalService(
	repo ApprovalRepository,
	projects ProjectReader,
	orgs OrganizationReader,
	reminders ReminderWriter,
	files FileReader,
	renderer *email.Renderer,
	sender email.Sender,
	auditor *audit.Recorder,
	integrations IntegrationSink,
	cfg ApprovalServiceConfig,
) *ApprovalService {
	return &ApprovalService{
		repo:         repo,
		projects:     projects,
		orgs:         orgs,
		reminders:    reminders,
		files:        files,
		renderer:     renderer,
		sender:       sender,
		auditor:      auditor,
		integrations: integrations,
		cfg:          cfg,
		log:          logger.WithComponent("approval_service"),
	}
}

// Actor представляет сотрудника, выполняющего операцию, для аудита.
type Actor struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	IP     string
}

// CreateApprovalInput содержит данные нового согласования.
type CreateApprovalInput struct {
	ProjectID   uuid.UUID
	Title       string
	Description *string
	// ExpiryDays срок действия в днях; 0 означает срок по умолчанию.
	ExpiryDays int
}

// Create создаёт согласование в статусе pending с уникальным токеном
// портала. Ссылка клиенту на этом шаге ещё не уходит.
func (s *ApprovalService) Create(ctx context.Context, actor Actor, input CreateApprovalInput) (*models.Approval, error) {
	if err := validation.ValidateApprovalTitle(input.Title); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateApprovalDescription(input.Description); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	days := input.ExpiryDays
	if days == 0 {
		days = s.cfg.DefaultExpiryDays
	}
	if err := validation.ValidateExpiryDays(days); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	project, err := s.projects.GetByID(ctx, actor.OrgID, input.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("approval service: create %w", err)
	}

	approval := &models.Approval{
		OrgID:       actor.OrgID,
		ProjectID:   project.ID,
		Token:       ids.NewToken(),
		Title:       input.Title,
		Description: input.Description,
		Status:      models.ApprovalStatusPending,
		Version:     1,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour),
	}

	if err := s.repo.Create(ctx, approval); err != nil {
		return nil, fmt.Errorf("approval service: create %w", err)
	}

	approval.ProjectName = project.Name
	approval.ClientName = project.ClientName

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditApprovalCreated,
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details: map[string]any{
			"title":      approval.Title,
			"project_id": approval.ProjectID.String(),
			"expires_at": approval.ExpiresAt,
		},
		IP: actor.IP,
	})

	return approval, nil
}

// Get возвращает согласование с файлами.
func (s *ApprovalService) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Approval, error) {
	approval, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return nil, apperror.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("approval service: get %w", err)
	}

	files, err := s.files.ListByApproval(ctx, approval.ID)
	if err != nil {
		return nil, fmt.Errorf("approval service: get files %w", err)
	}
	approval.Files = files

	return approval, nil
}

// List возвращает согласования организации.
func (s *ApprovalService) List(ctx context.Context, orgID uuid.UUID, params repository.ListApprovalsParams) ([]models.Approval, error) {
	approvals, err := s.repo.List(ctx, orgID, params)
	if err != nil {
		return nil, fmt.Errorf("approval service: list %w", err)
	}
	return approvals, nil
}

// Send отправляет клиенту письмо со ссылкой на портал и фиксирует
// момент отправки. Повторный вызов отправляет письмо ещё раз.
func (s *ApprovalService) Send(ctx context.Context, actor Actor, id uuid.UUID) (*models.Approval, error) {
	approval, err := s.repo.GetByID(ctx, actor.OrgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return nil, apperror.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("approval service: send %w", err)
	}

	now := time.Now().UTC()
	if !approval.IsOpen(now) {
		if approval.EffectiveStatus(now) == models.ApprovalStatusExpired {
			return nil, apperror.ErrApprovalExpired
		}
		return nil, apperror.ErrApprovalClosed
	}

	if err := s.sendApprovalEmail(ctx, approval, models.EmailKindApprovalRequest); err != nil {
		return nil, err
	}

	if err := s.repo.MarkSent(ctx, approval.ID, now); err != nil {
		return nil, fmt.Errorf("approval service: mark sent %w", err)
	}
	approval.SentAt = &now

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditApprovalSent,
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details: map[string]any{
			"title":        approval.Title,
			"client_email": approval.ClientEmail,
		},
		IP: actor.IP,
	})

	if s.integrations != nil && approval.MondayItemID == nil {
		approvalCopy := *approval
		goroutine.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			s.integrations.ApprovalSent(ctx, &approvalCopy)
		})
	}

	return approval, nil
}

// Resubmit повторно отправляет согласование после правок: новая версия,
// свежий срок, очищенный ответ. Разрешено только из changes_requested.
func (s *ApprovalService) Resubmit(ctx context.Context, actor Actor, id uuid.UUID) (*models.Approval, error) {
	approval, err := s.repo.GetByID(ctx, actor.OrgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return nil, apperror.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("approval service: resubmit %w", err)
	}

	if approval.Status != models.ApprovalStatusChangesRequested {
		return nil, apperror.ErrResubmitNotAllowed
	}

	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(s.cfg.DefaultExpiryDays) * 24 * time.Hour)

	ok, err := s.repo.Resubmit(ctx, approval.ID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("approval service: resubmit %w", err)
	}
	if !ok {
		// Состояние изменилось между чтением и обновлением.
		return nil, apperror.ErrResubmitNotAllowed
	}

	approval.Status = models.ApprovalStatusPending
	approval.Version++
	approval.ExpiresAt = expiresAt
	approval.SentAt = &now
	approval.RespondedAt = nil
	approval.ResponseNotes = nil
	approval.ReminderCount = 0
	approval.LastReminderAt = nil

	// Письмо клиенту уходит в фоне: статус уже изменён, сбой отправки
	// чинится повторным напоминанием.
	approvalCopy := *approval
	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.sendApprovalEmail(ctx, &approvalCopy, models.EmailKindApprovalResubmitted); err != nil {
			s.log.WithError(err).WithField("approval_id", approvalCopy.ID).Error("не удалось отправить письмо о повторной отправке")
		}
	})

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditApprovalResubmitted,
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details: map[string]any{
			"title":   approval.Title,
			"version": approval.Version,
		},
		IP: actor.IP,
	})

	return approval, nil
}

// Revoke отзывает согласование, по которому ещё нет ответа.
func (s *ApprovalService) Revoke(ctx context.Context, actor Actor, id uuid.UUID) error {
	approval, err := s.repo.GetByID(ctx, actor.OrgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return apperror.ErrApprovalNotFound
		}
		return fmt.Errorf("approval service: revoke %w", err)
	}

	ok, err := s.repo.Revoke(ctx, actor.OrgID, id)
	if err != nil {
		return fmt.Errorf("approval service: revoke %w", err)
	}
	if !ok {
		return apperror.ErrApprovalClosed
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditApprovalRevoked,
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details:    map[string]any{"title": approval.Title},
		IP:         actor.IP,
	})

	return nil
}

// Remind отправляет клиенту ручное напоминание. Частота ограничена
// cooldown-ом, чтобы кнопку нельзя было заспамить.
func (s *ApprovalService) Remind(ctx context.Context, actor Actor, id uuid.UUID) error {
	approval, err := s.repo.GetByID(ctx, actor.OrgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrApprovalNotFound) {
			return apperror.ErrApprovalNotFound
		}
		return fmt.Errorf("approval service: remind %w", err)
	}

	now := time.Now().UTC()
	if !approval.IsOpen(now) {
		if approval.EffectiveStatus(now) == models.ApprovalStatusExpired {
			return apperror.ErrApprovalExpired
		}
		return apperror.ErrApprovalClosed
	}
	if approval.SentAt == nil {
		return apperror.New(apperror.ErrCodeValidation, "согласование ещё не отправлялось клиенту")
	}

	if approval.LastReminderAt != nil && now.Sub(*approval.LastReminderAt) < s.cfg.ReminderCooldown {
		return apperror.New(apperror.ErrCodeConflict, "напоминание уже отправлялось недавно")
	}

	if err := s.sendApprovalEmail(ctx, approval, models.EmailKindApprovalReminder); err != nil {
		return err
	}

	if err := s.repo.IncrementReminder(ctx, approval.ID, now); err != nil {
		return fmt.Errorf("approval service: remind %w", err)
	}

	if err := s.reminders.Create(ctx, &models.Reminder{
		OrgID:      actor.OrgID,
		ApprovalID: approval.ID,
		Kind:       models.ReminderKindManual,
		SentAt:     now,
	}); err != nil {
		return fmt.Errorf("approval service: remind history %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditApprovalReminderSent,
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details: map[string]any{
			"kind":         models.ReminderKindManual,
			"client_email": approval.ClientEmail,
		},
		IP: actor.IP,
	})

	return nil
}

// PortalURL возвращает адрес портала для токена.
func (s *ApprovalService) PortalURL(token string) string {
	return s.cfg.PortalBaseURL + "/a/" + token
}

// sendApprovalEmail собирает и отправляет клиенту письмо вида kind.
func (s *ApprovalService) sendApprovalEmail(ctx context.Context, approval *models.Approval, kind string) error {
	org, err := s.orgs.GetByID(ctx, approval.OrgID)
	if err != nil {
		return fmt.Errorf("approval service: load org %w", err)
	}

	data := email.TemplateData{
		OrgName:     org.Name,
		ClientName:  approval.ClientName,
		ProjectName: approval.ProjectName,
		Title:       approval.Title,
		PortalURL:   s.PortalURL(approval.Token),
		ExpiresAt:   email.FormatExpiry(approval.ExpiresAt),
		Version:     approval.Version,
	}

	subject, body, err := s.renderer.Render(ctx, approval.OrgID, kind, data)
	if err != nil {
		return fmt.Errorf("approval service: render email %w", err)
	}

	if err := s.sender.Send(ctx, email.Message{
		To:      approval.ClientEmail,
		Subject: subject,
		HTML:    body,
	}); err != nil {
		return fmt.Errorf("approval service: send email %w", err)
	}

	return nil
}
