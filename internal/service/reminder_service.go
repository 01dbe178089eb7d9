package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/email"
	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
)

// Пороги автоматических напоминаний до истечения срока. Первое письмо
// уходит за три дня, последнее — за день.
const (
	reminderFirstThreshold = 3 * 24 * time.Hour
	reminderFinalThreshold = 24 * time.Hour
)

// ReminderApprovalRepository описывает операции обхода согласований.
type ReminderApprovalRepository interface {
	ListDueForReminder(ctx context.Context, now time.Time, within time.Duration, maxReminders int, limit int) ([]models.Approval, error)
	IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ReminderService рассылает автоматические напоминания по открытым
// согласованиям, срок которых подходит к концу.
type ReminderService struct {
	repo      ReminderApprovalRepository
	reminders ReminderWriter
	orgs      OrganizationReader
	renderer  *email.Renderer
	sender    email.Sender
	notifier  OrgNotifier
	auditor   *audit.Recorder
	// maxPerSweep ограничивает число писем за один проход.
	maxPerSweep   int
	portalBaseURL string
	log           *logrus.Entry
}

// NewReminderService создаёт сервис напоминаний.
func NewReminderService(
	repo ReminderApprovalRepository,
	reminders ReminderWriter,
	orgs OrganizationReader,
	renderer *email.Renderer,
	sender email.Sender,
	notifier OrgNotifier,
	auditor *audit.Recorder,
	maxPerSweep int,
	portalBaseURL string,
) *ReminderService {
	if maxPerSweep <= 0 {
		maxPerSweep = 3
	}
	return &ReminderService{
		repo:          repo,
		reminders:     reminders,
		orgs:          orgs,
		renderer:      renderer,
		sender:        sender,
		notifier:      notifier,
		auditor:       auditor,
		maxPerSweep:   maxPerSweep,
		portalBaseURL: portalBaseURL,
		log:           logger.WithComponent("reminder_service"),
	}
}

// SweepOnce делает один проход: находит согласования у порогов и
// рассылает напоминания. Возвращает число отправленных писем. Ошибка
// по отдельному согласованию не прерывает проход.
func (s *ReminderService) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	// Второго автоматического напоминания не бывает после двух
	// отправленных: выборка сразу отсекает исчерпанные.
	due, err := s.repo.ListDueForReminder(ctx, now, reminderFirstThreshold, 2, s.maxPerSweep*4)
	if err != nil {
		return 0, fmt.Errorf("reminder service: sweep %w", err)
	}

	sent := 0
	for _, approval := range due {
		if sent >= s.maxPerSweep {
			break
		}

		if !s.dueNow(&approval, now) {
			continue
		}

		if err := s.sendReminder(ctx, &approval, now); err != nil {
			s.log.WithError(err).WithField("approval_id", approval.ID).Error("не удалось отправить напоминание")
			continue
		}
		sent++
	}

	return sent, nil
}

// dueNow решает, положено ли согласованию напоминание в этот момент:
// первое после порога в три дня, второе после порога в день.
func (s *ReminderService) dueNow(approval *models.Approval, now time.Time) bool {
	remaining := approval.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return false
	}

	switch {
	case remaining <= reminderFinalThreshold:
		return approval.ReminderCount < 2
	case remaining <= reminderFirstThreshold:
		return approval.ReminderCount < 1
	default:
		return false
	}
}

// sendReminder отправляет письмо клиенту и фиксирует напоминание.
func (s *ReminderService) sendReminder(ctx context.Context, approval *models.Approval, now time.Time) error {
	org, err := s.orgs.GetByID(ctx, approval.OrgID)
	if err != nil {
		return fmt.Errorf("load org: %w", err)
	}

	data := email.TemplateData{
		OrgName:     org.Name,
		ClientName:  approval.ClientName,
		ProjectName: approval.ProjectName,
		Title:       approval.Title,
		PortalURL:   s.portalBaseURL + "/a/" + approval.Token,
		ExpiresAt:   email.FormatExpiry(approval.ExpiresAt),
		Version:     approval.Version,
	}

	subject, body, err := s.renderer.Render(ctx, approval.OrgID, models.EmailKindApprovalReminder, data)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if err := s.sender.Send(ctx, email.Message{To: approval.ClientEmail, Subject: subject, HTML: body}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if err := s.repo.IncrementReminder(ctx, approval.ID, now); err != nil {
		return fmt.Errorf("increment: %w", err)
	}

	if err := s.reminders.Create(ctx, &models.Reminder{
		OrgID:      approval.OrgID,
		ApprovalID: approval.ID,
		Kind:       models.ReminderKindAuto,
		SentAt:     now,
	}); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      approval.OrgID,
		ActorType:  models.ActorTypeSystem,
		Action:     models.AuditApprovalReminderSent,
		EntityType: "approval",
		EntityID:   &approval.ID,
		Details: map[string]any{
			"kind":         models.ReminderKindAuto,
			"client_email": approval.ClientEmail,
		},
	})

	// За день до истечения студия видит это и в своей ленте.
	if approval.ExpiresAt.Sub(now) <= reminderFinalThreshold && s.notifier != nil {
		s.notifier.Notify(ctx, approval.OrgID, models.NotificationApprovalExpiring,
			"Срок истекает: "+approval.Title,
			fmt.Sprintf("Согласование «%s» по проекту «%s» истекает %s", approval.Title, approval.ProjectName, email.FormatExpiry(approval.ExpiresAt)),
			map[string]any{"approval_id": approval.ID.String()},
		)
	}

	return nil
}
