package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/validation"
)

// OrganizationService управляет профилем организации и её
// переопределениями писем.
type OrganizationService struct {
	repo      *repository.OrganizationRepository
	templates *repository.EmailTemplateRepository
	auditor   *audit.Recorder
}

// NewOrganizationService создаёт сервис организации.
func NewOrganizationService(repo *repository.OrganizationRepository, templates *repository.EmailTemplateRepository, auditor *audit.Recorder) *OrganizationService {
	return &OrganizationService{repo: repo, templates: templates, auditor: auditor}
}

// Get возвращает организацию.
func (s *OrganizationService) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			return nil, apperror.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("organization service: get %w", err)
	}
	return org, nil
}

// OrganizationInput содержит изменяемые поля организации.
type OrganizationInput struct {
	Name    string
	LogoURL *string
}

// Update обновляет название и логотип. Слаг не меняется: он входит
// в ссылки, которые уже разошлись клиентам.
func (s *OrganizationService) Update(ctx context.Context, actor Actor, input OrganizationInput) (*models.Organization, error) {
	if err := validation.ValidateOrganizationName(input.Name); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	org, err := s.Get(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}

	org.Name = strings.TrimSpace(input.Name)
	org.LogoURL = input.LogoURL

	if err := s.repo.Update(ctx, org); err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			return nil, apperror.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("organization service: update %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditOrganizationUpdated,
		EntityType: "organization",
		EntityID:   &org.ID,
		Details:    map[string]any{"name": org.Name},
		IP:         actor.IP,
	})

	return org, nil
}

// EmailTemplates возвращает переопределения писем организации.
// Виды без переопределения рендерятся встроенными шаблонами.
func (s *OrganizationService) EmailTemplates(ctx context.Context, orgID uuid.UUID) ([]models.EmailTemplate, error) {
	return s.templates.ListByOrg(ctx, orgID)
}

// EmailTemplateInput содержит переопределение письма.
type EmailTemplateInput struct {
	Kind     string
	Subject  string
	BodyHTML string
}

// UpsertEmailTemplate сохраняет переопределение вида письма.
func (s *OrganizationService) UpsertEmailTemplate(ctx context.Context, actor Actor, input EmailTemplateInput) (*models.EmailTemplate, error) {
	if !models.ValidEmailKinds[input.Kind] {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный вид письма")
	}
	if err := validation.ValidateEmailTemplate(input.Subject, input.BodyHTML); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	tpl := &models.EmailTemplate{
		OrgID:    actor.OrgID,
		Kind:     input.Kind,
		Subject:  strings.TrimSpace(input.Subject),
		BodyHTML: input.BodyHTML,
	}

	if err := s.templates.Upsert(ctx, tpl); err != nil {
		return nil, fmt.Errorf("organization service: upsert template %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditOrganizationUpdated,
		EntityType: "email_template",
		EntityID:   &tpl.ID,
		Details:    map[string]any{"kind": tpl.Kind},
		IP:         actor.IP,
	})

	return tpl, nil
}

// DeleteEmailTemplate удаляет переопределение, возвращая вид письма
// к встроенному шаблону.
func (s *OrganizationService) DeleteEmailTemplate(ctx context.Context, actor Actor, kind string) error {
	if !models.ValidEmailKinds[kind] {
		return apperror.New(apperror.ErrCodeValidation, "неизвестный вид письма")
	}

	if err := s.templates.Delete(ctx, actor.OrgID, kind); err != nil {
		if errors.Is(err, repository.ErrEmailTemplateNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "переопределение письма не найдено")
		}
		return fmt.Errorf("organization service: delete template %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditOrganizationUpdated,
		EntityType: "email_template",
		Details:    map[string]any{"kind": kind, "reset": true},
		IP:         actor.IP,
	})

	return nil
}
