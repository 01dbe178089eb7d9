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

// ProjectService управляет проектами организации.
type ProjectService struct {
	repo    *repository.ProjectRepository
	clients *repository.ClientRepository
	auditor *audit.Recorder
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(repo *repository.ProjectRepository, clients *repository.ClientRepository, auditor *audit.Recorder) *ProjectService {
	return &ProjectService{repo: repo, clients: clients, auditor: auditor}
}

// CreateProjectInput содержит данные нового проекта.
type CreateProjectInput struct {
	ClientID uuid.UUID
	Name     string
	Stage    string
	Address  *string
}

// Create создаёт проект для клиента организации.
func (s *ProjectService) Create(ctx context.Context, actor Actor, input CreateProjectInput) (*models.Project, error) {
	if err := validation.ValidateProjectName(input.Name); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateProjectAddress(input.Address); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	stage := input.Stage
	if stage == "" {
		stage = models.ProjectStageConcept
	}
	if !models.ValidProjectStages[stage] {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная стадия проекта")
	}

	client, err := s.clients.GetByID(ctx, actor.OrgID, input.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, apperror.ErrClientNotFound
		}
		return nil, fmt.Errorf("project service: create %w", err)
	}
	if client.IsArchived() {
		return nil, apperror.New(apperror.ErrCodeValidation, "клиент в архиве, проект создать нельзя")
	}

	project := &models.Project{
		OrgID:    actor.OrgID,
		ClientID: client.ID,
		Name:     strings.TrimSpace(input.Name),
		Stage:    stage,
		Status:   models.ProjectStatusActive,
		Address:  input.Address,
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("project service: create %w", err)
	}
	project.ClientName = client.Name

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditProjectCreated,
		EntityType: "project",
		EntityID:   &project.ID,
		Details:    map[string]any{"name": project.Name, "stage": project.Stage},
		IP:         actor.IP,
	})

	return project, nil
}

// Get возвращает проект организации.
func (s *ProjectService) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("project service: get %w", err)
	}
	return project, nil
}

// List возвращает проекты организации.
func (s *ProjectService) List(ctx context.Context, orgID uuid.UUID, params repository.ListProjectsParams) ([]models.Project, error) {
	projects, err := s.repo.List(ctx, orgID, params)
	if err != nil {
		return nil, fmt.Errorf("project service: list %w", err)
	}
	return projects, nil
}

// UpdateProjectInput содержит изменяемые поля проекта.
type UpdateProjectInput struct {
	Name    string
	Stage   string
	Status  string
	Address *string
}

// Update обновляет проект. Смена стадии считается обычным обновлением, порядок
// стадий системой не навязывается.
func (s *ProjectService) Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateProjectInput) (*models.Project, error) {
	if err := validation.ValidateProjectName(input.Name); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateProjectAddress(input.Address); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if !models.ValidProjectStages[input.Stage] {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная стадия проекта")
	}
	if !models.ValidProjectStatuses[input.Status] {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус проекта")
	}

	project, err := s.Get(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}

	archived := project.Status == models.ProjectStatusActive && input.Status == models.ProjectStatusArchived

	project.Name = strings.TrimSpace(input.Name)
	project.Stage = input.Stage
	project.Status = input.Status
	project.Address = input.Address

	if err := s.repo.Update(ctx, project); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, fmt.Errorf("project service: update %w", err)
	}

	action := models.AuditProjectUpdated
	if archived {
		action = models.AuditProjectArchived
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     action,
		EntityType: "project",
		EntityID:   &project.ID,
		Details:    map[string]any{"name": project.Name, "stage": project.Stage, "status": project.Status},
		IP:         actor.IP,
	})

	return project, nil
}
