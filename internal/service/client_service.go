package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/audit"
	"github.com/approvhq/approv-backend/internal/ids"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/validation"
)

// ClientService управляет справочником клиентов организации.
type ClientService struct {
	repo    *repository.ClientRepository
	auditor *audit.Recorder
}

// NewClientService создаёт сервис клиентов.
func NewClientService(repo *repository.ClientRepository, auditor *audit.Recorder) *ClientService {
	return &ClientService{repo: repo, auditor: auditor}
}

// ClientInput содержит данные клиента при создании и обновлении.
type ClientInput struct {
	Name    string
	Email   string
	Phone   *string
	Company *string
	Notes   *string
}

func (in *ClientInput) validate() error {
	if err := validation.ValidateClientName(in.Name); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePhone(in.Phone); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateCompany(in.Company); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateClientNotes(in.Notes); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	return nil
}

// Create создаёт клиента.
func (s *ClientService) Create(ctx context.Context, actor Actor, input ClientInput) (*models.Client, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	client := &models.Client{
		OrgID:       actor.OrgID,
		Name:        strings.TrimSpace(input.Name),
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		PortalToken: ids.NewToken(),
		Phone:       input.Phone,
		Company:     input.Company,
		Notes:       input.Notes,
	}

	if err := s.repo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("client service: create %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditClientCreated,
		EntityType: "client",
		EntityID:   &client.ID,
		Details:    map[string]any{"name": client.Name, "email": client.Email},
		IP:         actor.IP,
	})

	return client, nil
}

// Get возвращает клиента организации.
func (s *ClientService) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Client, error) {
	client, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, apperror.ErrClientNotFound
		}
		return nil, fmt.Errorf("client service: get %w", err)
	}
	return client, nil
}

// List возвращает клиентов организации.
func (s *ClientService) List(ctx context.Context, orgID uuid.UUID, params repository.ListClientsParams) ([]models.Client, error) {
	clients, err := s.repo.List(ctx, orgID, params)
	if err != nil {
		return nil, fmt.Errorf("client service: list %w", err)
	}
	return clients, nil
}

// Update обновляет данные клиента.
func (s *ClientService) Update(ctx context.Context, actor Actor, id uuid.UUID, input ClientInput) (*models.Client, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	client, err := s.Get(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}

	client.Name = strings.TrimSpace(input.Name)
	client.Email = strings.ToLower(strings.TrimSpace(input.Email))
	client.Phone = input.Phone
	client.Company = input.Company
	client.Notes = input.Notes

	if err := s.repo.Update(ctx, client); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, apperror.ErrClientNotFound
		}
		return nil, fmt.Errorf("client service: update %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditClientUpdated,
		EntityType: "client",
		EntityID:   &client.ID,
		Details:    map[string]any{"name": client.Name, "email": client.Email},
		IP:         actor.IP,
	})

	return client, nil
}

// RegeneratePortalToken выпускает клиенту новый токен личной страницы.
// Старая ссылка сразу перестаёт работать.
func (s *ClientService) RegeneratePortalToken(ctx context.Context, actor Actor, id uuid.UUID) (*models.Client, error) {
	client, err := s.Get(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}

	token := ids.NewToken()
	if err := s.repo.RegeneratePortalToken(ctx, actor.OrgID, id, token); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, apperror.ErrClientNotFound
		}
		return nil, fmt.Errorf("client service: regenerate portal token %w", err)
	}
	client.PortalToken = token

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditClientUpdated,
		EntityType: "client",
		EntityID:   &client.ID,
		Details:    map[string]any{"portal_token_regenerated": true},
		IP:         actor.IP,
	})

	return client, nil
}

// Archive выводит клиента из работы. Существующие согласования и
// проекты клиента не затрагиваются.
func (s *ClientService) Archive(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := s.repo.Archive(ctx, actor.OrgID, id, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return apperror.ErrClientNotFound
		}
		return fmt.Errorf("client service: archive %w", err)
	}

	s.auditor.Record(ctx, audit.Event{
		OrgID:      actor.OrgID,
		ActorType:  models.ActorTypeUser,
		ActorID:    &actor.UserID,
		Action:     models.AuditClientArchived,
		EntityType: "client",
		EntityID:   &id,
		IP:         actor.IP,
	})

	return nil
}
