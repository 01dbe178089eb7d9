package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем
// уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, orgID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, orgID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, orgID uuid.UUID) error
	CountUnread(ctx context.Context, orgID uuid.UUID) (int, error)
}

// Broadcaster рассылает событие в открытые WebSocket-сессии организации.
type Broadcaster interface {
	BroadcastToOrg(orgID uuid.UUID, message []byte)
}

// NotificationService ведёт ленту уведомлений организации и дублирует
// события в WebSocket.
type NotificationService struct {
	repo NotificationRepository
	hub  Broadcaster
}

// NewNotificationService создаёт сервис уведомлений. hub может быть
// nil, тогда события пишутся только в ленту.
func NewNotificationService(repo NotificationRepository, hub Broadcaster) *NotificationService {
	return &NotificationService{repo: repo, hub: hub}
}

// Notify создаёт уведомление и рассылает его по WebSocket. Сбой не
// возвращается вызывающему: уведомления вторичны к основной операции.
func (s *NotificationService) Notify(ctx context.Context, orgID uuid.UUID, event, title, body string, payload map[string]any) {
	log := logger.WithComponent("notification_service")

	var raw json.RawMessage
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			log.WithError(err).Error("не удалось сериализовать полезную нагрузку уведомления")
		} else {
			raw = data
		}
	}

	notification := &models.Notification{
		OrgID:   orgID,
		Event:   event,
		Title:   title,
		Body:    body,
		Payload: raw,
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		log.WithError(err).WithField("event", event).Error("не удалось создать уведомление")
		return
	}

	if s.hub != nil {
		message, err := json.Marshal(map[string]any{
			"type":         "notification",
			"notification": notification,
		})
		if err != nil {
			log.WithError(err).Error("не удалось сериализовать уведомление для WebSocket")
			return
		}
		s.hub.BroadcastToOrg(orgID, message)
	}
}

// List возвращает ленту уведомлений организации.
func (s *NotificationService) List(ctx context.Context, orgID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.repo.List(ctx, orgID, limit, offset, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("notification service: list %w", err)
	}

	return notifications, nil
}

// MarkAsRead отмечает уведомление прочитанным.
func (s *NotificationService) MarkAsRead(ctx context.Context, orgID, id uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, orgID, id); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "уведомление не найдено")
		}
		return fmt.Errorf("notification service: mark as read %w", err)
	}
	return nil
}

// MarkAllAsRead отмечает все уведомления организации прочитанными.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, orgID uuid.UUID) error {
	if err := s.repo.MarkAllAsRead(ctx, orgID); err != nil {
		return fmt.Errorf("notification service: mark all as read %w", err)
	}
	return nil
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, orgID uuid.UUID) (int, error) {
	count, err := s.repo.CountUnread(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("notification service: count unread %w", err)
	}
	return count, nil
}
