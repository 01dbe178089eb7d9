package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/logger"
	"github.com/approvhq/approv-backend/internal/models"
)

// Repository описывает зависимость рекордера от слоя хранилища.
type Repository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// Recorder пишет события в журнал аудита. Запись best-effort: сбой
// журналирования логируется, но бизнес-операцию не прерывает.
type Recorder struct {
	repo Repository
	log  *logrus.Entry
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo: repo,
		log:  logger.WithComponent("audit"),
	}
}

// Event описывает событие аудита до маскирования. Details передаются как есть,
// маскирование выполняет Record.
type Event struct {
	OrgID      uuid.UUID
	ActorType  string
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	Details    map[string]any
	IP         string
}

// Record маскирует детали события и записывает его в журнал.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if ev.Action == "" {
		r.log.Warn("событие аудита без действия пропущено")
		return
	}
	if ev.ActorType == "" {
		ev.ActorType = models.ActorTypeSystem
	}

	var details json.RawMessage
	if len(ev.Details) > 0 {
		data, err := json.Marshal(RedactMap(ev.Details))
		if err != nil {
			r.log.WithError(err).WithField("action", ev.Action).Error("не удалось сериализовать детали события аудита")
		} else {
			details = data
		}
	}

	entry := &models.AuditLog{
		ID:         uuid.New(),
		OrgID:      ev.OrgID,
		ActorType:  ev.ActorType,
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if ev.IP != "" {
		entry.IP = &ev.IP
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"action": ev.Action,
			"org_id": ev.OrgID,
		}).Error("не удалось записать событие аудита")
	}
}
