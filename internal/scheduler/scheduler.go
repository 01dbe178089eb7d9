// Package scheduler гоняет фоновые задачи процесса: рассылку
// автоматических напоминаний и чистку истёкших CSRF-токенов и сессий.
// В multi-instance развёртывании задачи выполняет один экземпляр,
// удерживающий аренду в Redis.
package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/ids"
	"github.com/approvhq/approv-backend/internal/logger"
)

// ReminderSweeper рассылает автоматические напоминания.
type ReminderSweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// CsrfCleaner удаляет истёкшие CSRF-токены.
type CsrfCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// SessionCleaner удаляет истёкшие сессии.
type SessionCleaner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Lease реализует аренду лидера в Redis. Экземпляр, успевший выставить ключ,
// выполняет проход; остальные пропускают тик. Ключ живёт чуть дольше
// интервала, поэтому упавший лидер освобождает аренду сам собой.
type Lease struct {
	client *redis.Client
	key    string
	id     string
	ttl    time.Duration
	log    *logrus.Entry
}

// NewLease создаёт аренду с собственным идентификатором экземпляра.
func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    key,
		id:     ids.NewToken(),
		ttl:    ttl,
		log:    logger.WithComponent("scheduler"),
	}
}

// TryAcquire пытается захватить или продлить аренду.
func (l *Lease) TryAcquire(ctx context.Context) bool {
	ok, err := l.client.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		l.log.WithError(err).Error("не удалось захватить аренду")
		return false
	}
	if ok {
		return true
	}

	// Ключ занят: продлеваем, только если он наш.
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil || current != l.id {
		return false
	}
	if err := l.client.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		l.log.WithError(err).Error("не удалось продлить аренду")
		return false
	}

	return true
}

// Scheduler выполняет проход фоновых задач по тикеру.
type Scheduler struct {
	reminders ReminderSweeper
	csrf      CsrfCleaner
	sessions  SessionCleaner
	lease     *Lease
	interval  time.Duration
	log       *logrus.Entry
}

// New создаёт планировщик. При nil lease проходы
// выполняются безусловно (single-instance).
func New(
	reminders ReminderSweeper,
	csrf CsrfCleaner,
	sessions SessionCleaner,
	lease *Lease,
	interval time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &Scheduler{
		reminders: reminders,
		csrf:      csrf,
		sessions:  sessions,
		lease:     lease,
		interval:  interval,
		log:       logger.WithComponent("scheduler"),
	}
}

// Run крутит проходы до отмены контекста. Блокируется, запускать в
// отдельной горутине.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.lease != nil && !s.lease.TryAcquire(ctx) {
				continue
			}
			s.sweep(ctx)
		}
	}
}

// sweep выполняет один проход всех задач. Сбой одной задачи не мешает
// остальным.
func (s *Scheduler) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	sent, err := s.reminders.SweepOnce(ctx)
	if err != nil {
		s.log.WithError(err).Error("проход напоминаний завершился ошибкой")
	} else if sent > 0 {
		s.log.WithField("sent", sent).Info("напоминания отправлены")
	}

	if s.csrf != nil {
		deleted, err := s.csrf.Cleanup(ctx)
		if err != nil {
			s.log.WithError(err).Error("чистка CSRF-токенов завершилась ошибкой")
		} else if deleted > 0 {
			s.log.WithField("deleted", deleted).Debug("истёкшие CSRF-токены удалены")
		}
	}

	if s.sessions != nil {
		deleted, err := s.sessions.DeleteExpiredSessions(ctx)
		if err != nil {
			s.log.WithError(err).Error("чистка сессий завершилась ошибкой")
		} else if deleted > 0 {
			s.log.WithField("deleted", deleted).Debug("истёкшие сессии удалены")
		}
	}
}
