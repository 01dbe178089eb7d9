package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
)

// DashboardStats содержит сводку для главного экрана студии.
type DashboardStats struct {
	PendingApprovals  int     `json:"pending_approvals"`
	ApprovedApprovals int     `json:"approved_approvals"`
	ChangesRequested  int     `json:"changes_requested"`
	ExpiredApprovals  int     `json:"expired_approvals"`
	ActiveProjects    int     `json:"active_projects"`
	ActiveClients     int     `json:"active_clients"`
	AvgResponseHours  float64 `json:"avg_response_hours"`
}

// DashboardApprovalReader отдаёт агрегаты по согласованиям для сводки.
type DashboardApprovalReader interface {
	CountByStatus(ctx context.Context, orgID uuid.UUID) ([]repository.StatusCount, error)
	AvgResponseHours(ctx context.Context, orgID uuid.UUID) (float64, error)
	List(ctx context.Context, orgID uuid.UUID, params repository.ListApprovalsParams) ([]models.Approval, error)
}

// CounterReader считает активные сущности организации.
type CounterReader interface {
	CountActive(ctx context.Context, orgID uuid.UUID) (int, error)
}

// dashboardCacheTTL время жизни кэша сводки.
const dashboardCacheTTL = 30 * time.Second

// DashboardService собирает сводку студии. Агрегаты кэшируются на
// короткое время: сводку открывают часто, а точность до секунды не нужна.
type DashboardService struct {
	approvals DashboardApprovalReader
	projects  CounterReader
	clients   CounterReader
	cache     *CacheService
}

// NewDashboardService создаёт сервис сводки.
func NewDashboardService(approvals DashboardApprovalReader, projects, clients CounterReader, cache *CacheService) *DashboardService {
	return &DashboardService{
		approvals: approvals,
		projects:  projects,
		clients:   clients,
		cache:     cache,
	}
}

// Stats возвращает сводку организации.
func (s *DashboardService) Stats(ctx context.Context, orgID uuid.UUID) (*DashboardStats, error) {
	cacheKey := "dashboard:" + orgID.String() + ":stats"
	if cached, ok := s.cache.Get(cacheKey); ok {
		if stats, ok := cached.(*DashboardStats); ok {
			return stats, nil
		}
	}

	counts, err := s.approvals.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: stats %w", err)
	}

	stats := &DashboardStats{}
	for _, c := range counts {
		switch c.Status {
		case models.ApprovalStatusPending:
			stats.PendingApprovals = c.Count
		case models.ApprovalStatusApproved:
			stats.ApprovedApprovals = c.Count
		case models.ApprovalStatusChangesRequested:
			stats.ChangesRequested = c.Count
		case models.ApprovalStatusExpired:
			stats.ExpiredApprovals = c.Count
		}
	}

	stats.AvgResponseHours, err = s.approvals.AvgResponseHours(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: stats %w", err)
	}

	stats.ActiveProjects, err = s.projects.CountActive(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: stats %w", err)
	}

	stats.ActiveClients, err = s.clients.CountActive(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("dashboard service: stats %w", err)
	}

	s.cache.Set(cacheKey, stats, dashboardCacheTTL)

	return stats, nil
}

// RecentApprovals возвращает последние согласования для сводки.
func (s *DashboardService) RecentApprovals(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Approval, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	approvals, err := s.approvals.List(ctx, orgID, repository.ListApprovalsParams{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("dashboard service: recent approvals %w", err)
	}

	return approvals, nil
}

// ExpiringSoon возвращает открытые согласования, срок которых истекает
// в ближайший интервал, ближайшие первыми.
func (s *DashboardService) ExpiringSoon(ctx context.Context, orgID uuid.UUID, within time.Duration, limit int) ([]models.Approval, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	approvals, err := s.approvals.List(ctx, orgID, repository.ListApprovalsParams{
		Status:        models.ApprovalStatusPending,
		ExpiresWithin: within,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard service: expiring soon %w", err)
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].ExpiresAt.Before(approvals[j].ExpiresAt)
	})

	return approvals, nil
}

// Overdue возвращает просроченные согласования без ответа.
func (s *DashboardService) Overdue(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Approval, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	approvals, err := s.approvals.List(ctx, orgID, repository.ListApprovalsParams{
		Status: models.ApprovalStatusExpired,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard service: overdue %w", err)
	}

	return approvals, nil
}
