package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// DashboardHandler обслуживает сводку кабинета: счётчики, горящие
// сроки и ленту последних действий.
type DashboardHandler struct {
	dashboard *service.DashboardService
	audit     *service.AuditService
}

// NewDashboardHandler создаёт новый хэндлер.
func NewDashboardHandler(dashboard *service.DashboardService, audit *service.AuditService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, audit: audit}
}

// Stats обрабатывает GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	stats, err := h.dashboard.Stats(c.Request.Context(), orgID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Recent обрабатывает GET /api/dashboard/recent: последние
// согласования организации.
func (h *DashboardHandler) Recent(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	limit := common.ParseIntQuery(c, "limit", 10)

	approvals, err := h.dashboard.RecentApprovals(c.Request.Context(), orgID, limit)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, withEffectiveStatus(approvals))
}

// ExpiringSoon обрабатывает GET /api/dashboard/expiring: открытые
// согласования, срок которых истекает в ближайшие дни.
func (h *DashboardHandler) ExpiringSoon(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	days := common.ParseIntQuery(c, "days", 3)
	if days < 1 {
		days = 1
	}
	limit := common.ParseIntQuery(c, "limit", 10)

	approvals, err := h.dashboard.ExpiringSoon(c.Request.Context(), orgID, time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, withEffectiveStatus(approvals))
}

// Overdue обрабатывает GET /api/dashboard/overdue: просроченные без
// ответа клиента.
func (h *DashboardHandler) Overdue(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	limit := common.ParseIntQuery(c, "limit", 10)

	approvals, err := h.dashboard.Overdue(c.Request.Context(), orgID, limit)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, withEffectiveStatus(approvals))
}

// Activity обрабатывает GET /api/dashboard/activity: последние записи
// журнала аудита для ленты на главной.
func (h *DashboardHandler) Activity(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	limit, offset := common.Pagination(c, 20, 100)

	entries, err := h.audit.List(c.Request.Context(), orgID, repository.ListAuditParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// withEffectiveStatus подставляет статус с учётом срока действия.
func withEffectiveStatus(approvals []models.Approval) []models.Approval {
	now := time.Now()
	for i := range approvals {
		approvals[i].Status = approvals[i].EffectiveStatus(now)
	}
	return approvals
}
