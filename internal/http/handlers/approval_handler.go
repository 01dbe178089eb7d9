package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/obs"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// ApprovalHandler обслуживает жизненный цикл согласований в кабинете
// студии: от черновика до отправки, напоминаний и выгрузки отчёта.
type ApprovalHandler struct {
	approvals *service.ApprovalService
	reports   *service.ReportService
	cache     *service.CacheService
}

// NewApprovalHandler создаёт новый хэндлер.
func NewApprovalHandler(approvals *service.ApprovalService, reports *service.ReportService, cache *service.CacheService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, reports: reports, cache: cache}
}

// CreateApprovalRequest содержит данные нового согласования.
type CreateApprovalRequest struct {
	ProjectID   uuid.UUID `json:"project_id" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Description *string   `json:"description"`
	ExpiryDays  int       `json:"expiry_days"`
}

// present дополняет согласование производными полями перед выдачей:
// статус с учётом срока и ссылка на портал.
func (h *ApprovalHandler) present(approval *models.Approval, now time.Time) {
	approval.Status = approval.EffectiveStatus(now)
	if approval.Token != "" {
		approval.PortalURL = h.approvals.PortalURL(approval.Token)
	}
}

// Create обрабатывает POST /api/approvals: создаёт черновик, ссылка
// клиенту на этом шаге не уходит.
func (h *ApprovalHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req CreateApprovalRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	approval, err := h.approvals.Create(c.Request.Context(), actor, service.CreateApprovalInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		ExpiryDays:  req.ExpiryDays,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	h.cache.InvalidateOrgCache(actor.OrgID)
	h.present(approval, time.Now())
	c.JSON(http.StatusCreated, approval)
}

// List обрабатывает GET /api/approvals. Фильтры: status, project_id,
// client_id; status=expired отбирает просроченные без ответа.
func (h *ApprovalHandler) List(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	params := repository.ListApprovalsParams{Status: c.Query("status")}
	params.Limit, params.Offset = common.Pagination(c, 20, 100)

	if raw := c.Query("project_id"); raw != "" {
		projectID, err := uuid.Parse(raw)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат project_id"))
			return
		}
		params.ProjectID = &projectID
	}
	if raw := c.Query("client_id"); raw != "" {
		clientID, err := uuid.Parse(raw)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат client_id"))
			return
		}
		params.ClientID = &clientID
	}

	approvals, err := h.approvals.List(c.Request.Context(), orgID, params)
	if err != nil {
		common.Error(c, err)
		return
	}

	now := time.Now()
	for i := range approvals {
		h.present(&approvals[i], now)
	}

	c.JSON(http.StatusOK, approvals)
}

// Get обрабатывает GET /api/approvals/:id.
func (h *ApprovalHandler) Get(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	approval, err := h.approvals.Get(c.Request.Context(), orgID, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	h.present(approval, time.Now())
	c.JSON(http.StatusOK, approval)
}

// Send обрабатывает POST /api/approvals/:id/send: отправляет клиенту
// письмо со ссылкой на портал.
func (h *ApprovalHandler) Send(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	approval, err := h.approvals.Send(c.Request.Context(), actor, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	obs.ApprovalsSentTotal.Inc()
	h.cache.InvalidateOrgCache(actor.OrgID)
	h.present(approval, time.Now())
	c.JSON(http.StatusOK, approval)
}

// Resubmit обрабатывает POST /api/approvals/:id/resubmit: повторная
// отправка после правок, версия растёт, токен перевыпускается.
func (h *ApprovalHandler) Resubmit(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	approval, err := h.approvals.Resubmit(c.Request.Context(), actor, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	obs.ApprovalsSentTotal.Inc()
	h.cache.InvalidateOrgCache(actor.OrgID)
	h.present(approval, time.Now())
	c.JSON(http.StatusOK, approval)
}

// Remind обрабатывает POST /api/approvals/:id/remind: ручное
// напоминание клиенту с защитой от слишком частых отправок.
func (h *ApprovalHandler) Remind(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	if err := h.approvals.Remind(c.Request.Context(), actor, id); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "напоминание отправлено"})
}

// Revoke обрабатывает POST /api/approvals/:id/revoke: отзывает
// открытое согласование, ссылка перестаёт работать.
func (h *ApprovalHandler) Revoke(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	if err := h.approvals.Revoke(c.Request.Context(), actor, id); err != nil {
		common.Error(c, err)
		return
	}

	h.cache.InvalidateOrgCache(actor.OrgID)
	c.JSON(http.StatusOK, gin.H{"message": "согласование отозвано"})
}

// Report обрабатывает GET /api/approvals/:id/report: выгружает
// PDF-отчёт с хронологией согласования.
func (h *ApprovalHandler) Report(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	var buf bytes.Buffer
	fileName, err := h.reports.Generate(c.Request.Context(), &buf, orgID, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
