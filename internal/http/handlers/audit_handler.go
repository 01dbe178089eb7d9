package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// AuditHandler отдаёт журнал аудита организации.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler создаёт новый хэндлер.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List обрабатывает GET /api/audit. Фильтры: action, entity_type,
// entity_id, from и to в формате RFC3339.
func (h *AuditHandler) List(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	params := repository.ListAuditParams{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
	}
	params.Limit, params.Offset = common.Pagination(c, 50, 200)

	if raw := c.Query("entity_id"); raw != "" {
		entityID, err := uuid.Parse(raw)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат entity_id"))
			return
		}
		params.EntityID = &entityID
	}

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат from, ожидается RFC3339"))
			return
		}
		params.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат to, ожидается RFC3339"))
			return
		}
		params.To = &to
	}

	entries, err := h.audit.List(c.Request.Context(), orgID, params)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
