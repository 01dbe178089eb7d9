package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/service"
)

// SettingsHandler обслуживает настройки организации: профиль студии
// и переопределения писем.
type SettingsHandler struct {
	orgs *service.OrganizationService
}

// NewSettingsHandler создаёт новый хэндлер.
func NewSettingsHandler(orgs *service.OrganizationService) *SettingsHandler {
	return &SettingsHandler{orgs: orgs}
}

// GetOrganization обрабатывает GET /api/organization.
func (h *SettingsHandler) GetOrganization(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	org, err := h.orgs.Get(c.Request.Context(), orgID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

// UpdateOrganizationRequest перечисляет изменяемые поля организации.
type UpdateOrganizationRequest struct {
	Name    string  `json:"name" binding:"required"`
	LogoURL *string `json:"logo_url"`
}

// UpdateOrganization обрабатывает PUT /api/organization.
func (h *SettingsHandler) UpdateOrganization(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req UpdateOrganizationRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	org, err := h.orgs.Update(c.Request.Context(), actor, service.OrganizationInput{
		Name:    req.Name,
		LogoURL: req.LogoURL,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

// ListEmailTemplates обрабатывает GET /api/settings/email-templates.
func (h *SettingsHandler) ListEmailTemplates(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	templates, err := h.orgs.EmailTemplates(c.Request.Context(), orgID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, templates)
}

// EmailTemplateRequest описывает переопределение письма.
type EmailTemplateRequest struct {
	Subject  string `json:"subject" binding:"required"`
	BodyHTML string `json:"body_html" binding:"required"`
}

// UpsertEmailTemplate обрабатывает PUT /api/settings/email-templates/:kind.
func (h *SettingsHandler) UpsertEmailTemplate(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req EmailTemplateRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	tpl, err := h.orgs.UpsertEmailTemplate(c.Request.Context(), actor, service.EmailTemplateInput{
		Kind:     c.Param("kind"),
		Subject:  req.Subject,
		BodyHTML: req.BodyHTML,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, tpl)
}

// DeleteEmailTemplate обрабатывает DELETE /api/settings/email-templates/:kind:
// возвращает вид письма к встроенному шаблону.
func (h *SettingsHandler) DeleteEmailTemplate(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	if err := h.orgs.DeleteEmailTemplate(c.Request.Context(), actor, c.Param("kind")); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "шаблон сброшен к встроенному"})
}
