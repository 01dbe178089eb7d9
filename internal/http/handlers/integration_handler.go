package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/service"
)

// IntegrationHandler обслуживает подключение внешних сервисов:
// OAuth-подключение, настройку и просмотр данных провайдеров.
type IntegrationHandler struct {
	integrations *service.IntegrationService
	// dashboardBaseURL указывает, куда возвращать браузер после OAuth-callback.
	dashboardBaseURL string
}

// NewIntegrationHandler создаёт новый хэндлер.
func NewIntegrationHandler(integrations *service.IntegrationService, dashboardBaseURL string) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrations, dashboardBaseURL: dashboardBaseURL}
}

// List обрабатывает GET /api/integrations.
func (h *IntegrationHandler) List(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	accounts, err := h.integrations.List(c.Request.Context(), orgID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, accounts)
}

// Connect обрабатывает POST /api/integrations/:provider/connect:
// выдаёт ссылку авторизации провайдера.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	provider := c.Param("provider")
	if !models.ValidIntegrationProviders[provider] {
		common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неизвестный провайдер интеграции"))
		return
	}

	url, err := h.integrations.Connect(c.Request.Context(), actor, provider)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Callback обрабатывает GET /api/integrations/:provider/callback.
// Сюда возвращается браузер пользователя после согласия у провайдера,
// поэтому ответом служит редирект в настройки кабинета, а не JSON.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	settingsURL := h.dashboardBaseURL + "/settings/integrations"

	if !models.ValidIntegrationProviders[provider] {
		c.Redirect(http.StatusFound, settingsURL+"?error=unknown_provider")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.Redirect(http.StatusFound, settingsURL+"?error=oauth_denied")
		return
	}

	if err := h.integrations.Callback(c.Request.Context(), provider, code, state, c.ClientIP()); err != nil {
		c.Redirect(http.StatusFound, settingsURL+"?error=oauth_failed")
		return
	}

	c.Redirect(http.StatusFound, settingsURL+"?connected="+provider)
}

// Disconnect обрабатывает DELETE /api/integrations/:provider.
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	provider := c.Param("provider")
	if !models.ValidIntegrationProviders[provider] {
		common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неизвестный провайдер интеграции"))
		return
	}

	if err := h.integrations.Disconnect(c.Request.Context(), actor, provider); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "интеграция отключена"})
}

// requireProvider проверяет, что маршрут вызван для нужного провайдера.
func requireProvider(c *gin.Context, want string) bool {
	if c.Param("provider") != want {
		common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "операция доступна только для провайдера "+want))
		return false
	}
	return true
}

// MondayBoards обрабатывает GET /api/integrations/:provider/boards.
func (h *IntegrationHandler) MondayBoards(c *gin.Context) {
	if !requireProvider(c, models.IntegrationProviderMonday) {
		return
	}

	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	boards, err := h.integrations.ListBoards(c.Request.Context(), orgID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, boards)
}

// ConfigureMondayRequest описывает выбор доски и колонки статуса.
type ConfigureMondayRequest struct {
	BoardID        string `json:"board_id" binding:"required"`
	StatusColumnID string `json:"status_column_id"`
}

// ConfigureMonday обрабатывает PUT /api/integrations/:provider/config.
func (h *IntegrationHandler) ConfigureMonday(c *gin.Context) {
	if !requireProvider(c, models.IntegrationProviderMonday) {
		return
	}

	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req ConfigureMondayRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	if err := h.integrations.ConfigureMonday(c.Request.Context(), actor, req.BoardID, req.StatusColumnID); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "интеграция Monday настроена"})
}

// DropboxFiles обрабатывает GET /api/integrations/:provider/files:
// листинг папки Dropbox для выбора материалов.
func (h *IntegrationHandler) DropboxFiles(c *gin.Context) {
	if !requireProvider(c, models.IntegrationProviderDropbox) {
		return
	}

	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	entries, err := h.integrations.DropboxEntries(c.Request.Context(), orgID, c.Query("path"))
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// DropboxFileLink обрабатывает GET /api/integrations/:provider/files/link:
// временная ссылка на файл в Dropbox.
func (h *IntegrationHandler) DropboxFileLink(c *gin.Context) {
	if !requireProvider(c, models.IntegrationProviderDropbox) {
		return
	}

	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	path := c.Query("path")
	if path == "" {
		common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "параметр path обязателен"))
		return
	}

	url, name, err := h.integrations.DropboxFileLink(c.Request.Context(), orgID, path)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "name": name})
}
