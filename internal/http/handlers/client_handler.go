package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// ClientHandler обслуживает справочник клиентов студии.
type ClientHandler struct {
	clients *service.ClientService
}

// NewClientHandler создаёт новый хэндлер.
func NewClientHandler(clients *service.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

// ClientRequest содержит данные клиента при создании и обновлении.
type ClientRequest struct {
	Name    string  `json:"name" binding:"required"`
	Email   string  `json:"email" binding:"required"`
	Phone   *string `json:"phone"`
	Company *string `json:"company"`
	Notes   *string `json:"notes"`
}

func (r *ClientRequest) toInput() service.ClientInput {
	return service.ClientInput{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Company: r.Company,
		Notes:   r.Notes,
	}
}

// Create обрабатывает POST /api/clients.
func (h *ClientHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req ClientRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	client, err := h.clients.Create(c.Request.Context(), actor, req.toInput())
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, client)
}

// List обрабатывает GET /api/clients. Параметр search ищет по имени,
// email и компании; include_archived=true добавляет архивных.
func (h *ClientHandler) List(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	params := repository.ListClientsParams{
		Search:          c.Query("search"),
		IncludeArchived: c.Query("include_archived") == "true",
	}
	params.Limit, params.Offset = common.Pagination(c, 50, 200)

	clients, err := h.clients.List(c.Request.Context(), orgID, params)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, clients)
}

// Get обрабатывает GET /api/clients/:id.
func (h *ClientHandler) Get(c *gin.Context) {
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

	client, err := h.clients.Get(c.Request.Context(), orgID, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// Update обрабатывает PUT /api/clients/:id.
func (h *ClientHandler) Update(c *gin.Context) {
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

	var req ClientRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	client, err := h.clients.Update(c.Request.Context(), actor, id, req.toInput())
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// RegeneratePortalToken обрабатывает POST /api/clients/:id/regenerate-token:
// перевыпускает ссылку личной страницы, старая перестаёт работать.
func (h *ClientHandler) RegeneratePortalToken(c *gin.Context) {
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

	client, err := h.clients.RegeneratePortalToken(c.Request.Context(), actor, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// Archive обрабатывает DELETE /api/clients/:id: клиент скрывается из
// списков, история согласований сохраняется.
func (h *ClientHandler) Archive(c *gin.Context) {
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

	if err := h.clients.Archive(c.Request.Context(), actor, id); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "клиент перенесён в архив"})
}
