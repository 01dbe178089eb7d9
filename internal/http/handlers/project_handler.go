package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/pkg/apperror"
	"github.com/approvhq/approv-backend/internal/repository"
	"github.com/approvhq/approv-backend/internal/service"
)

// ProjectHandler обслуживает проекты студии.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler создаёт новый хэндлер.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest содержит данные нового проекта.
type CreateProjectRequest struct {
	ClientID uuid.UUID `json:"client_id" binding:"required"`
	Name     string    `json:"name" binding:"required"`
	Stage    string    `json:"stage"`
	Address  *string   `json:"address"`
}

// UpdateProjectRequest содержит данные обновления проекта.
type UpdateProjectRequest struct {
	Name    string  `json:"name" binding:"required"`
	Stage   string  `json:"stage" binding:"required"`
	Status  string  `json:"status" binding:"required"`
	Address *string `json:"address"`
}

// Create обрабатывает POST /api/projects.
func (h *ProjectHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req CreateProjectRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	project, err := h.projects.Create(c.Request.Context(), actor, service.CreateProjectInput{
		ClientID: req.ClientID,
		Name:     req.Name,
		Stage:    req.Stage,
		Address:  req.Address,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

// List обрабатывает GET /api/projects. Фильтры: client_id, stage, status.
func (h *ProjectHandler) List(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	params := repository.ListProjectsParams{
		Stage:  c.Query("stage"),
		Status: c.Query("status"),
	}
	params.Limit, params.Offset = common.Pagination(c, 50, 200)

	if raw := c.Query("client_id"); raw != "" {
		clientID, err := uuid.Parse(raw)
		if err != nil {
			common.Error(c, apperror.New(apperror.ErrCodeBadRequest, "неверный формат client_id"))
			return
		}
		params.ClientID = &clientID
	}

	projects, err := h.projects.List(c.Request.Context(), orgID, params)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, projects)
}

// Get обрабатывает GET /api/projects/:id.
func (h *ProjectHandler) Get(c *gin.Context) {
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

	project, err := h.projects.Get(c.Request.Context(), orgID, id)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// Update обрабатывает PUT /api/projects/:id.
func (h *ProjectHandler) Update(c *gin.Context) {
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

	var req UpdateProjectRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	project, err := h.projects.Update(c.Request.Context(), actor, id, service.UpdateProjectInput{
		Name:    req.Name,
		Stage:   req.Stage,
		Status:  req.Status,
		Address: req.Address,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}
