package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/service"
)

// SeedHandler наполняет организацию демонстрационными данными.
// Маршрут подключается только вне production.
type SeedHandler struct {
	seed *service.SeedService
}

// NewSeedHandler создаёт новый хэндлер.
func NewSeedHandler(seed *service.SeedService) *SeedHandler {
	return &SeedHandler{seed: seed}
}

// SeedRequest задаёт объёмы генерации.
type SeedRequest struct {
	NumClients  int `json:"num_clients"`
	NumProjects int `json:"num_projects"`
}

// Seed обрабатывает POST /api/seed: создаёт фейковых клиентов,
// проекты и согласования в разных состояниях.
func (h *SeedHandler) Seed(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	req := SeedRequest{NumClients: 8, NumProjects: 12}
	if c.Request.ContentLength > 0 {
		if err := common.BindJSON(c, &req); err != nil {
			common.Error(c, err)
			return
		}
	}

	if req.NumClients < 1 {
		req.NumClients = 8
	}
	if req.NumClients > 100 {
		req.NumClients = 100
	}
	if req.NumProjects < 1 {
		req.NumProjects = 12
	}
	if req.NumProjects > 200 {
		req.NumProjects = 200
	}

	if err := h.seed.SeedData(c.Request.Context(), orgID, req.NumClients, req.NumProjects); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "демонстрационные данные созданы",
		"num_clients":  req.NumClients,
		"num_projects": req.NumProjects,
	})
}
