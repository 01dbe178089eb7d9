package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/approvhq/approv-backend/internal/http/handlers/common"
	"github.com/approvhq/approv-backend/internal/models"
	"github.com/approvhq/approv-backend/internal/service"
)

// AuthHandler обслуживает регистрацию, вход и управление сотрудниками.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler создаёт новый хэндлер.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRequest описывает данные регистрации студии.
type RegisterRequest struct {
	OrganizationName string `json:"organization_name" binding:"required"`
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	Name             string `json:"name" binding:"required"`
}

// LoginRequest содержит данные входа.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest описывает запрос обновления пары токенов.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse описывает ответ регистрации и входа.
type AuthResponse struct {
	User         *models.User         `json:"user"`
	Organization *models.Organization `json:"organization"`
	Tokens       *service.TokenPair   `json:"tokens"`
}

// Register обрабатывает POST /api/auth/register: создаёт организацию
// и её владельца.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		IP:               c.ClientIP(),
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		User:         result.User,
		Organization: result.Organization,
		Tokens:       result.TokenPair,
	})
}

// Login обрабатывает POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		User:         result.User,
		Organization: result.Organization,
		Tokens:       result.TokenPair,
	})
}

// Refresh обрабатывает POST /api/auth/refresh: меняет refresh-токен
// на новую пару. Старая сессия при этом закрывается.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result.TokenPair)
}

// Logout обрабатывает POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "сессия завершена"})
}

// Me обрабатывает GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	user, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// AddMemberRequest содержит данные нового сотрудника.
type AddMemberRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// ChangeRoleRequest описывает запрос смены роли сотрудника.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ListMembers обрабатывает GET /api/members.
func (h *AuthHandler) ListMembers(c *gin.Context) {
	orgID, err := common.CurrentOrgID(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	members, err := h.auth.Members(c.Request.Context(), orgID)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

// AddMember обрабатывает POST /api/members. Доступно owner и admin.
func (h *AuthHandler) AddMember(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	var req AddMemberRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	member, err := h.auth.AddMember(c.Request.Context(), actor, service.AddMemberInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

// ChangeMemberRole обрабатывает PUT /api/members/:id/role.
func (h *AuthHandler) ChangeMemberRole(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	memberID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	var req ChangeRoleRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Error(c, err)
		return
	}

	member, err := h.auth.ChangeMemberRole(c.Request.Context(), actor, memberID, req.Role)
	if err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, member)
}

// RemoveMember обрабатывает DELETE /api/members/:id.
func (h *AuthHandler) RemoveMember(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	memberID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Error(c, err)
		return
	}

	if err := h.auth.RemoveMember(c.Request.Context(), actor, memberID); err != nil {
		common.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "сотрудник удалён"})
}
