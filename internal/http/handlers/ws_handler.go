package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/approvhq/approv-backend/internal/service"
	"github.com/approvhq/approv-backend/internal/ws"
)

// WSHandler устанавливает WebSocket-соединения для live-уведомлений
// кабинета.
type WSHandler struct {
	hub      *ws.Hub
	tokens   *service.TokenManager
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт новый хэндлер.
func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager) *WSHandler {
	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle обслуживает GET /api/ws?token=... Токен передаётся в query:
// браузер не может выставить заголовок Authorization на WebSocket.
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access токен обязателен"})
		return
	}

	claims, err := h.tokens.ParseAccess(rawToken)
	if err != nil || claims.UserID == uuid.Nil || claims.OrgID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "невалидный access токен"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту сам.
		return
	}

	client := ws.NewClient(conn, h.hub, claims.OrgID, claims.UserID)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}
