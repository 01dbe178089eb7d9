// Package ws доставляет события организации в открытые WebSocket-сессии
// её сотрудников. Лента уведомлений хранится отдельно, хаб отвечает
// только за живую доставку.
package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/approvhq/approv-backend/internal/goroutine"
)

// Hub управляет всеми WebSocket клиентами, сгруппированными по
// организациям.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	ctx        context.Context
}

type message struct {
	orgID   uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
		ctx:        ctx,
	}
}

// Run запускает главный цикл хаба. Завершается вместе с контекстом.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.orgID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToOrg отправляет сообщение во все сессии организации.
// Сообщение уже сериализовано вызывающим.
func (h *Hub) BroadcastToOrg(orgID uuid.UUID, payload []byte) {
	select {
	case h.broadcast <- message{orgID: orgID, payload: payload}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.orgID]; !ok {
		h.clients[client.orgID] = make(map[*Client]struct{})
	}
	h.clients[client.orgID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.orgID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.orgID)
		}
	}
}

func (h *Hub) send(orgID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[orgID] {
		select {
		case client.send <- payload:
		default:
			// Медленного клиента отключаем, не задерживая остальных.
			goroutine.SafeGo(client.Close)
		}
	}
}
