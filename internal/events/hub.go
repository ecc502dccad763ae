// Package events fans out job and story block events to websocket clients.
// Every event carries a user_id and only reaches that user's connections.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"comictracker/internal/logging"
)

const writeTimeout = 2 * time.Second

type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string
	logger  *slog.Logger
}

type Stats struct {
	Clients int `json:"clients"`
	Users   int `json:"users"`
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		logger:  logging.OrDiscard(logger),
	}
}

func (h *Hub) Add(ws *websocket.Conn, userID string) {
	h.mu.Lock()
	h.clients[ws] = userID
	h.mu.Unlock()
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

type envelope struct {
	UserID string `json:"user_id"`
}

// BroadcastJSON sends v to the connections of the user named by its user_id
// field. Events without one are dropped. Clients that fail a write are
// disconnected.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("encode event", "error", err)
		return
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil || env.UserID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws, user := range h.clients {
		if user != env.UserID {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := map[string]struct{}{}
	for _, u := range h.clients {
		users[u] = struct{}{}
	}
	return Stats{Clients: len(h.clients), Users: len(users)}
}
