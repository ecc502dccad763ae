package events

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"comictracker/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// WSHandler streams the caller's events. Browsers cannot set headers on a
// websocket upgrade, so the token may also come from ?token=.
func WSHandler(hub *Hub, tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Query("token"))
		if h := c.GetHeader("Authorization"); raw == "" && strings.HasPrefix(strings.ToLower(h), "bearer ") {
			raw = strings.TrimSpace(h[len("Bearer "):])
		}
		claims, err := tokens.Parse(raw)
		if raw == "" || err != nil || claims.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		// written before Add so it cannot race a broadcast
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome","transport":"websocket"}`))
		hub.Add(ws, claims.UserID)
		hub.logger.Debug("event client connected", "user_id", claims.UserID)

		// incoming frames are ignored; reading keeps close and ping handling alive
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(ws)
		hub.logger.Debug("event client disconnected", "user_id", claims.UserID)
	}
}
