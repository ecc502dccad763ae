package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comictracker/internal/auth"
)

type event struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

func newServer(t *testing.T) (*Hub, auth.TokenService, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	tokens := auth.TokenService{Secret: []byte("test-secret"), Duration: time.Hour}
	r := gin.New()
	r.GET("/ws", WSHandler(hub, tokens))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, tokens, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	var welcome map[string]string
	require.NoError(t, ws.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome["type"])
	return ws
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Stats().Clients == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesOnlyOwner(t *testing.T) {
	hub, tokens, srv := newServer(t)
	tokA, _, err := tokens.Sign("user-a")
	require.NoError(t, err)
	tokB, _, err := tokens.Sign("user-b")
	require.NoError(t, err)

	a := dial(t, srv, tokA)
	b := dial(t, srv, tokB)
	waitClients(t, hub, 2)
	assert.Equal(t, 2, hub.Stats().Users)

	hub.BroadcastJSON(event{Type: "job.updated", UserID: "user-b"})
	hub.BroadcastJSON(event{Type: "job.updated", UserID: "user-a"})
	hub.BroadcastJSON(map[string]string{"type": "orphan"})

	var got event
	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, a.ReadJSON(&got))
	assert.Equal(t, "user-a", got.UserID)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, b.ReadJSON(&got))
	assert.Equal(t, "user-b", got.UserID)

	// nothing else is queued for a
	require.NoError(t, a.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = a.ReadMessage()
	assert.Error(t, err)
}

func TestWSRejectsBadToken(t *testing.T) {
	_, _, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/ws?token=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRemoveOnDisconnect(t *testing.T) {
	hub, tokens, srv := newServer(t)
	tok, _, err := tokens.Sign("user-a")
	require.NoError(t, err)

	ws := dial(t, srv, tok)
	waitClients(t, hub, 1)
	require.NoError(t, ws.Close())
	waitClients(t, hub, 0)
}
