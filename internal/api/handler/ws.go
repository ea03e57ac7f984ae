package handler

import (
	"net/http"

	"sapex/backend/internal/observability"
	"sapex/backend/internal/supporthub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin is accepted; the token authenticates the caller.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the connection and hands the client to the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := UserID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		observability.LoggerFromContext(c.Request.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	client := supporthub.NewWebSocketClient(h.Hub, conn, userID)
	select {
	case h.Hub.RegisterCh <- client:
	case <-h.Hub.Done():
		conn.Close()
	}
}
