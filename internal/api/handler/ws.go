package handler

import (
	"net/http"
	"strings"

	"pairup/backend/internal/chathub"
	"pairup/backend/internal/config"
	"pairup/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and hands the connection to the coordinator as a
// connect(). Preferences and extra blocked user ids come from the query string:
// language, region, interests and blocked, the last two comma separated.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	id, err := h.identify(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	req := models.ConnectRequest{
		ConnectionID: id.AnonID,
		UserID:       id.UserID,
		BlockedIDs:   splitList(c.Query("blocked")),
		Preferences: models.Preferences{
			Language:  c.Query("language"),
			Region:    c.Query("region"),
			Interests: splitList(c.Query("interests")),
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "anon_id", id.AnonID, "error", err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, req, config.ClientSendBufferSize)

	select {
	case h.Hub.RegisterCh <- client:
		client.Run()
	case <-h.Hub.Done():
		conn.Close()
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
