package handler

import (
	"net/http"

	"pairup/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// GetPresence returns the presence.snapshot event for "who's online" surfaces.
func (h *Handler) GetPresence(c *gin.Context) {
	if _, err := h.identify(c); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}
	c.JSON(http.StatusOK, models.Event{
		Type:   models.EventPresenceSnapshot,
		Online: h.Hub.PresenceSnapshot(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": h.Hub.Stats()})
}
