// Package handler is the HTTP and websocket adapter in front of the coordinator.
package handler

import (
	"log/slog"
	"time"

	"pairup/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

// Handler holds what the routes need: the coordinator and the token settings.
type Handler struct {
	Hub       *chathub.Coordinator
	JWTSecret []byte
	JWTExpiry time.Duration
	logger    *slog.Logger
}

func NewHandler(hub *chathub.Coordinator, jwtSecret string, jwtExpiry time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Hub:       hub,
		JWTSecret: []byte(jwtSecret),
		JWTExpiry: jwtExpiry,
		logger:    logger.With("component", "http"),
	}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/presence", h.GetPresence)
	r.GET("/health", h.Health)
}

// NewRouter returns a gin engine with recovery and the routes registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Routes(r)
	return r
}
