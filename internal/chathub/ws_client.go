package chathub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"pairup/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketClient implements Client over a gorilla websocket. Frames are JSON:
// models.ClientMessage inbound, models.Event outbound.
type WebSocketClient struct {
	Request models.ConnectRequest
	Conn    *websocket.Conn
	Hub     *Coordinator
	Send    chan models.Event
	Logger  *slog.Logger

	closeOnce sync.Once
}

// NewWebSocketClient wraps conn for the connection described by req.
func NewWebSocketClient(hub *Coordinator, conn *websocket.Conn, req models.ConnectRequest, bufferSize int) *WebSocketClient {
	return &WebSocketClient{
		Request: req,
		Conn:    conn,
		Hub:     hub,
		Send:    make(chan models.Event, bufferSize),
		Logger:  hub.opts.Logger.With("component", "ws_client", "connection_id", req.ConnectionID),
	}
}

func (c *WebSocketClient) GetConnectionID() string               { return c.Request.ConnectionID }
func (c *WebSocketClient) ConnectRequest() models.ConnectRequest { return c.Request }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event   { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump and closes the socket.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump forwards inbound frames to the coordinator. Losing the socket is a
// disconnect().
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.heartbeat()
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Logger.Warn("unexpected websocket close", "error", err)
			}
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Logger.Warn("malformed client frame", "error", err)
			continue
		}

		select {
		case c.Hub.IncomingCh <- Inbound{ConnectionID: c.GetConnectionID(), Message: msg}:
		case <-c.Hub.Done():
			return
		}
	}
}

// heartbeat reports a pong as a liveness signal. It is dropped when the coordinator
// is busy; the next pong retries.
func (c *WebSocketClient) heartbeat() {
	select {
	case c.Hub.IncomingCh <- Inbound{ConnectionID: c.GetConnectionID(), Message: models.ClientMessage{Type: models.MessageHeartbeat}}:
	default:
	}
}

// writePump writes events from Send to the socket and keeps it alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Closed by the coordinator.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				c.Logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
