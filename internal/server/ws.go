package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/penguinblur/penguinblur-api/internal/telemetry"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the same origins CORS already admits.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Events handles GET /ws: upgrades the connection and streams hub events
// until the client disconnects. Each connection gets its own subscription,
// so a slow client only ever loses its own events.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := h.service.Subscribe()
	telemetry.EventSubscribers.Inc()

	// Writer: drains the subscription onto the wire.
	go func() {
		defer func() { _ = conn.Close() }()
		for event := range sub.Events() {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteTimeout))
	}()

	// Reader: only exists to notice the client going away.
	go func() {
		defer func() {
			sub.Close()
			telemetry.EventSubscribers.Dec()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
