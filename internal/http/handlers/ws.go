package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shifa-clinics/booking-gateway/internal/events"
	"github.com/shifa-clinics/booking-gateway/internal/http/middleware"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSHandler streams cart and session change events to the browser so the
// cart badge and login indicator update without polling. Each connection only
// receives events for its own visitor.
type WSHandler struct {
	bus    *events.Bus
	logger *logging.Logger

	upgrader websocket.Upgrader
}

// NewWSHandler creates the websocket handler. checkOrigin follows the CORS
// allowlist; nil allows same-host connections only.
func NewWSHandler(bus *events.Bus, checkOrigin func(r *http.Request) bool, logger *logging.Logger) *WSHandler {
	if bus == nil {
		panic("handlers: event bus required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WSHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Serve upgrades the connection and forwards the visitor's events until the
// client goes away.
// GET /ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	visitorID := middleware.VisitorID(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "visitor_id", visitorID, "error", err)
		return
	}
	defer conn.Close()

	cartCh, cancelCart := h.bus.Subscribe(events.TopicCartChanged)
	defer cancelCart()
	sessionCh, cancelSession := h.bus.Subscribe(events.TopicSessionChanged)
	defer cancelSession()

	// Reader goroutine: we never expect client frames, but reading is what
	// detects the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-cartCh:
			if !ok || !h.send(conn, visitorID, evt) {
				return
			}
		case evt, ok := <-sessionCh:
			if !ok || !h.send(conn, visitorID, evt) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// send writes one event if it belongs to this visitor. Returns false when the
// connection is gone.
func (h *WSHandler) send(conn *websocket.Conn, visitorID string, evt events.Event) bool {
	if evt.VisitorID != visitorID {
		return true
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(evt); err != nil {
		h.logger.Warn("websocket write failed", "visitor_id", visitorID, "error", err)
		return false
	}
	return true
}
