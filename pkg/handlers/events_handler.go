package handlers

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/relay"
)

// EventsHandler upgrades chat surfaces to a WebSocket notification stream.
type EventsHandler struct {
	hub            *relay.Hub
	originPatterns []string
	logger         *zap.Logger
}

// NewEventsHandler creates a new events handler. originPatterns lists the
// browser origins allowed to connect; non-browser clients send no Origin
// and are always accepted.
func NewEventsHandler(hub *relay.Hub, originPatterns []string, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub:            hub,
		originPatterns: originPatterns,
		logger:         logger.Named("events-handler"),
	}
}

// RegisterRoutes registers the events handler's routes on the given mux.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/events", h.Stream)
}

// Stream handles GET /api/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.Debug("WebSocket upgrade rejected", zap.Error(err))
		return
	}

	if err := h.hub.ServeConn(r.Context(), conn); err != nil {
		h.logger.Info("Relay session ended", zap.Error(err))
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
