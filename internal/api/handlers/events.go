package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/xuecangming/file-manager/internal/core/logger"
	"github.com/xuecangming/file-manager/internal/service/events"
)

const eventWriteTimeout = 10 * time.Second

// EventsHandler streams hub events to websocket clients
type EventsHandler struct {
	hub     *events.Hub
	origins []string
}

// NewEventsHandler creates a new events handler. origins are the accepted
// Origin host patterns, nil means same-origin only.
func NewEventsHandler(hub *events.Hub, origins []string) *EventsHandler {
	return &EventsHandler{hub: hub, origins: origins}
}

// Stream handles GET /events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithContext(r.Context())

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept has already written the HTTP error
		log.Debug("websocket upgrade failed", logger.Error(err))
		return
	}
	defer c.CloseNow()

	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	// clients only listen; CloseRead handles their control frames
	ctx := c.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				log.Debug("event stream closed", logger.Error(err))
				return
			}
		}
	}
}
