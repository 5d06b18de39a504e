package events

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSHandler streams events to a websocket client until it disconnects.
type WSHandler struct {
	manager *Manager
	log     zerolog.Logger
}

// NewWSHandler creates a websocket handler bound to the event manager.
func NewWSHandler(manager *Manager, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		manager: manager,
		log:     log.With().Str("handler", "events").Logger(),
	}
}

// ServeHTTP upgrades the connection and forwards events as JSON messages.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Local tool, same-origin policy not useful here
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sub, cancel := h.manager.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}
