package live

import (
	"net/http"

	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes the live trading surface.
type Handlers struct {
	broker Broker
	log    zerolog.Logger
}

// NewHandlers creates live handlers.
func NewHandlers(broker Broker, log zerolog.Logger) *Handlers {
	return &Handlers{
		broker: broker,
		log:    log.With().Str("handler", "live").Logger(),
	}
}

// RegisterRoutes mounts live routes. Every route answers through the broker
// port, which without an adapter means LIVE_NOT_AVAILABLE.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/live/orders", h.handlePlaceOrder)
	r.Delete("/live/orders/{orderID}", h.handleCancelOrder)
	r.Get("/live/positions", h.handlePositions)
}

// POST /api/v1/live/orders
func (h *Handlers) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var order Order
	if err := web.DecodeJSON(r, &order); err != nil {
		web.Error(w, h.log, err)
		return
	}
	orderID, err := h.broker.PlaceOrder(r.Context(), order)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"order_id": orderID})
}

// DELETE /api/v1/live/orders/{orderID}
func (h *Handlers) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.CancelOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"cancelled": chi.URLParam(r, "orderID")})
}

// GET /api/v1/live/positions
func (h *Handlers) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.broker.Positions(r.Context())
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, positions)
}
