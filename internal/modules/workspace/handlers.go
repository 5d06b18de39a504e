package workspace

import (
	"net/http"

	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes the workspace endpoint.
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates workspace handlers.
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handler", "workspace").Logger(),
	}
}

// RegisterRoutes mounts workspace routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/stocks/{exchange}/{symbol}/workspace", h.handleWorkspace)
}

// GET /api/v1/stocks/{exchange}/{symbol}/workspace
func (h *Handlers) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := web.ResolveInstrument(chi.URLParam(r, "symbol"), chi.URLParam(r, "exchange"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	view, err := h.service.Build(symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, view)
}
