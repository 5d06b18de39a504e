package health

import (
	"net/http"

	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes the health endpoint.
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates health handlers.
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handler", "health").Logger(),
	}
}

// RegisterRoutes mounts health routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

// GET /api/v1/health
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, h.service.Report(r.Context()))
}
