package instruments

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes instrument endpoints.
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates instrument handlers.
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "instruments").Logger(),
	}
}

// RegisterRoutes mounts instrument routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/instruments/search", h.handleSearch)
}

// handleSearch matches instruments by symbol prefix or name substring.
// GET /api/v1/instruments/search?q=&limit=
func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		web.Error(w, h.log, apierr.Validation("query parameter q is required"))
		return
	}

	limit := 20
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := h.repo.Search(query, limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": results, "count": len(results)})
}
