package news

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes news endpoints.
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates news handlers.
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "news").Logger(),
	}
}

// RegisterRoutes mounts news routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/news", h.handleList)
}

// GET /api/v1/news?symbol=&limit=
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.repo.List(r.URL.Query().Get("symbol"), limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}
