package audit

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes the audit trail.
type Handlers struct {
	recorder *Recorder
	log      zerolog.Logger
}

// NewHandlers creates audit handlers.
func NewHandlers(recorder *Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		recorder: recorder,
		log:      log.With().Str("handler", "audit").Logger(),
	}
}

// RegisterRoutes mounts audit routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/audit", h.handleList)
}

// handleList returns audit entries for one entity, newest first.
// GET /api/v1/audit?entity_type=&entity_id=&limit=
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if entityType == "" || entityID == "" {
		web.Error(w, h.log, apierr.Validation("entity_type and entity_id are required"))
		return
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.recorder.List(entityType, entityID, limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}
