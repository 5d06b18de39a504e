package reliability

import (
	"net/http"

	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes backup endpoints.
type Handlers struct {
	backup *BackupService
	audit  *audit.Recorder
	log    zerolog.Logger
}

// NewHandlers creates backup handlers.
func NewHandlers(backup *BackupService, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		backup: backup,
		audit:  auditRec,
		log:    log.With().Str("handler", "backup").Logger(),
	}
}

// RegisterRoutes mounts backup routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/backup/run", h.handleRun)
	r.Get("/backup/list", h.handleList)
}

// POST /api/v1/backup/run
func (h *Handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	info, err := h.backup.Run(r.Context())
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "backup.run", EntityType: "backup", EntityID: info.Filename,
		Output: map[string]interface{}{"size_bytes": info.SizeBytes},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, info)
}

// GET /api/v1/backup/list
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.backup.List()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}
