package tasks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes task endpoints.
type Handlers struct {
	manager *Manager
	repo    *Repository
	log     zerolog.Logger
}

// NewHandlers creates task handlers.
func NewHandlers(manager *Manager, repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		repo:    repo,
		log:     log.With().Str("handler", "tasks").Logger(),
	}
}

// RegisterRoutes mounts task routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/run", h.handleRun)
	r.Get("/tasks", h.handleList)
	r.Get("/tasks/{taskID}", h.handleGet)
}

type runRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// POST /api/v1/tasks/run
func (h *Handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Type == "" {
		web.Error(w, h.log, apierr.Validation("type is required"))
		return
	}

	task, err := h.manager.Run(req.Type, req.Payload)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, task)
}

// GET /api/v1/tasks?limit=&status=&type=
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.repo.List(limit, r.URL.Query().Get("status"), r.URL.Query().Get("type"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// GET /api/v1/tasks/{taskID}
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.repo.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if task == nil {
		web.Error(w, h.log, apierr.Validation("task not found"))
		return
	}
	web.JSON(w, task)
}
