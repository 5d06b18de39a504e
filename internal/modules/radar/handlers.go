package radar

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/modules/tasks"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes radar endpoints.
type Handlers struct {
	repo    *Repository
	manager *tasks.Manager
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates radar handlers.
func NewHandlers(repo *Repository, manager *tasks.Manager, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:    repo,
		manager: manager,
		audit:   auditRec,
		log:     log.With().Str("handler", "radar").Logger(),
	}
}

// RegisterRoutes mounts radar routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/radar/templates", h.handleCreateTemplate)
	r.Get("/radar/templates", h.handleListTemplates)
	r.Get("/radar/templates/{templateID}", h.handleGetTemplate)
	r.Delete("/radar/templates/{templateID}", h.handleDeleteTemplate)
	r.Post("/radar/run", h.handleRun)
	r.Get("/radar/results/{taskID}", h.handleResults)
}

type createTemplateRequest struct {
	Name     string   `json:"name"`
	Universe Universe `json:"universe"`
	Rules    []Rule   `json:"rules"`
}

// POST /api/v1/radar/templates
func (h *Handlers) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Name == "" {
		web.Error(w, h.log, apierr.Validation("name is required"))
		return
	}
	switch req.Universe.Type {
	case UniverseAll, UniverseCustom, UniverseWatchlist:
	default:
		web.Error(w, h.log, apierr.Validation("universe type must be ALL, CUSTOM or WATCHLIST"))
		return
	}
	for _, rule := range req.Rules {
		switch rule.Op {
		case OpEq, OpIn, OpPrefix:
		default:
			web.Error(w, h.log, apierr.Validation("rule op must be eq, in or prefix"))
			return
		}
	}

	tpl, err := h.repo.CreateTemplate(Template{
		Name: req.Name, Universe: req.Universe, Rules: req.Rules,
	})
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "radar.template.create", EntityType: "radar_template", EntityID: tpl.TemplateID,
		Input: map[string]interface{}{"name": tpl.Name},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, tpl)
}

// GET /api/v1/radar/templates
func (h *Handlers) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListTemplates()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// GET /api/v1/radar/templates/{templateID}
func (h *Handlers) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.repo.GetTemplate(chi.URLParam(r, "templateID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if tpl == nil {
		web.Error(w, h.log, apierr.Validation("radar template not found"))
		return
	}
	web.JSON(w, tpl)
}

// DELETE /api/v1/radar/templates/{templateID}
func (h *Handlers) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")
	deleted, err := h.repo.DeleteTemplate(templateID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !deleted {
		web.Error(w, h.log, apierr.Validation("radar template not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "radar.template.delete", EntityType: "radar_template", EntityID: templateID,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"deleted": templateID})
}

type runRequest struct {
	TemplateID string `json:"template_id"`
}

// POST /api/v1/radar/run - executes asynchronously as a task
func (h *Handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	tpl, err := h.repo.GetTemplate(req.TemplateID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if tpl == nil {
		web.Error(w, h.log, apierr.Validation("radar template not found"))
		return
	}

	payload, _ := json.Marshal(map[string]string{"template_id": req.TemplateID})
	task, err := h.manager.Run(tasks.TypeRadarRun, payload)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "radar.run", EntityType: "task", EntityID: task.TaskID,
		Input: map[string]interface{}{"template_id": req.TemplateID},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, task)
}

// GET /api/v1/radar/results/{taskID}?limit=
func (h *Handlers) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.repo.Results(chi.URLParam(r, "taskID"), limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}
