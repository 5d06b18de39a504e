package plans

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes plan endpoints.
type Handlers struct {
	service *Service
	repo    *Repository
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates plan handlers.
func NewHandlers(service *Service, repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		repo:    repo,
		audit:   auditRec,
		log:     log.With().Str("handler", "plans").Logger(),
	}
}

// RegisterRoutes mounts plan routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/plans/generate", h.handleGenerate)
	r.Post("/plans", h.handleCreate)
	r.Get("/plans", h.handleList)
	r.Get("/plans/{planID}", h.handleGet)
	r.Patch("/plans/{planID}", h.handleUpdate)
}

type generateRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// POST /api/v1/plans/generate
func (h *Handlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	plan, err := h.service.Generate(symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "plan.generate", EntityType: "plan", EntityID: plan.PlanID,
		Input:  map[string]interface{}{"symbol": symbol, "exchange": exchange},
		Output: map[string]interface{}{"plan_version": plan.PlanVersion, "status": plan.Status},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, plan)
}

type createRequest struct {
	Symbol     string   `json:"symbol"`
	Exchange   string   `json:"exchange"`
	EntryLow   *float64 `json:"entry_low"`
	EntryHigh  *float64 `json:"entry_high"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	Notes      string   `json:"notes"`
}

// POST /api/v1/plans
func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	plan, err := h.repo.Create(Plan{
		Symbol:     symbol,
		Exchange:   exchange,
		EntryLow:   req.EntryLow,
		EntryHigh:  req.EntryHigh,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Notes:      req.Notes,
	})
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "plan.create", EntityType: "plan", EntityID: plan.PlanID,
		Input:  map[string]interface{}{"symbol": symbol, "exchange": exchange},
		Output: map[string]interface{}{"plan_version": plan.PlanVersion},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, plan)
}

// GET /api/v1/plans?symbol=&exchange=&limit=
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := web.ResolveInstrument(r.URL.Query().Get("symbol"), r.URL.Query().Get("exchange"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	limit := 20
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.repo.List(symbol, exchange, limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// GET /api/v1/plans/{planID}
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	plan, err := h.repo.Get(chi.URLParam(r, "planID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if plan == nil {
		web.Error(w, h.log, apierr.Validation("plan not found"))
		return
	}
	web.JSON(w, plan)
}

type updateRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// PATCH /api/v1/plans/{planID} - only status and notes are mutable
func (h *Handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusActive, StatusArchived, StatusDone:
		default:
			web.Error(w, h.log, apierr.Validation("invalid plan status %q", *req.Status))
			return
		}
	}

	plan, err := h.repo.UpdateStatusNotes(chi.URLParam(r, "planID"), req.Status, req.Notes)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if plan == nil {
		web.Error(w, h.log, apierr.Validation("plan not found"))
		return
	}
	web.JSON(w, plan)
}
