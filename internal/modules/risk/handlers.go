package risk

import (
	"encoding/json"
	"net/http"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes risk endpoints.
type Handlers struct {
	service *Service
	rules   *RulesRepository
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates risk handlers.
func NewHandlers(service *Service, rules *RulesRepository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		rules:   rules,
		audit:   auditRec,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// RegisterRoutes mounts risk routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/risk/rules", h.handleGetRules)
	r.Patch("/risk/rules", h.handlePatchRules)
	r.Post("/risk/check", h.handleCheck)
	r.Get("/risk/checks/{riskcheckID}", h.handleGetCheck)
	r.Get("/risk/stats", h.handleStats)
}

// GET /api/v1/risk/rules
func (h *Handlers) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.Effective()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, rules)
}

// PATCH /api/v1/risk/rules - body is a partial rules object
func (h *Handlers) handlePatchRules(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]json.RawMessage
	if err := web.DecodeJSON(r, &overrides); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if len(overrides) == 0 {
		web.Error(w, h.log, apierr.Validation("no rule overrides given"))
		return
	}

	rules, err := h.rules.SetOverrides(overrides)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	if err := h.audit.Record(audit.Entry{
		Action: "risk.rules.update", EntityType: "risk_rules", EntityID: RulesetVersion,
		Input:          map[string]interface{}{"keys": keys},
		RulesetVersion: RulesetVersion,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, rules)
}

type checkRequest struct {
	PortfolioID string   `json:"portfolio_id"`
	DraftIDs    []string `json:"draft_ids"`
}

// POST /api/v1/risk/check
func (h *Handlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.PortfolioID == "" {
		web.Error(w, h.log, apierr.Validation("portfolio_id is required"))
		return
	}

	result, err := h.service.Check(req.PortfolioID, req.DraftIDs)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "risk.check", EntityType: "risk_check", EntityID: result.RiskcheckID,
		Input:          map[string]interface{}{"portfolio_id": req.PortfolioID, "draft_ids": req.DraftIDs},
		Output:         map[string]interface{}{"status": result.Status, "items": len(result.Items)},
		RulesetVersion: result.RulesetVersion,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, result)
}

// GET /api/v1/risk/checks/{riskcheckID}
func (h *Handlers) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(chi.URLParam(r, "riskcheckID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if result == nil {
		web.Error(w, h.log, apierr.Validation("risk check not found"))
		return
	}
	web.JSON(w, result)
}

// GET /api/v1/risk/stats
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, stats)
}
