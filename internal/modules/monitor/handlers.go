package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes monitoring endpoints.
type Handlers struct {
	service *Service
	repo    *Repository
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates monitor handlers.
func NewHandlers(service *Service, repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		repo:    repo,
		audit:   auditRec,
		log:     log.With().Str("handler", "monitor").Logger(),
	}
}

// RegisterRoutes mounts monitor routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/monitor/rules", h.handleCreateRule)
	r.Get("/monitor/rules", h.handleListRules)
	r.Patch("/monitor/rules/{ruleID}", h.handleToggleRule)
	r.Delete("/monitor/rules/{ruleID}", h.handleDeleteRule)
	r.Post("/monitor/check", h.handleCheck)
	r.Get("/alerts", h.handleListAlerts)
	r.Post("/alerts/{alertID}/ack", h.handleAck)
}

type createRuleRequest struct {
	RuleType string          `json:"rule_type"`
	Params   json.RawMessage `json:"params"`
}

// POST /api/v1/monitor/rules
func (h *Handlers) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	switch req.RuleType {
	case RulePriceChangePct, RuleVolumeSpike, RuleScoreChange, RulePositionLimit, RuleCashRatio:
	default:
		web.Error(w, h.log, apierr.Validation("unknown rule type %q", req.RuleType))
		return
	}
	if len(req.Params) == 0 {
		web.Error(w, h.log, apierr.Validation("params are required"))
		return
	}

	rule, err := h.repo.CreateRule(req.RuleType, req.Params)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "monitor.rule.create", EntityType: "alert_rule", EntityID: rule.RuleID,
		Input: map[string]interface{}{"rule_type": rule.RuleType},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, rule)
}

// GET /api/v1/monitor/rules
func (h *Handlers) handleListRules(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListRules(false)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

type toggleRuleRequest struct {
	Enabled *bool `json:"enabled"`
}

// PATCH /api/v1/monitor/rules/{ruleID}
func (h *Handlers) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	var req toggleRuleRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Enabled == nil {
		web.Error(w, h.log, apierr.Validation("enabled is required"))
		return
	}

	ruleID := chi.URLParam(r, "ruleID")
	ok, err := h.repo.SetRuleEnabled(ruleID, *req.Enabled)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !ok {
		web.Error(w, h.log, apierr.Validation("alert rule not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "monitor.rule.toggle", EntityType: "alert_rule", EntityID: ruleID,
		Input: map[string]interface{}{"enabled": *req.Enabled},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"rule_id": ruleID, "enabled": *req.Enabled})
}

// DELETE /api/v1/monitor/rules/{ruleID}
func (h *Handlers) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")
	deleted, err := h.repo.DeleteRule(ruleID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !deleted {
		web.Error(w, h.log, apierr.Validation("alert rule not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "monitor.rule.delete", EntityType: "alert_rule", EntityID: ruleID,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"deleted": ruleID})
}

// POST /api/v1/monitor/check - run all enabled rules now
func (h *Handlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.CheckAll()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, summary)
}

// GET /api/v1/alerts?unacked=&limit=
func (h *Handlers) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	unackedOnly := r.URL.Query().Get("unacked") == "true"
	items, err := h.repo.ListAlerts(unackedOnly, limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// POST /api/v1/alerts/{alertID}/ack
func (h *Handlers) handleAck(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	ok, err := h.repo.AckAlert(alertID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !ok {
		web.Error(w, h.log, apierr.Validation("alert not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "alert.ack", EntityType: "alert", EntityID: alertID,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"acknowledged": alertID})
}
