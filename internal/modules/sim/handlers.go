package sim

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes simulated execution endpoints.
type Handlers struct {
	service *Service
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates sim handlers.
func NewHandlers(service *Service, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		audit:   auditRec,
		log:     log.With().Str("handler", "sim").Logger(),
	}
}

// RegisterRoutes mounts sim routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/sim/confirm", h.handleConfirm)
	r.Get("/sim/orders", h.handleOrders)
	r.Get("/sim/trades", h.handleTrades)
}

type confirmRequest struct {
	RiskcheckID string   `json:"riskcheck_id"`
	PortfolioID string   `json:"portfolio_id"`
	DraftIDs    []string `json:"draft_ids"`
}

// POST /api/v1/sim/confirm
func (h *Handlers) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.RiskcheckID == "" {
		web.Error(w, h.log, apierr.Validation("riskcheck_id is required"))
		return
	}
	if req.PortfolioID == "" {
		web.Error(w, h.log, apierr.Validation("portfolio_id is required"))
		return
	}

	result, err := h.service.Confirm(req.RiskcheckID, req.PortfolioID, req.DraftIDs)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "sim.confirm", EntityType: "sim_order", EntityID: result.Order.OrderID,
		Input:  map[string]interface{}{"portfolio_id": req.PortfolioID, "riskcheck_id": req.RiskcheckID, "draft_ids": req.DraftIDs},
		Output: map[string]interface{}{"trades": len(result.Trades), "cash_after": result.CashAfter},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, result)
}

// GET /api/v1/sim/orders?portfolio_id=&limit=
func (h *Handlers) handleOrders(w http.ResponseWriter, r *http.Request) {
	portfolioID := r.URL.Query().Get("portfolio_id")
	if portfolioID == "" {
		web.Error(w, h.log, apierr.Validation("portfolio_id is required"))
		return
	}
	items, err := h.service.Orders(portfolioID, queryLimit(r))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// GET /api/v1/sim/trades?portfolio_id=&limit=
func (h *Handlers) handleTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID := r.URL.Query().Get("portfolio_id")
	if portfolioID == "" {
		web.Error(w, h.log, apierr.Validation("portfolio_id is required"))
		return
	}
	items, err := h.service.Trades(portfolioID, queryLimit(r))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 100
}
