package rebalance

import (
	"net/http"

	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes rebalance endpoints.
type Handlers struct {
	service *Service
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates rebalance handlers.
func NewHandlers(service *Service, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		audit:   auditRec,
		log:     log.With().Str("handler", "rebalance").Logger(),
	}
}

// RegisterRoutes mounts rebalance routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios/{portfolioID}/rebalance/suggest", h.handleSuggest)
}

type suggestRequest struct {
	Targets          map[string]float64 `json:"targets"`
	ReserveCashRatio float64            `json:"reserve_cash_ratio"`
	CreateDrafts     bool               `json:"create_drafts"`
}

// POST /api/v1/portfolios/{portfolioID}/rebalance/suggest
func (h *Handlers) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}

	portfolioID := chi.URLParam(r, "portfolioID")
	result, err := h.service.Suggest(portfolioID, req.Targets, req.ReserveCashRatio, req.CreateDrafts)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "rebalance.suggest", EntityType: "portfolio", EntityID: portfolioID,
		Input:  map[string]interface{}{"targets": len(req.Targets), "create_drafts": req.CreateDrafts},
		Output: map[string]interface{}{"suggestions": len(result.Suggestions)},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, result)
}
