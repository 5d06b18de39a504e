package portfolio

import (
	"net/http"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes portfolio endpoints.
type Handlers struct {
	service *Service
	repo    *Repository
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates portfolio handlers.
func NewHandlers(service *Service, repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		repo:    repo,
		audit:   auditRec,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes mounts portfolio routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios", h.handleCreate)
	r.Get("/portfolios", h.handleList)
	r.Get("/portfolios/{portfolioID}", h.handleGet)
}

type createRequest struct {
	Name        string  `json:"name"`
	InitialCash float64 `json:"initial_cash"`
}

// POST /api/v1/portfolios
func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Name == "" {
		web.Error(w, h.log, apierr.Validation("name is required"))
		return
	}
	if req.InitialCash < 0 {
		web.Error(w, h.log, apierr.Validation("initial_cash must not be negative"))
		return
	}

	p, err := h.repo.Create(req.Name, req.InitialCash)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "portfolio.create", EntityType: "portfolio", EntityID: p.PortfolioID,
		Input: map[string]interface{}{"name": p.Name, "initial_cash": req.InitialCash},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, p)
}

// GET /api/v1/portfolios
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// GET /api/v1/portfolios/{portfolioID} - full valuation
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	valuation, err := h.service.Valuation(chi.URLParam(r, "portfolioID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, valuation)
}
