package drafts

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes order draft endpoints.
type Handlers struct {
	repo  *Repository
	audit *audit.Recorder
	log   zerolog.Logger
}

// NewHandlers creates draft handlers.
func NewHandlers(repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:  repo,
		audit: auditRec,
		log:   log.With().Str("handler", "drafts").Logger(),
	}
}

// RegisterRoutes mounts draft routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/order_drafts", h.handleCreate)
	r.Get("/order_drafts", h.handleList)
	r.Get("/order_drafts/{draftID}", h.handleGet)
	r.Patch("/order_drafts/{draftID}", h.handleUpdate)
	r.Delete("/order_drafts/{draftID}", h.handleDelete)
}

type createRequest struct {
	PortfolioID string   `json:"portfolio_id"`
	Symbol      string   `json:"symbol"`
	Exchange    string   `json:"exchange"`
	Side        string   `json:"side"`
	OrderType   string   `json:"order_type"`
	Price       *float64 `json:"price"`
	Qty         float64  `json:"qty"`
	Notes       string   `json:"notes"`
}

// POST /api/v1/order_drafts
func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.PortfolioID == "" {
		web.Error(w, h.log, apierr.Validation("portfolio_id is required"))
		return
	}
	if req.Side != string(domain.SideBuy) && req.Side != string(domain.SideSell) {
		web.Error(w, h.log, apierr.Validation("side must be BUY or SELL"))
		return
	}
	if req.Qty <= 0 {
		web.Error(w, h.log, apierr.Validation("qty must be positive"))
		return
	}
	orderType := domain.OrderLimit
	switch req.OrderType {
	case "", string(domain.OrderLimit):
		if req.Price == nil || *req.Price <= 0 {
			web.Error(w, h.log, apierr.Validation("LIMIT drafts need a positive price"))
			return
		}
	case string(domain.OrderMarket):
		orderType = domain.OrderMarket
	default:
		web.Error(w, h.log, apierr.Validation("order_type must be LIMIT or MARKET"))
		return
	}
	symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	draft, err := h.repo.Create(Draft{
		PortfolioID: req.PortfolioID,
		Symbol:      symbol,
		Exchange:    exchange,
		Side:        domain.Side(req.Side),
		OrderType:   orderType,
		Price:       req.Price,
		Qty:         req.Qty,
		Notes:       req.Notes,
	})
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "order_draft.create", EntityType: "order_draft", EntityID: draft.DraftID,
		Input: map[string]interface{}{
			"portfolio_id": draft.PortfolioID, "symbol": symbol, "side": req.Side, "qty": req.Qty,
		},
		Output: map[string]interface{}{"status": draft.Status},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, draft)
}

// GET /api/v1/order_drafts?portfolio_id=&limit=
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	portfolioID := r.URL.Query().Get("portfolio_id")
	if portfolioID == "" {
		web.Error(w, h.log, apierr.Validation("portfolio_id is required"))
		return
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.repo.List(portfolioID, limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

// GET /api/v1/order_drafts/{draftID}
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	draft, err := h.repo.Get(chi.URLParam(r, "draftID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if draft == nil {
		web.Error(w, h.log, apierr.Validation("draft not found"))
		return
	}
	web.JSON(w, draft)
}

type updateRequest struct {
	Price *float64 `json:"price"`
	Qty   *float64 `json:"qty"`
	Notes *string  `json:"notes"`
}

// PATCH /api/v1/order_drafts/{draftID} - only price, qty and notes are mutable
func (h *Handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Qty != nil && *req.Qty <= 0 {
		web.Error(w, h.log, apierr.Validation("qty must be positive"))
		return
	}
	if req.Price != nil && *req.Price <= 0 {
		web.Error(w, h.log, apierr.Validation("price must be positive"))
		return
	}

	draftID := chi.URLParam(r, "draftID")
	draft, err := h.repo.Update(draftID, req.Price, req.Qty, req.Notes)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if draft == nil {
		web.Error(w, h.log, apierr.Validation("draft not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "order_draft.update", EntityType: "order_draft", EntityID: draftID,
		Output: map[string]interface{}{"qty": draft.Qty, "notes": draft.Notes},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, draft)
}

// DELETE /api/v1/order_drafts/{draftID}
func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	deleted, err := h.repo.Delete(draftID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !deleted {
		web.Error(w, h.log, apierr.Validation("draft not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "order_draft.delete", EntityType: "order_draft", EntityID: draftID,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"deleted": draftID})
}
