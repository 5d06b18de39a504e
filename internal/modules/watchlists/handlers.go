package watchlists

import (
	"net/http"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes watchlist endpoints.
type Handlers struct {
	repo  *Repository
	audit *audit.Recorder
	log   zerolog.Logger
}

// NewHandlers creates watchlist handlers.
func NewHandlers(repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:  repo,
		audit: auditRec,
		log:   log.With().Str("handler", "watchlists").Logger(),
	}
}

// RegisterRoutes mounts watchlist routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/watchlists", h.handleListTypes)
	r.Get("/watchlists/{listType}", h.handleItems)
	r.Post("/watchlists/{listType}", h.handleAdd)
	r.Delete("/watchlists/{listType}/{symbol}", h.handleRemove)
}

// GET /api/v1/watchlists
func (h *Handlers) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.repo.ListTypes()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"lists": types})
}

// GET /api/v1/watchlists/{listType}
func (h *Handlers) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.Items(chi.URLParam(r, "listType"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": items, "count": len(items)})
}

type addRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// POST /api/v1/watchlists/{listType}
func (h *Handlers) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	listType := chi.URLParam(r, "listType")
	item, err := h.repo.Add(listType, symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "watchlist.add", EntityType: "watchlist", EntityID: listType,
		Input: map[string]interface{}{"symbol": symbol, "exchange": exchange},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, item)
}

// DELETE /api/v1/watchlists/{listType}/{symbol}?exchange=
func (h *Handlers) handleRemove(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := web.ResolveInstrument(chi.URLParam(r, "symbol"), r.URL.Query().Get("exchange"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	listType := chi.URLParam(r, "listType")
	removed, err := h.repo.Remove(listType, symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !removed {
		web.Error(w, h.log, apierr.Validation("watchlist item not found"))
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "watchlist.delete", EntityType: "watchlist", EntityID: listType,
		Input: map[string]interface{}{"symbol": symbol, "exchange": exchange},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"removed": symbol})
}
