package marketdata

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes read endpoints over persisted market data.
type Handlers struct {
	bars        *BarRepository
	fundamental *FundamentalRepository
	capitalFlow *CapitalFlowRepository
	log         zerolog.Logger
}

// NewHandlers creates market data handlers.
func NewHandlers(bars *BarRepository, fundamental *FundamentalRepository, capitalFlow *CapitalFlowRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		bars:        bars,
		fundamental: fundamental,
		capitalFlow: capitalFlow,
		log:         log.With().Str("handler", "marketdata").Logger(),
	}
}

// RegisterRoutes mounts market data routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/stocks/{exchange}/{symbol}/bars", h.handleBars)
	r.Get("/stocks/{exchange}/{symbol}/quote", h.handleQuote)
	r.Get("/stocks/{exchange}/{symbol}/fundamental", h.handleFundamental)
	r.Get("/stocks/{exchange}/{symbol}/capital_flow", h.handleCapitalFlow)
}

// GET /api/v1/stocks/{exchange}/{symbol}/bars?adj=&limit=
func (h *Handlers) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := h.resolve(r)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	adj := domain.AdjRaw
	if raw := r.URL.Query().Get("adj"); raw != "" {
		if !domain.ValidAdj(raw) {
			web.Error(w, h.log, apierr.Validation("adj must be RAW, QFQ or HFQ"))
			return
		}
		adj = domain.Adj(raw)
	}

	bars, err := h.bars.RecentBars(symbol, exchange, adj, queryLimit(r, 120))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": bars, "count": len(bars)})
}

// GET /api/v1/stocks/{exchange}/{symbol}/quote
func (h *Handlers) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := h.resolve(r)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	quote, err := h.bars.LatestQuote(symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if quote == nil {
		web.Error(w, h.log, apierr.DataNotReady("no daily bars for %s.%s", symbol, exchange).
			WithDetails(map[string]interface{}{"task": "ingest_bars_daily"}))
		return
	}
	web.JSON(w, quote)
}

// GET /api/v1/stocks/{exchange}/{symbol}/fundamental
func (h *Handlers) handleFundamental(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := h.resolve(r)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	fundamental, err := h.fundamental.Latest(symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if fundamental == nil {
		web.Error(w, h.log, apierr.DataNotReady("no fundamentals for %s.%s", symbol, exchange).
			WithDetails(map[string]interface{}{"task": "ingest_fundamentals_daily"}))
		return
	}
	web.JSON(w, fundamental)
}

// GET /api/v1/stocks/{exchange}/{symbol}/capital_flow?limit=
func (h *Handlers) handleCapitalFlow(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, err := h.resolve(r)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	flows, err := h.capitalFlow.Recent(symbol, exchange, queryLimit(r, 20))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": flows, "count": len(flows)})
}

func (h *Handlers) resolve(r *http.Request) (string, domain.Exchange, error) {
	return web.ResolveInstrument(chi.URLParam(r, "symbol"), chi.URLParam(r, "exchange"))
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
