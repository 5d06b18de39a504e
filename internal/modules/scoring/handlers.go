package scoring

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes scoring endpoints.
type Handlers struct {
	service *Service
	repo    *Repository
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates scoring handlers.
func NewHandlers(service *Service, repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		repo:    repo,
		audit:   auditRec,
		log:     log.With().Str("handler", "scoring").Logger(),
	}
}

// RegisterRoutes mounts scoring routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/scores/calc", h.handleCalc)
	r.Get("/scores", h.handleList)
}

type calcRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// handleCalc computes and stores a score snapshot.
// POST /api/v1/scores/calc
func (h *Handlers) handleCalc(w http.ResponseWriter, r *http.Request) {
	var req calcRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	snapshot, err := h.service.Calc(symbol, exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	if err := h.audit.Record(audit.Entry{
		Action: "score.calc", EntityType: "score", EntityID: snapshot.ScoreID,
		Input:          map[string]interface{}{"symbol": symbol, "exchange": exchange},
		Output:         map[string]interface{}{"score_total": snapshot.ScoreTotal},
		RulesetVersion: snapshot.RulesetVersion,
		DataVersion:    snapshot.TradeDate,
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, snapshot)
}

// handleList returns stored snapshots for one instrument, newest first.
// GET /api/v1/scores?symbol=&exchange=&limit=
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
