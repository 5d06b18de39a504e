package assistant

import (
	"net/http"

	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/rs/zerolog"

	"github.com/go-chi/chi/v5"
)

// Handlers exposes assistant endpoints.
type Handlers struct {
	service *Service
	audit   *audit.Recorder
	log     zerolog.Logger
}

// NewHandlers creates assistant handlers.
func NewHandlers(service *Service, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		audit:   auditRec,
		log:     log.With().Str("handler", "assistant").Logger(),
	}
}

// RegisterRoutes mounts assistant routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/assistant/report", h.handleReport)
}

type reportRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Persist  bool   `json:"persist"`
}

// POST /api/v1/assistant/report
func (h *Handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	report, err := h.service.Report(symbol, exchange, req.Persist)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "assistant.report", EntityType: "instrument", EntityID: symbol,
		Input:  map[string]interface{}{"exchange": exchange, "persist": req.Persist},
		Output: map[string]interface{}{"direction": report.Direction, "score_total": report.ScoreTotal},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, report)
}
