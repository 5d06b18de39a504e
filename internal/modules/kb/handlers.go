package kb

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes knowledge base endpoints.
type Handlers struct {
	repo  *Repository
	audit *audit.Recorder
	log   zerolog.Logger
}

// NewHandlers creates kb handlers.
func NewHandlers(repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:  repo,
		audit: auditRec,
		log:   log.With().Str("handler", "kb").Logger(),
	}
}

// RegisterRoutes mounts kb routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/kb/search", h.handleSearch)
	r.Post("/kb/documents", h.handleAdd)
	r.Get("/kb/documents/{docID}", h.handleGet)
	r.Post("/kb/ingest", h.handleIngest)
}

// GET /api/v1/kb/search?q=&limit=
func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	hits, err := h.repo.Search(r.URL.Query().Get("q"), limit)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"items": hits, "count": len(hits)})
}

type addRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// POST /api/v1/kb/documents
func (h *Handlers) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	doc, err := h.repo.Add(Document{
		SourceType: SourceManual, Title: req.Title, Content: req.Content, Tags: req.Tags,
	})
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "kb.document.add", EntityType: "kb_document", EntityID: doc.DocID,
		Input: map[string]interface{}{"title": req.Title, "source_type": SourceManual},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, doc)
}

// GET /api/v1/kb/documents/{docID}
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.repo.Get(chi.URLParam(r, "docID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if doc == nil {
		web.Error(w, h.log, apierr.Validation("kb document not found"))
		return
	}
	web.JSON(w, doc)
}

// POST /api/v1/kb/ingest - pull new notes and news into the kb
func (h *Handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	fromNotes, err := h.repo.IngestFromNotes()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	fromNews, err := h.repo.IngestFromNews()
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "kb.ingest", EntityType: "kb_document", EntityID: "batch",
		Output: map[string]interface{}{"from_notes": fromNotes, "from_news": fromNews},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, map[string]interface{}{"from_notes": fromNotes, "from_news": fromNews})
}
