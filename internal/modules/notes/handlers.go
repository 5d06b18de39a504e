package notes

import (
	"net/http"
	"strconv"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers exposes note endpoints.
type Handlers struct {
	repo  *Repository
	audit *audit.Recorder
	log   zerolog.Logger
}

// NewHandlers creates note handlers.
func NewHandlers(repo *Repository, auditRec *audit.Recorder, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:  repo,
		audit: auditRec,
		log:   log.With().Str("handler", "notes").Logger(),
	}
}

// RegisterRoutes mounts note routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/notes", h.handleCreate)
	r.Get("/notes", h.handleList)
	r.Get("/notes/{noteID}", h.handleGet)
	r.Patch("/notes/{noteID}", h.handleUpdate)
	r.Delete("/notes/{noteID}", h.handleDelete)
}

type createRequest struct {
	Symbol   string   `json:"symbol"`
	Exchange string   `json:"exchange"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
}

// POST /api/v1/notes
func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}
	if req.Title == "" {
		web.Error(w, h.log, apierr.Validation("title is required"))
		return
	}

	note := Note{Title: req.Title, Content: req.Content, Tags: req.Tags}
	if req.Symbol != "" {
		symbol, exchange, err := web.ResolveInstrument(req.Symbol, req.Exchange)
		if err != nil {
			web.Error(w, h.log, err)
			return
		}
		note.Symbol = symbol
		note.Exchange = string(exchange)
	}

	created, err := h.repo.Create(note)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if err := h.audit.Record(audit.Entry{
		Action: "note.create", EntityType: "note", EntityID: created.NoteID,
		Input: map[string]interface{}{"symbol": created.Symbol, "title": created.Title},
	}); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, created)
}

// GET /api/v1/notes?symbol=&exchange=&limit=
func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	var exchange string
	if symbol != "" {
		normalized, ex, err := web.ResolveInstrument(symbol, r.URL.Query().Get("exchange"))
		if err != nil {
			web.Error(w, h.log, err)
			return
		}
		symbol = normalized
		exchange = string(ex)
	}

	limit := 50
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

// GET /api/v1/notes/{noteID}
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	note, err := h.repo.Get(chi.URLParam(r, "noteID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if note == nil {
		web.Error(w, h.log, apierr.Validation("note not found"))
		return
	}
	web.JSON(w, note)
}

type updateRequest struct {
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
}

// PATCH /api/v1/notes/{noteID}
func (h *Handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, h.log, err)
		return
	}

	note, err := h.repo.Update(chi.URLParam(r, "noteID"), req.Title, req.Content, req.Tags)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if note == nil {
		web.Error(w, h.log, apierr.Validation("note not found"))
		return
	}
	web.JSON(w, note)
}

// DELETE /api/v1/notes/{noteID}
func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	deleted, err := h.repo.Delete(noteID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	if !deleted {
		web.Error(w, h.log, apierr.Validation("note not found"))
		return
	}
	web.JSON(w, map[string]interface{}{"deleted": noteID})
}
