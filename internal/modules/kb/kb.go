// Package kb is the local knowledge base: documents ingested from notes and
// news, searchable through an FTS5 index.
package kb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Source types of a document.
const (
	SourceNote   = "note"
	SourceNews   = "news"
	SourceManual = "manual"
)

// Document is one knowledge base entry.
type Document struct {
	DocID      string   `json:"doc_id"`
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id,omitempty"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// Hit is one search result with its snippet and rank.
type Hit struct {
	Document
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// Repository provides access to kb_documents and its FTS index.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a kb repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "kb").Logger(),
	}
}

// Add stores a document. The FTS mirror follows via triggers.
func (r *Repository) Add(doc Document) (*Document, error) {
	if doc.Title == "" || doc.Content == "" {
		return nil, apierr.Validation("title and content are required")
	}
	doc.DocID = uuid.New().String()
	doc.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if doc.SourceType == "" {
		doc.SourceType = SourceManual
	}

	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO kb_documents (doc_id, source_type, source_id, title, content,
			tags_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.SourceType, nullIfEmpty(doc.SourceID), doc.Title, doc.Content,
		string(tagsJSON), doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add kb document: %w", err)
	}
	return &doc, nil
}

// Get returns one document or nil.
func (r *Repository) Get(docID string) (*Document, error) {
	row := r.db.QueryRow(`
		SELECT doc_id, source_type, source_id, title, content, tags_json, created_at
		FROM kb_documents WHERE doc_id = ?`, docID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kb document %s: %w", docID, err)
	}
	return doc, nil
}

// Search runs an FTS5 match and returns hits best rank first, each with a
// highlighted snippet.
func (r *Repository) Search(query string, limit int) ([]Hit, error) {
	if query == "" {
		return nil, apierr.Validation("query must not be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT d.doc_id, d.source_type, d.source_id, d.title, d.content, d.tags_json,
		       d.created_at,
		       snippet(kb_documents_fts, 1, '[', ']', '...', 12),
		       bm25(kb_documents_fts)
		FROM kb_documents_fts f
		JOIN kb_documents d ON d.rowid = f.rowid
		WHERE kb_documents_fts MATCH ?
		ORDER BY bm25(kb_documents_fts) LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search kb: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var hit Hit
		var sourceID, tagsJSON sql.NullString
		if err := rows.Scan(&hit.DocID, &hit.SourceType, &sourceID, &hit.Title,
			&hit.Content, &tagsJSON, &hit.CreatedAt, &hit.Snippet, &hit.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan kb hit: %w", err)
		}
		hit.SourceID = sourceID.String
		if tagsJSON.Valid {
			if err := json.Unmarshal([]byte(tagsJSON.String), &hit.Tags); err != nil {
				return nil, fmt.Errorf("failed to decode kb tags: %w", err)
			}
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// IngestFromNotes copies notes not yet in the kb. Idempotent on source_id.
func (r *Repository) IngestFromNotes() (int, error) {
	return r.ingestFrom(`
		SELECT n.note_id, n.title, n.content FROM notes n
		WHERE NOT EXISTS (
			SELECT 1 FROM kb_documents d
			WHERE d.source_type = 'note' AND d.source_id = n.note_id
		)`, SourceNote)
}

// IngestFromNews copies news items not yet in the kb. Idempotent on source_id.
func (r *Repository) IngestFromNews() (int, error) {
	return r.ingestFrom(`
		SELECT n.news_id, n.title, COALESCE(n.summary, n.title) FROM news_items n
		WHERE NOT EXISTS (
			SELECT 1 FROM kb_documents d
			WHERE d.source_type = 'news' AND d.source_id = n.news_id
		)`, SourceNews)
}

func (r *Repository) ingestFrom(query, sourceType string) (int, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return 0, fmt.Errorf("failed to select %s sources: %w", sourceType, err)
	}
	defer rows.Close()

	type pending struct{ id, title, content string }
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.title, &p.content); err != nil {
			return 0, fmt.Errorf("failed to scan %s source: %w", sourceType, err)
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range batch {
		_, err := r.db.Exec(`
			INSERT INTO kb_documents (doc_id, source_type, source_id, title, content,
				tags_json, created_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?)`,
			uuid.New().String(), sourceType, p.id, p.title, p.content, now)
		if err != nil {
			return count, fmt.Errorf("failed to ingest %s %s: %w", sourceType, p.id, err)
		}
		count++
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var sourceID, tagsJSON sql.NullString
	err := row.Scan(&doc.DocID, &doc.SourceType, &sourceID, &doc.Title, &doc.Content,
		&tagsJSON, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	doc.SourceID = sourceID.String
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode kb tags: %w", err)
		}
	}
	return &doc, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
