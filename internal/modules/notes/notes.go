// Package notes stores freeform research notes, optionally pinned to an
// instrument.
package notes

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Note is one research note.
type Note struct {
	NoteID    string   `json:"note_id"`
	Symbol    string   `json:"symbol,omitempty"`
	Exchange  string   `json:"exchange,omitempty"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// Repository provides access to the notes table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a note repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "notes").Logger(),
	}
}

// Create stores a new note and returns it with generated fields filled in.
func (r *Repository) Create(note Note) (*Note, error) {
	note.NoteID = uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	note.CreatedAt = now
	note.UpdatedAt = now

	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO notes (note_id, symbol, exchange, title, content, tags_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		note.NoteID, nullIfEmpty(note.Symbol), nullIfEmpty(note.Exchange),
		note.Title, note.Content, string(tags), note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return &note, nil
}

// Get returns one note or nil.
func (r *Repository) Get(noteID string) (*Note, error) {
	row := r.db.QueryRow(`
		SELECT note_id, symbol, exchange, title, content, tags_json, created_at, updated_at
		FROM notes WHERE note_id = ?`, noteID)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", noteID, err)
	}
	return note, nil
}

// List returns notes, optionally filtered by instrument, newest first.
func (r *Repository) List(symbol, exchange string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if symbol != "" {
		rows, err = r.db.Query(`
			SELECT note_id, symbol, exchange, title, content, tags_json, created_at, updated_at
			FROM notes WHERE symbol = ? AND exchange = ?
			ORDER BY created_at DESC LIMIT ?`, symbol, exchange, limit)
	} else {
		rows, err = r.db.Query(`
			SELECT note_id, symbol, exchange, title, content, tags_json, created_at, updated_at
			FROM notes ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		out = append(out, *note)
	}
	return out, rows.Err()
}

// Update changes title, content or tags of an existing note.
func (r *Repository) Update(noteID string, title, content *string, tags []string) (*Note, error) {
	existing, err := r.Get(noteID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if title != nil {
		existing.Title = *title
	}
	if content != nil {
		existing.Content = *content
	}
	if tags != nil {
		existing.Tags = tags
	}
	existing.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	tagsJSON, err := json.Marshal(existing.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	_, err = r.db.Exec(`
		UPDATE notes SET title = ?, content = ?, tags_json = ?, updated_at = ?
		WHERE note_id = ?`,
		existing.Title, existing.Content, string(tagsJSON), existing.UpdatedAt, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to update note %s: %w", noteID, err)
	}
	return existing, nil
}

// Delete removes a note. Returns false when it did not exist.
func (r *Repository) Delete(noteID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM notes WHERE note_id = ?`, noteID)
	if err != nil {
		return false, fmt.Errorf("failed to delete note %s: %w", noteID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*Note, error) {
	var note Note
	var symbol, exchange, tags sql.NullString
	err := row.Scan(&note.NoteID, &symbol, &exchange, &note.Title, &note.Content,
		&tags, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	note.Symbol = symbol.String
	note.Exchange = exchange.String
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &note.Tags)
	}
	return &note, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
