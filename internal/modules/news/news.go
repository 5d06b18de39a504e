// Package news stores news items tied to instruments. The only ingest source
// is a deterministic mock feed, real feeds plug in as providers later.
package news

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Item is one news item.
type Item struct {
	NewsID    string   `json:"news_id"`
	TS        string   `json:"ts"`
	Source    string   `json:"source"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary,omitempty"`
	URL       string   `json:"url,omitempty"`
	Symbols   []string `json:"symbols,omitempty"`
	Sentiment *float64 `json:"sentiment,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// Repository provides access to the news_items table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a news repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "news").Logger(),
	}
}

// Insert stores one item.
func (r *Repository) Insert(item *Item) error {
	if item.NewsID == "" {
		item.NewsID = uuid.New().String()
	}
	if item.CreatedAt == "" {
		item.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	symbolsJSON, err := json.Marshal(item.Symbols)
	if err != nil {
		return fmt.Errorf("failed to encode news symbols: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO news_items (news_id, ts, source, title, summary, url, symbols_json,
			sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.NewsID, item.TS, item.Source, item.Title, nullIfEmpty(item.Summary),
		nullIfEmpty(item.URL), string(symbolsJSON), nullFloat(item.Sentiment), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert news item: %w", err)
	}
	return nil
}

// List returns items newest first, optionally filtered to one symbol.
func (r *Repository) List(symbol string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT news_id, ts, source, title, summary, url, symbols_json, sentiment, created_at
		FROM news_items`
	args := []interface{}{}
	if symbol != "" {
		// symbols_json is a small array, LIKE is good enough locally.
		query += ` WHERE symbols_json LIKE ?`
		args = append(args, `%"`+symbol+`"%`)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list news items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var item Item
		var summary, url sql.NullString
		var symbolsJSON string
		var sentiment sql.NullFloat64
		if err := rows.Scan(&item.NewsID, &item.TS, &item.Source, &item.Title,
			&summary, &url, &symbolsJSON, &sentiment, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan news item: %w", err)
		}
		item.Summary = summary.String
		item.URL = url.String
		if err := json.Unmarshal([]byte(symbolsJSON), &item.Symbols); err != nil {
			return nil, fmt.Errorf("failed to decode news symbols: %w", err)
		}
		if sentiment.Valid {
			v := sentiment.Float64
			item.Sentiment = &v
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// IngestMock writes a deterministic batch of mock items for the given
// symbols. Same symbols and date produce the same batch, so repeated task
// runs are idempotent at the content level.
func (r *Repository) IngestMock(symbols []string) (int, error) {
	headlines := []string{
		"quarterly results beat consensus",
		"announces share buyback program",
		"major shareholder reduces stake",
		"wins key industry contract",
		"regulator opens routine inquiry",
	}
	today := time.Now().UTC().Format("2006-01-02")

	count := 0
	for _, symbol := range symbols {
		h := fnv.New32a()
		h.Write([]byte(symbol + today))
		seed := h.Sum32()

		headline := headlines[int(seed)%len(headlines)]
		sentiment := float64(int(seed%200))/100 - 1 // [-1, 1)
		item := &Item{
			NewsID:    fmt.Sprintf("mock-%s-%s", symbol, today),
			TS:        today + "T01:30:00Z",
			Source:    "mock",
			Title:     fmt.Sprintf("%s %s", symbol, headline),
			Summary:   fmt.Sprintf("Mock coverage for %s on %s.", symbol, today),
			Symbols:   []string{symbol},
			Sentiment: &sentiment,
		}
		res, err := r.db.Exec(`
			INSERT INTO news_items (news_id, ts, source, title, summary, url, symbols_json,
				sentiment, created_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?)
			ON CONFLICT(news_id) DO NOTHING`,
			item.NewsID, item.TS, item.Source, item.Title, item.Summary,
			fmt.Sprintf(`["%s"]`, symbol), sentiment, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return count, fmt.Errorf("failed to insert mock news for %s: %w", symbol, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			count += int(n)
		}
	}
	return count, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
