// Package watchlists manages named symbol lists used by the radar and the UI.
package watchlists

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/rs/zerolog"
)

// Item is one watchlist membership.
type Item struct {
	ListType  string          `json:"list_type"`
	Symbol    string          `json:"symbol"`
	Exchange  domain.Exchange `json:"exchange"`
	CreatedAt string          `json:"created_at"`
}

// Repository provides access to the watchlist_items table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a watchlist repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "watchlists").Logger(),
	}
}

// Add inserts a membership; adding an existing one is a no-op.
func (r *Repository) Add(listType, symbol string, exchange domain.Exchange) (*Item, error) {
	item := Item{
		ListType:  listType,
		Symbol:    symbol,
		Exchange:  exchange,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := r.db.Exec(`
		INSERT INTO watchlist_items (list_type, symbol, exchange, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(list_type, symbol, exchange) DO NOTHING`,
		item.ListType, item.Symbol, item.Exchange, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add watchlist item: %w", err)
	}
	return &item, nil
}

// Remove deletes a membership. Returns false when it did not exist.
func (r *Repository) Remove(listType, symbol string, exchange domain.Exchange) (bool, error) {
	result, err := r.db.Exec(`
		DELETE FROM watchlist_items WHERE list_type = ? AND symbol = ? AND exchange = ?`,
		listType, symbol, exchange)
	if err != nil {
		return false, fmt.Errorf("failed to remove watchlist item: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Items returns the members of one list.
func (r *Repository) Items(listType string) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT list_type, symbol, exchange, created_at
		FROM watchlist_items WHERE list_type = ? ORDER BY symbol ASC`, listType)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ListType, &item.Symbol, &item.Exchange, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListTypes returns the distinct list names with member counts.
func (r *Repository) ListTypes() (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT list_type, COUNT(1) FROM watchlist_items GROUP BY list_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist types: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var listType string
		var count int
		if err := rows.Scan(&listType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist type: %w", err)
		}
		out[listType] = count
	}
	return out, rows.Err()
}
