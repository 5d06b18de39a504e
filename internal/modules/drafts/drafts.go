// Package drafts manages order drafts: the editable staging area between
// rebalance suggestions (or manual entry) and risk-checked simulated fills.
package drafts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Origins of a draft.
const (
	OriginManual    = "manual"
	OriginRebalance = "rebalance"
)

// Draft is one staged order.
type Draft struct {
	DraftID     string           `json:"draft_id"`
	PortfolioID string           `json:"portfolio_id"`
	Symbol      string           `json:"symbol"`
	Exchange    domain.Exchange  `json:"exchange"`
	Side        domain.Side      `json:"side"`
	OrderType   domain.OrderType `json:"order_type"`
	Price       *float64         `json:"price"`
	Qty         float64          `json:"qty"`
	Status      string           `json:"status"`
	Origin      string           `json:"origin"`
	Notes       string           `json:"notes,omitempty"`
	CreatedAt   string           `json:"created_at"`
}

// Repository provides access to the order_drafts table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a draft repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "drafts").Logger(),
	}
}

// Create stores a new draft.
func (r *Repository) Create(draft Draft) (*Draft, error) {
	draft.DraftID = uuid.New().String()
	draft.Status = "DRAFT"
	draft.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if draft.Origin == "" {
		draft.Origin = OriginManual
	}
	if draft.OrderType == "" {
		draft.OrderType = domain.OrderLimit
	}

	_, err := r.db.Exec(`
		INSERT INTO order_drafts
			(draft_id, portfolio_id, symbol, exchange, side, order_type, price, qty,
			 status, origin, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.DraftID, draft.PortfolioID, draft.Symbol, draft.Exchange, draft.Side,
		draft.OrderType, nullFloat(draft.Price), draft.Qty, draft.Status, draft.Origin,
		nullIfEmpty(draft.Notes), draft.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return &draft, nil
}

// CreateTx stores a draft inside an existing transaction.
func CreateTx(tx *sql.Tx, draft Draft) (*Draft, error) {
	draft.DraftID = uuid.New().String()
	draft.Status = "DRAFT"
	draft.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if draft.Origin == "" {
		draft.Origin = OriginManual
	}
	if draft.OrderType == "" {
		draft.OrderType = domain.OrderLimit
	}

	_, err := tx.Exec(`
		INSERT INTO order_drafts
			(draft_id, portfolio_id, symbol, exchange, side, order_type, price, qty,
			 status, origin, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.DraftID, draft.PortfolioID, draft.Symbol, draft.Exchange, draft.Side,
		draft.OrderType, nullFloat(draft.Price), draft.Qty, draft.Status, draft.Origin,
		nullIfEmpty(draft.Notes), draft.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return &draft, nil
}

// Get returns one draft or nil.
func (r *Repository) Get(draftID string) (*Draft, error) {
	row := r.db.QueryRow(selectColumns+` WHERE draft_id = ?`, draftID)
	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft %s: %w", draftID, err)
	}
	return draft, nil
}

// GetMany returns the drafts for the given IDs, in the given order. Unknown
// IDs produce an error.
func (r *Repository) GetMany(draftIDs []string) ([]Draft, error) {
	out := make([]Draft, 0, len(draftIDs))
	for _, id := range draftIDs {
		draft, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		if draft == nil {
			return nil, fmt.Errorf("draft %s not found", id)
		}
		out = append(out, *draft)
	}
	return out, nil
}

// List returns drafts for a portfolio, newest first.
func (r *Repository) List(portfolioID string, limit int) ([]Draft, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(selectColumns+`
		WHERE portfolio_id = ? ORDER BY created_at DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		out = append(out, *draft)
	}
	return out, rows.Err()
}

// CountToday returns the number of drafts created today (UTC) for a portfolio.
func (r *Repository) CountToday(portfolioID string) (int, error) {
	today := time.Now().UTC().Format("2006-01-02")
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(1) FROM order_drafts
		WHERE portfolio_id = ? AND created_at >= ?`, portfolioID, today).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's drafts: %w", err)
	}
	return count, nil
}

// Update changes price, qty or notes. Other fields are immutable.
func (r *Repository) Update(draftID string, price *float64, qty *float64, notes *string) (*Draft, error) {
	existing, err := r.Get(draftID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if price != nil {
		existing.Price = price
	}
	if qty != nil {
		existing.Qty = *qty
	}
	if notes != nil {
		existing.Notes = *notes
	}

	_, err = r.db.Exec(`
		UPDATE order_drafts SET price = ?, qty = ?, notes = ? WHERE draft_id = ?`,
		nullFloat(existing.Price), existing.Qty, nullIfEmpty(existing.Notes), draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to update draft %s: %w", draftID, err)
	}
	return existing, nil
}

// Delete removes a draft. Returns false when it did not exist.
func (r *Repository) Delete(draftID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM order_drafts WHERE draft_id = ?`, draftID)
	if err != nil {
		return false, fmt.Errorf("failed to delete draft %s: %w", draftID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

const selectColumns = `
	SELECT draft_id, portfolio_id, symbol, exchange, side, order_type, price, qty,
	       status, origin, notes, created_at
	FROM order_drafts`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraft(row rowScanner) (*Draft, error) {
	var draft Draft
	var price sql.NullFloat64
	var notes sql.NullString
	err := row.Scan(&draft.DraftID, &draft.PortfolioID, &draft.Symbol, &draft.Exchange,
		&draft.Side, &draft.OrderType, &price, &draft.Qty, &draft.Status, &draft.Origin,
		&notes, &draft.CreatedAt)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Float64
		draft.Price = &p
	}
	draft.Notes = notes.String
	return &draft, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
