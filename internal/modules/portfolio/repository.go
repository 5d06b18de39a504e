package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository provides access to portfolios, accounts and positions.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a portfolio with its cash account in one transaction.
func (r *Repository) Create(name string, initialCash float64) (*Portfolio, error) {
	p := Portfolio{
		PortfolioID:  uuid.New().String(),
		Name:         name,
		BaseCurrency: "CNY",
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO portfolios (portfolio_id, name, base_currency, created_at)
		VALUES (?, ?, ?, ?)`,
		p.PortfolioID, p.Name, p.BaseCurrency, p.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert portfolio: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO portfolio_accounts (portfolio_id, cash, updated_at)
		VALUES (?, ?, ?)`,
		p.PortfolioID, initialCash, p.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert portfolio account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit portfolio: %w", err)
	}
	return &p, nil
}

// Get returns one portfolio or nil.
func (r *Repository) Get(portfolioID string) (*Portfolio, error) {
	row := r.db.QueryRow(`
		SELECT portfolio_id, name, base_currency, created_at
		FROM portfolios WHERE portfolio_id = ?`, portfolioID)
	var p Portfolio
	err := row.Scan(&p.PortfolioID, &p.Name, &p.BaseCurrency, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", portfolioID, err)
	}
	return &p, nil
}

// List returns all portfolios, newest first.
func (r *Repository) List() ([]Portfolio, error) {
	rows, err := r.db.Query(`
		SELECT portfolio_id, name, base_currency, created_at
		FROM portfolios ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var out []Portfolio
	for rows.Next() {
		var p Portfolio
		if err := rows.Scan(&p.PortfolioID, &p.Name, &p.BaseCurrency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Cash returns the account cash balance.
func (r *Repository) Cash(portfolioID string) (float64, error) {
	var cash float64
	err := r.db.QueryRow(`
		SELECT cash FROM portfolio_accounts WHERE portfolio_id = ?`, portfolioID).Scan(&cash)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("portfolio account %s not found", portfolioID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cash for %s: %w", portfolioID, err)
	}
	return cash, nil
}

// SetCashTx updates the cash balance inside an existing transaction.
func SetCashTx(tx *sql.Tx, portfolioID string, cash float64) error {
	_, err := tx.Exec(`
		UPDATE portfolio_accounts SET cash = ?, updated_at = ? WHERE portfolio_id = ?`,
		cash, time.Now().UTC().Format(time.RFC3339), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to update cash for %s: %w", portfolioID, err)
	}
	return nil
}

// Positions returns all holdings of a portfolio.
func (r *Repository) Positions(portfolioID string) ([]Position, error) {
	rows, err := r.db.Query(`
		SELECT portfolio_id, symbol, exchange, qty, avg_cost, updated_at
		FROM positions WHERE portfolio_id = ? ORDER BY symbol ASC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.PortfolioID, &pos.Symbol, &pos.Exchange,
			&pos.Qty, &pos.AvgCost, &pos.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// GetPosition returns one holding or nil.
func (r *Repository) GetPosition(portfolioID, symbol string, exchange domain.Exchange) (*Position, error) {
	row := r.db.QueryRow(`
		SELECT portfolio_id, symbol, exchange, qty, avg_cost, updated_at
		FROM positions WHERE portfolio_id = ? AND symbol = ? AND exchange = ?`,
		portfolioID, symbol, exchange)
	var pos Position
	err := row.Scan(&pos.PortfolioID, &pos.Symbol, &pos.Exchange, &pos.Qty, &pos.AvgCost, &pos.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s %s: %w", portfolioID, symbol, err)
	}
	return &pos, nil
}

// UpsertPositionTx writes a holding inside an existing transaction. A zero
// qty deletes the row instead.
func UpsertPositionTx(tx *sql.Tx, pos Position) error {
	if pos.Qty == 0 {
		_, err := tx.Exec(`
			DELETE FROM positions WHERE portfolio_id = ? AND symbol = ? AND exchange = ?`,
			pos.PortfolioID, pos.Symbol, pos.Exchange)
		if err != nil {
			return fmt.Errorf("failed to delete position %s: %w", pos.Symbol, err)
		}
		return nil
	}

	_, err := tx.Exec(`
		INSERT INTO positions (portfolio_id, symbol, exchange, qty, avg_cost, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol, exchange) DO UPDATE SET
			qty = excluded.qty,
			avg_cost = excluded.avg_cost,
			updated_at = excluded.updated_at`,
		pos.PortfolioID, pos.Symbol, pos.Exchange, pos.Qty, pos.AvgCost,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.Symbol, err)
	}
	return nil
}

// UpsertPosition writes a holding in its own transaction.
func (r *Repository) UpsertPosition(pos Position) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := UpsertPositionTx(tx, pos); err != nil {
		return err
	}
	return tx.Commit()
}

// SetCash updates the cash balance in its own transaction.
func (r *Repository) SetCash(portfolioID string, cash float64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := SetCashTx(tx, portfolioID, cash); err != nil {
		return err
	}
	return tx.Commit()
}
