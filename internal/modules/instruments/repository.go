package instruments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/rs/zerolog"
)

// Repository provides access to the instruments table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new instrument repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "instruments").Logger(),
	}
}

// Upsert inserts or refreshes one instrument.
func (r *Repository) Upsert(inst Instrument) error {
	_, err := r.db.Exec(`
		INSERT INTO instruments (symbol, exchange, market, name, industry, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, exchange) DO UPDATE SET
			market = excluded.market,
			name = excluded.name,
			industry = excluded.industry,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		inst.Symbol, inst.Exchange, inst.Market, inst.Name, nullIfEmpty(inst.Industry),
		boolToInt(inst.IsActive), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert instrument %s.%s: %w", inst.Symbol, inst.Exchange, err)
	}
	return nil
}

// UpsertBatch refreshes many instruments in one transaction.
func (r *Repository) UpsertBatch(items []Instrument) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO instruments (symbol, exchange, market, name, industry, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, exchange) DO UPDATE SET
			market = excluded.market,
			name = excluded.name,
			industry = excluded.industry,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, inst := range items {
		if _, err := stmt.Exec(inst.Symbol, inst.Exchange, inst.Market, inst.Name,
			nullIfEmpty(inst.Industry), boolToInt(inst.IsActive), now); err != nil {
			return fmt.Errorf("failed to upsert instrument %s.%s: %w", inst.Symbol, inst.Exchange, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instrument batch: %w", err)
	}
	return nil
}

// Get returns one instrument or nil when unknown.
func (r *Repository) Get(symbol string, exchange domain.Exchange) (*Instrument, error) {
	row := r.db.QueryRow(`
		SELECT symbol, exchange, market, name, industry, is_active, updated_at
		FROM instruments WHERE symbol = ? AND exchange = ?`, symbol, exchange)
	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %s.%s: %w", symbol, exchange, err)
	}
	return inst, nil
}

// Search matches symbol prefix or name substring, active instruments first.
func (r *Repository) Search(query string, limit int) ([]Instrument, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT symbol, exchange, market, name, industry, is_active, updated_at
		FROM instruments
		WHERE symbol LIKE ? OR name LIKE ?
		ORDER BY is_active DESC, symbol ASC
		LIMIT ?`,
		query+"%", "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search instruments: %w", err)
	}
	defer rows.Close()
	return collectInstruments(rows)
}

// ListActive returns all active instruments.
func (r *Repository) ListActive() ([]Instrument, error) {
	rows, err := r.db.Query(`
		SELECT symbol, exchange, market, name, industry, is_active, updated_at
		FROM instruments WHERE is_active = 1 ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active instruments: %w", err)
	}
	defer rows.Close()
	return collectInstruments(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (*Instrument, error) {
	var inst Instrument
	var industry sql.NullString
	var isActive int
	err := row.Scan(&inst.Symbol, &inst.Exchange, &inst.Market, &inst.Name,
		&industry, &isActive, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.Industry = industry.String
	inst.IsActive = isActive != 0
	return &inst, nil
}

func collectInstruments(rows *sql.Rows) ([]Instrument, error) {
	var out []Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
