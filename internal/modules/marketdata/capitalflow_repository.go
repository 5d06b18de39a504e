package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/providers"
	"github.com/rs/zerolog"
)

// CapitalFlowRepository provides access to the capital_flow_daily table.
type CapitalFlowRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCapitalFlowRepository creates a capital flow repository.
func NewCapitalFlowRepository(db *sql.DB, log zerolog.Logger) *CapitalFlowRepository {
	return &CapitalFlowRepository{
		db:  db,
		log: log.With().Str("repo", "capital_flow").Logger(),
	}
}

// UpsertBatch stores a range of daily flows for one instrument.
func (r *CapitalFlowRepository) UpsertBatch(symbol string, exchange domain.Exchange, rows []providers.CapitalFlowRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO capital_flow_daily
			(symbol, exchange, trade_date, main_net_inflow, super_large_net_inflow,
			 large_net_inflow, medium_net_inflow, small_net_inflow, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, exchange, trade_date) DO UPDATE SET
			main_net_inflow = excluded.main_net_inflow,
			super_large_net_inflow = excluded.super_large_net_inflow,
			large_net_inflow = excluded.large_net_inflow,
			medium_net_inflow = excluded.medium_net_inflow,
			small_net_inflow = excluded.small_net_inflow,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare capital flow upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		if _, err := stmt.Exec(symbol, exchange, row.TradeDate,
			nullFloat(row.MainNetInflow), nullFloat(row.SuperLargeNetInflow),
			nullFloat(row.LargeNetInflow), nullFloat(row.MediumNetInflow),
			nullFloat(row.SmallNetInflow), now); err != nil {
			return fmt.Errorf("failed to upsert capital flow %s %s: %w", symbol, row.TradeDate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit capital flow batch: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent flows, newest first.
func (r *CapitalFlowRepository) Recent(symbol string, exchange domain.Exchange, limit int) ([]CapitalFlow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT symbol, exchange, trade_date, main_net_inflow, super_large_net_inflow,
		       large_net_inflow, medium_net_inflow, small_net_inflow, updated_at
		FROM capital_flow_daily
		WHERE symbol = ? AND exchange = ?
		ORDER BY trade_date DESC LIMIT ?`, symbol, exchange, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query capital flow for %s.%s: %w", symbol, exchange, err)
	}
	defer rows.Close()

	var out []CapitalFlow
	for rows.Next() {
		var f CapitalFlow
		var main, super, large, medium, small sql.NullFloat64
		if err := rows.Scan(&f.Symbol, &f.Exchange, &f.TradeDate,
			&main, &super, &large, &medium, &small, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capital flow: %w", err)
		}
		f.MainNetInflow = floatPtr(main)
		f.SuperLargeNetInflow = floatPtr(super)
		f.LargeNetInflow = floatPtr(large)
		f.MediumNetInflow = floatPtr(medium)
		f.SmallNetInflow = floatPtr(small)
		out = append(out, f)
	}
	return out, rows.Err()
}
