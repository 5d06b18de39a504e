package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/providers"
	"github.com/rs/zerolog"
)

// FundamentalRepository provides access to the fundamental_snapshot table.
type FundamentalRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFundamentalRepository creates a fundamental repository.
func NewFundamentalRepository(db *sql.DB, log zerolog.Logger) *FundamentalRepository {
	return &FundamentalRepository{
		db:  db,
		log: log.With().Str("repo", "fundamentals").Logger(),
	}
}

// Upsert stores one daily snapshot (report_type D).
func (r *FundamentalRepository) Upsert(symbol string, exchange domain.Exchange, row providers.FundamentalRow) error {
	_, err := r.db.Exec(`
		INSERT INTO fundamental_snapshot
			(symbol, exchange, report_period, report_type, pe_ttm, pb, dividend_yield, mv, updated_at)
		VALUES (?, ?, ?, 'D', ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, exchange, report_period, report_type) DO UPDATE SET
			pe_ttm = excluded.pe_ttm,
			pb = excluded.pb,
			dividend_yield = excluded.dividend_yield,
			mv = excluded.mv,
			updated_at = excluded.updated_at`,
		symbol, exchange, row.ReportPeriod,
		nullFloat(row.PETTM), nullFloat(row.PB), nullFloat(row.DividendYield), nullFloat(row.MV),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals %s.%s: %w", symbol, exchange, err)
	}
	return nil
}

// Latest returns the most recent daily snapshot, or nil.
func (r *FundamentalRepository) Latest(symbol string, exchange domain.Exchange) (*Fundamental, error) {
	row := r.db.QueryRow(`
		SELECT symbol, exchange, report_period, report_type, pe_ttm, pb, dividend_yield, mv, updated_at
		FROM fundamental_snapshot
		WHERE symbol = ? AND exchange = ? AND report_type = 'D'
		ORDER BY report_period DESC LIMIT 1`, symbol, exchange)

	var f Fundamental
	var pe, pb, dy, mv sql.NullFloat64
	err := row.Scan(&f.Symbol, &f.Exchange, &f.ReportPeriod, &f.ReportType, &pe, &pb, &dy, &mv, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fundamentals %s.%s: %w", symbol, exchange, err)
	}
	f.PETTM = floatPtr(pe)
	f.PB = floatPtr(pb)
	f.DividendYield = floatPtr(dy)
	f.MV = floatPtr(mv)
	return &f, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
