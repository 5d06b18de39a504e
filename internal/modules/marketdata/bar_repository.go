package marketdata

import (
	"database/sql"
	"fmt"

	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/providers"
	"github.com/rs/zerolog"
)

// BarRepository provides access to the bars_daily table. It keeps the quote
// cache coherent: every upsert refreshes the cached latest quote.
type BarRepository struct {
	db    *sql.DB
	cache *QuoteCache
	log   zerolog.Logger
}

// NewBarRepository creates a bar repository.
func NewBarRepository(db *sql.DB, cache *QuoteCache, log zerolog.Logger) *BarRepository {
	return &BarRepository{
		db:    db,
		cache: cache,
		log:   log.With().Str("repo", "bars").Logger(),
	}
}

// UpsertBars writes a batch of provider bars for one instrument in a single
// transaction and refreshes the cached quote.
func (r *BarRepository) UpsertBars(symbol string, exchange domain.Exchange, adj domain.Adj, bars []providers.BarDailyRow) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO bars_daily (symbol, exchange, trade_date, adj, open, high, low, close, volume, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, exchange, trade_date, adj) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			amount = excluded.amount`)
	if err != nil {
		return fmt.Errorf("failed to prepare bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.Exec(symbol, exchange, bar.TradeDate, adj,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Amount); err != nil {
			return fmt.Errorf("failed to upsert bar %s %s: %w", symbol, bar.TradeDate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bar batch: %w", err)
	}

	if adj == domain.AdjRaw {
		r.refreshQuote(symbol, exchange)
	}
	return nil
}

// refreshQuote reloads the latest quote from the DB into the cache.
func (r *BarRepository) refreshQuote(symbol string, exchange domain.Exchange) {
	quote, err := r.latestQuoteFromDB(symbol, exchange)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to refresh quote cache")
		r.cache.Invalidate(symbol, string(exchange))
		return
	}
	if quote != nil {
		r.cache.Set(*quote)
	}
}

// LatestQuote returns the latest RAW close with its predecessor, or nil when
// no bars exist. Served from the quote cache when warm.
func (r *BarRepository) LatestQuote(symbol string, exchange domain.Exchange) (*Quote, error) {
	if quote, ok := r.cache.Get(symbol, string(exchange)); ok {
		return &quote, nil
	}

	quote, err := r.latestQuoteFromDB(symbol, exchange)
	if err != nil {
		return nil, err
	}
	if quote != nil {
		r.cache.Set(*quote)
	}
	return quote, nil
}

func (r *BarRepository) latestQuoteFromDB(symbol string, exchange domain.Exchange) (*Quote, error) {
	rows, err := r.db.Query(`
		SELECT trade_date, close FROM bars_daily
		WHERE symbol = ? AND exchange = ? AND adj = 'RAW'
		ORDER BY trade_date DESC LIMIT 2`, symbol, exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest quote for %s.%s: %w", symbol, exchange, err)
	}
	defer rows.Close()

	var closes []float64
	var dates []string
	for rows.Next() {
		var date string
		var close float64
		if err := rows.Scan(&date, &close); err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		dates = append(dates, date)
		closes = append(closes, close)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(closes) == 0 {
		return nil, nil
	}

	quote := &Quote{Symbol: symbol, Exchange: exchange, TradeDate: dates[0], Close: closes[0]}
	if len(closes) > 1 {
		quote.PrevClose = closes[1]
	}
	return quote, nil
}

// RecentBars returns up to limit most recent bars, newest first.
func (r *BarRepository) RecentBars(symbol string, exchange domain.Exchange, adj domain.Adj, limit int) ([]Bar, error) {
	if limit <= 0 {
		limit = 120
	}
	rows, err := r.db.Query(`
		SELECT symbol, exchange, trade_date, adj, open, high, low, close, volume, amount
		FROM bars_daily
		WHERE symbol = ? AND exchange = ? AND adj = ?
		ORDER BY trade_date DESC LIMIT ?`, symbol, exchange, adj, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent bars for %s.%s: %w", symbol, exchange, err)
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var bar Bar
		if err := rows.Scan(&bar.Symbol, &bar.Exchange, &bar.TradeDate, &bar.Adj,
			&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		out = append(out, bar)
	}
	return out, rows.Err()
}

// CloseSeries holds ascending closes and amounts for scoring.
type CloseSeries struct {
	TradeDates []string
	Closes     []float64
	Amounts    []float64
}

// RecentCloses returns up to limit most recent RAW closes in ascending order.
func (r *BarRepository) RecentCloses(symbol string, exchange domain.Exchange, limit int) (*CloseSeries, error) {
	bars, err := r.RecentBars(symbol, exchange, domain.AdjRaw, limit)
	if err != nil {
		return nil, err
	}

	series := &CloseSeries{
		TradeDates: make([]string, len(bars)),
		Closes:     make([]float64, len(bars)),
		Amounts:    make([]float64, len(bars)),
	}
	// bars come newest first, flip to ascending
	for i, bar := range bars {
		j := len(bars) - 1 - i
		series.TradeDates[j] = bar.TradeDate
		series.Closes[j] = bar.Close
		series.Amounts[j] = bar.Amount
	}
	return series, nil
}

// CountBars returns the number of RAW bars stored for an instrument.
func (r *BarRepository) CountBars(symbol string, exchange domain.Exchange) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(1) FROM bars_daily
		WHERE symbol = ? AND exchange = ? AND adj = 'RAW'`, symbol, exchange).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s.%s: %w", symbol, exchange, err)
	}
	return count, nil
}
