package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/providers"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// IngestService pulls data from providers into the local database. Providers
// are tried in configured order: unhealthy ones are skipped, a failing call
// falls through to the next, and only when all fail does the operation error
// with PROVIDER_UNAVAILABLE.
type IngestService struct {
	registry    *providers.Registry
	order       []string
	instruments *instruments.Repository
	bars        *BarRepository
	funds       *FundamentalRepository
	flows       *CapitalFlowRepository
	concurrency int
	log         zerolog.Logger
}

// NewIngestService creates the ingest service.
func NewIngestService(
	registry *providers.Registry,
	order []string,
	instrumentRepo *instruments.Repository,
	barRepo *BarRepository,
	fundRepo *FundamentalRepository,
	flowRepo *CapitalFlowRepository,
	concurrency int,
	log zerolog.Logger,
) *IngestService {
	if concurrency < 1 {
		concurrency = 4
	}
	return &IngestService{
		registry:    registry,
		order:       order,
		instruments: instrumentRepo,
		bars:        barRepo,
		funds:       fundRepo,
		flows:       flowRepo,
		concurrency: concurrency,
		log:         log.With().Str("service", "ingest").Logger(),
	}
}

// tryProviders walks the ordered provider list until fn succeeds.
func tryProviders[T any](ctx context.Context, s *IngestService, op string, fn func(providers.DataProvider) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, p := range s.registry.Ordered(s.order) {
		if status := p.Status(ctx); !status.OK {
			s.log.Debug().Str("provider", p.Name()).Str("op", op).
				Str("details", status.Details).Msg("Skipping unhealthy provider")
			continue
		}
		result, err := fn(p)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", p.Name()).Str("op", op).Msg("Provider call failed")
			lastErr = err
			continue
		}
		return result, nil
	}
	if lastErr != nil {
		return zero, apierr.ProviderUnavailable("all providers failed for %s: %v", op, lastErr)
	}
	return zero, apierr.ProviderUnavailable("no healthy provider for %s", op)
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	Count   int                 `json:"count"`
	Symbols map[string]int      `json:"symbols,omitempty"`
	Skipped []string            `json:"skipped,omitempty"`
	Errors  map[string]string   `json:"errors,omitempty"`
}

// IngestInstruments refreshes the full instrument universe.
func (s *IngestService) IngestInstruments(ctx context.Context) (*IngestResult, error) {
	rows, err := tryProviders(ctx, s, "instruments", func(p providers.DataProvider) ([]providers.InstrumentRow, error) {
		return p.Instruments(ctx)
	})
	if err != nil {
		return nil, err
	}

	items := make([]instruments.Instrument, 0, len(rows))
	for _, row := range rows {
		items = append(items, instruments.Instrument{
			Symbol:   domain.NormalizeSymbol(row.Symbol),
			Exchange: row.Exchange,
			Market:   row.Market,
			Name:     row.Name,
			Industry: row.Industry,
			IsActive: true,
		})
	}
	if err := s.instruments.UpsertBatch(items); err != nil {
		return nil, err
	}
	s.log.Info().Int("count", len(items)).Msg("Instruments ingested")
	return &IngestResult{Count: len(items)}, nil
}

// resolveSymbols expands an explicit list or falls back to all active instruments.
func (s *IngestService) resolveSymbols(refs []SymbolRef) ([]SymbolRef, error) {
	if len(refs) > 0 {
		out := make([]SymbolRef, 0, len(refs))
		for _, ref := range refs {
			symbol := domain.NormalizeSymbol(ref.Symbol)
			exchange := ref.Exchange
			if exchange == "" {
				exchange = domain.GuessExchange(symbol)
			}
			out = append(out, SymbolRef{Symbol: symbol, Exchange: exchange})
		}
		return out, nil
	}

	active, err := s.instruments.ListActive()
	if err != nil {
		return nil, err
	}
	out := make([]SymbolRef, 0, len(active))
	for _, inst := range active {
		out = append(out, SymbolRef{Symbol: inst.Symbol, Exchange: inst.Exchange})
	}
	return out, nil
}

// IngestBarsDaily fetches and stores RAW daily bars for the given symbols
// (all active instruments when empty), fanning out with bounded concurrency.
func (s *IngestService) IngestBarsDaily(ctx context.Context, refs []SymbolRef, start, end string, adj domain.Adj) (*IngestResult, error) {
	if start == "" || end == "" {
		return nil, apierr.Validation("start and end dates are required (YYYYMMDD)")
	}
	if adj == "" {
		adj = domain.AdjRaw
	}

	symbols, err := s.resolveSymbols(refs)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, apierr.Validation("no symbols to ingest; run ingest_instruments first or pass symbols")
	}

	result := &IngestResult{Symbols: make(map[string]int), Errors: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ref := range symbols {
		ref := ref
		g.Go(func() error {
			bars, err := tryProviders(gctx, s, "bars_daily", func(p providers.DataProvider) ([]providers.BarDailyRow, error) {
				return p.BarsDaily(gctx, ref.Symbol, ref.Exchange, start, end, adj)
			})
			if err != nil {
				mu.Lock()
				result.Errors[ref.Symbol] = err.Error()
				mu.Unlock()
				return nil // keep going, per-symbol failures are reported in the result
			}
			if err := s.bars.UpsertBars(ref.Symbol, ref.Exchange, adj, bars); err != nil {
				return err
			}
			mu.Lock()
			result.Symbols[ref.Symbol] = len(bars)
			result.Count += len(bars)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// When every symbol failed the run as a whole is a provider outage.
	if len(result.Symbols) == 0 && len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			return nil, apierr.ProviderUnavailable("bar ingest failed for all symbols: %s", msg)
		}
	}

	s.log.Info().Int("bars", result.Count).Int("symbols", len(result.Symbols)).
		Int("errors", len(result.Errors)).Msg("Daily bars ingested")
	return result, nil
}

// IngestFundamentals refreshes the latest fundamental snapshot per symbol.
func (s *IngestService) IngestFundamentals(ctx context.Context, refs []SymbolRef) (*IngestResult, error) {
	symbols, err := s.resolveSymbols(refs)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, apierr.Validation("no symbols to ingest")
	}

	result := &IngestResult{Errors: make(map[string]string)}
	for _, ref := range symbols {
		row, err := tryProviders(ctx, s, "fundamentals", func(p providers.DataProvider) (*providers.FundamentalRow, error) {
			fp, ok := p.(providers.FundamentalsProvider)
			if !ok {
				return nil, fmt.Errorf("provider %s does not supply fundamentals", p.Name())
			}
			return fp.FundamentalsDaily(ctx, ref.Symbol, ref.Exchange)
		})
		if err != nil {
			result.Errors[ref.Symbol] = err.Error()
			continue
		}
		if err := s.funds.Upsert(ref.Symbol, ref.Exchange, *row); err != nil {
			return nil, err
		}
		result.Count++
	}

	if result.Count == 0 && len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			return nil, apierr.ProviderUnavailable("fundamentals ingest failed for all symbols: %s", msg)
		}
	}
	return result, nil
}

// IngestCapitalFlow refreshes daily money flow for a date window.
func (s *IngestService) IngestCapitalFlow(ctx context.Context, refs []SymbolRef, start, end string) (*IngestResult, error) {
	if start == "" || end == "" {
		return nil, apierr.Validation("start and end dates are required (YYYYMMDD)")
	}

	symbols, err := s.resolveSymbols(refs)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, apierr.Validation("no symbols to ingest")
	}

	result := &IngestResult{Symbols: make(map[string]int), Errors: make(map[string]string)}
	for _, ref := range symbols {
		rows, err := tryProviders(ctx, s, "capital_flow", func(p providers.DataProvider) ([]providers.CapitalFlowRow, error) {
			cp, ok := p.(providers.CapitalFlowProvider)
			if !ok {
				return nil, fmt.Errorf("provider %s does not supply capital flow", p.Name())
			}
			return cp.CapitalFlowDaily(ctx, ref.Symbol, ref.Exchange, start, end)
		})
		if err != nil {
			result.Errors[ref.Symbol] = err.Error()
			continue
		}
		if err := s.flows.UpsertBatch(ref.Symbol, ref.Exchange, rows); err != nil {
			return nil, err
		}
		result.Symbols[ref.Symbol] = len(rows)
		result.Count += len(rows)
	}

	if result.Count == 0 && len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			return nil, apierr.ProviderUnavailable("capital flow ingest failed for all symbols: %s", msg)
		}
	}
	return result, nil
}
