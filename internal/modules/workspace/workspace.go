// Package workspace assembles the single-stock research view: everything the
// app knows about one instrument, in one response.
package workspace

import (
	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/news"
	"github.com/datanger/workbench/internal/modules/notes"
	"github.com/datanger/workbench/internal/modules/plans"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// View is the aggregated workspace payload.
type View struct {
	Instrument  *instruments.Instrument  `json:"instrument"`
	Quote       *marketdata.Quote        `json:"quote"`
	Bars        []marketdata.Bar         `json:"bars"`
	Indicators  []scoring.Indicator      `json:"indicators"`
	Score       *scoring.Snapshot        `json:"score"`
	Plan        *plans.Plan              `json:"plan"`
	Notes       []notes.Note             `json:"notes"`
	Fundamental *marketdata.Fundamental  `json:"fundamental"`
	CapitalFlow []marketdata.CapitalFlow `json:"capital_flow"`
	News        []news.Item              `json:"news"`
}

// Service aggregates the workspace view.
type Service struct {
	instruments *instruments.Repository
	bars        *marketdata.BarRepository
	fundamental *marketdata.FundamentalRepository
	capitalFlow *marketdata.CapitalFlowRepository
	scoring     *scoring.Service
	plans       *plans.Repository
	notes       *notes.Repository
	news        *news.Repository
	log         zerolog.Logger
}

// NewService creates the workspace service.
func NewService(
	instrumentRepo *instruments.Repository,
	barRepo *marketdata.BarRepository,
	fundamentalRepo *marketdata.FundamentalRepository,
	capitalFlowRepo *marketdata.CapitalFlowRepository,
	scoringSvc *scoring.Service,
	planRepo *plans.Repository,
	noteRepo *notes.Repository,
	newsRepo *news.Repository,
	log zerolog.Logger,
) *Service {
	return &Service{
		instruments: instrumentRepo,
		bars:        barRepo,
		fundamental: fundamentalRepo,
		capitalFlow: capitalFlowRepo,
		scoring:     scoringSvc,
		plans:       planRepo,
		notes:       noteRepo,
		news:        newsRepo,
		log:         log.With().Str("service", "workspace").Logger(),
	}
}

// Build assembles the view. Bars are the hard requirement: without ingested
// history there is nothing to research and the caller gets DATA_NOT_READY.
// Everything else degrades to empty sections.
func (s *Service) Build(symbol string, exchange domain.Exchange) (*View, error) {
	bars, err := s.bars.RecentBars(symbol, exchange, domain.AdjRaw, 120)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apierr.DataNotReady("no daily bars for %s.%s", symbol, exchange).
			WithDetails(map[string]interface{}{"task": "ingest_bars_daily"})
	}

	view := &View{Bars: bars}

	if inst, err := s.instruments.Get(symbol, exchange); err == nil {
		view.Instrument = inst
	}
	if quote, err := s.bars.LatestQuote(symbol, exchange); err == nil {
		view.Quote = quote
	}
	if indicators, err := s.scoring.IndicatorsFor(symbol, exchange); err == nil {
		view.Indicators = indicators
	}
	if score, err := s.scoring.Latest(symbol, exchange); err == nil {
		view.Score = score
	}
	if plan, err := s.plans.Latest(symbol, exchange); err == nil {
		view.Plan = plan
	}
	if noteItems, err := s.notes.List(symbol, string(exchange), 20); err == nil {
		view.Notes = noteItems
	}
	if fundamental, err := s.fundamental.Latest(symbol, exchange); err == nil {
		view.Fundamental = fundamental
	}
	if flows, err := s.capitalFlow.Recent(symbol, exchange, 20); err == nil {
		view.CapitalFlow = flows
	}
	if newsItems, err := s.news.List(symbol, 20); err == nil {
		view.News = newsItems
	}

	return view, nil
}
