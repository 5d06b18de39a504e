package plans

import (
	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/rs/zerolog"
)

// Service generates heuristic plans from score snapshots.
type Service struct {
	repo    *Repository
	scoring *scoring.Service
	bars    *marketdata.BarRepository
	log     zerolog.Logger
}

// NewService creates the plan service.
func NewService(repo *Repository, scoringSvc *scoring.Service, bars *marketdata.BarRepository, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		scoring: scoringSvc,
		bars:    bars,
		log:     log.With().Str("service", "plans").Logger(),
	}
}

// Generate derives a plan from the latest score, computing a score first when
// none exists. Price levels hang off the latest close: entry band 98%..102%,
// stop 95%, target 110%. Sizing scales with the score, clamped to 5%..25%.
func (s *Service) Generate(symbol string, exchange domain.Exchange) (*Plan, error) {
	snapshot, err := s.scoring.LatestOrCalc(symbol, exchange)
	if err != nil {
		return nil, err
	}

	quote, err := s.bars.LatestQuote(symbol, exchange)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, apierr.DataNotReady("no daily bars for %s.%s", symbol, exchange).
			WithDetails(map[string]interface{}{"task": "ingest_bars_daily"})
	}

	last := quote.Close
	entryLow := last * 0.98
	entryHigh := last * 1.02
	stopLoss := last * 0.95
	takeProfit := last * 1.10

	sizing := snapshot.ScoreTotal / 100 * 0.25
	if sizing < 0.05 {
		sizing = 0.05
	}
	if sizing > 0.25 {
		sizing = 0.25
	}

	plan := Plan{
		Symbol:     symbol,
		Exchange:   exchange,
		Status:     StatusActive,
		EntryLow:   &entryLow,
		EntryHigh:  &entryHigh,
		StopLoss:   &stopLoss,
		TakeProfit: &takeProfit,
		PositionSizing: &Sizing{
			Method: "score_scaled",
			Value:  sizing,
		},
		BasedOn: &BasedOn{
			ScoreID:      snapshot.ScoreID,
			ScoreRuleset: snapshot.RulesetVersion,
			TradeDate:    snapshot.TradeDate,
			ScoreTotal:   snapshot.ScoreTotal,
		},
	}
	return s.repo.Create(plan)
}
