package scoring

import (
	"math"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Service computes and persists score snapshots.
type Service struct {
	bars   *marketdata.BarRepository
	scores *Repository
	log    zerolog.Logger
}

// NewService creates the scoring service.
func NewService(bars *marketdata.BarRepository, scores *Repository, log zerolog.Logger) *Service {
	return &Service{
		bars:   bars,
		scores: scores,
		log:    log.With().Str("service", "scoring").Logger(),
	}
}

// Calc scores an instrument from its recent RAW closes and persists the
// snapshot. Less than MinBars of history yields DATA_NOT_READY.
func (s *Service) Calc(symbol string, exchange domain.Exchange) (*Snapshot, error) {
	series, err := s.bars.RecentCloses(symbol, exchange, MaxBars)
	if err != nil {
		return nil, err
	}
	n := len(series.Closes)
	if n < MinBars {
		return nil, apierr.DataNotReady("need at least %d daily bars, have %d", MinBars, n).
			WithDetails(map[string]interface{}{"task": "ingest_bars_daily"})
	}

	closes := series.Closes
	amounts := series.Amounts
	last := closes[n-1]

	ma20 := stat.Mean(closes[n-20:], nil)
	ma60 := stat.Mean(closes[n-60:], nil)
	ret20 := closes[n-1]/closes[n-21] - 1
	vol20 := logReturnStd(closes[n-21:])
	liq20 := stat.Mean(amounts[n-20:], nil)

	breakdown := map[string]float64{}
	var reasons []string

	var trend float64
	if last > ma20 {
		trend += 10
		reasons = append(reasons, "price_above_ma20")
	}
	if ma20 > ma60 {
		trend += 10
		reasons = append(reasons, "ma20_above_ma60")
	}
	if last > ma60 {
		trend += 10
		reasons = append(reasons, "price_above_ma60")
	}
	breakdown["trend"] = trend

	var momentum float64
	if ret20 > 0 {
		momentum += 10
		reasons = append(reasons, "ret20_positive")
	}
	if ret20 > 0.10 {
		momentum += 10
		reasons = append(reasons, "ret20_gt_10pct")
	}
	breakdown["momentum"] = momentum

	var volatility float64
	if vol20 < 0.03 {
		volatility += 10
		reasons = append(reasons, "vol20_low")
	} else if vol20 < 0.06 {
		volatility += 5
		reasons = append(reasons, "vol20_mid")
	}
	breakdown["volatility"] = volatility

	var liquidity float64
	if liq20 > 1e8 {
		liquidity += 10
		reasons = append(reasons, "liq20_gt_1e8")
	} else if liq20 > 2e7 {
		liquidity += 5
		reasons = append(reasons, "liq20_gt_2e7")
	}
	breakdown["liquidity"] = liquidity

	total := (trend + momentum + volatility + liquidity) * 2
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	snapshot := &Snapshot{
		ScoreID:        uuid.New().String(),
		Symbol:         symbol,
		Exchange:       exchange,
		TradeDate:      series.TradeDates[n-1],
		RulesetVersion: RulesetVersion,
		ScoreTotal:     total,
		Breakdown:      breakdown,
		Reasons:        reasons,
		Metrics: map[string]float64{
			"last":  last,
			"ma20":  ma20,
			"ma60":  ma60,
			"ret20": ret20,
			"vol20": vol20,
			"liq20": liq20,
		},
		DataVersion: DataVersion{BarsTradeDate: series.TradeDates[n-1], BarsCount: n},
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.scores.Save(snapshot); err != nil {
		return nil, err
	}
	s.log.Debug().Str("symbol", symbol).Float64("score", total).Msg("Score computed")
	return snapshot, nil
}

// Latest returns the newest stored snapshot, or nil.
func (s *Service) Latest(symbol string, exchange domain.Exchange) (*Snapshot, error) {
	return s.scores.Latest(symbol, exchange)
}

// LatestOrCalc returns the newest snapshot, computing one first if none exists.
func (s *Service) LatestOrCalc(symbol string, exchange domain.Exchange) (*Snapshot, error) {
	snapshot, err := s.scores.Latest(symbol, exchange)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return snapshot, nil
	}
	return s.Calc(symbol, exchange)
}

// IndicatorsFor computes chart indicator series for an instrument.
func (s *Service) IndicatorsFor(symbol string, exchange domain.Exchange) ([]Indicator, error) {
	series, err := s.bars.RecentCloses(symbol, exchange, MaxBars)
	if err != nil {
		return nil, err
	}
	if len(series.Closes) == 0 {
		return nil, nil
	}
	return Indicators(series.TradeDates, series.Closes), nil
}

// logReturnStd is the population standard deviation of consecutive log
// returns over the window.
func logReturnStd(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i])-math.Log(closes[i-1]))
	}
	if len(returns) == 0 {
		return 0
	}

	mean := stat.Mean(returns, nil)
	var sum float64
	for _, r := range returns {
		d := r - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(returns)))
}
