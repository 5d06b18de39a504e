package portfolio

import (
	"sort"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// Service values portfolios against the latest closes.
type Service struct {
	repo *Repository
	bars *marketdata.BarRepository
	log  zerolog.Logger
}

// NewService creates the portfolio service.
func NewService(repo *Repository, bars *marketdata.BarRepository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		bars: bars,
		log:  log.With().Str("service", "portfolio").Logger(),
	}
}

// Repo exposes the underlying repository for modules that share it.
func (s *Service) Repo() *Repository {
	return s.repo
}

// Valuation marks every position to its latest RAW close. Positions without a
// close keep nil valuation fields and are listed in MissingPrices. Weights
// are fractions of total equity.
func (s *Service) Valuation(portfolioID string) (*Valuation, error) {
	p, err := s.repo.Get(portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apierr.Validation("portfolio %s not found", portfolioID)
	}

	cash, err := s.repo.Cash(portfolioID)
	if err != nil {
		return nil, err
	}
	positions, err := s.repo.Positions(portfolioID)
	if err != nil {
		return nil, err
	}

	valuation := &Valuation{Portfolio: *p, Cash: cash}
	missing := make(map[string]bool)
	var mvTotal float64

	valued := make([]ValuedPosition, 0, len(positions))
	for _, pos := range positions {
		vp := ValuedPosition{Position: pos}
		quote, err := s.bars.LatestQuote(pos.Symbol, pos.Exchange)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			missing[pos.Symbol] = true
		} else {
			last := quote.Close
			mv := last * pos.Qty
			pnl := (last - pos.AvgCost) * pos.Qty
			vp.LastPrice = &last
			vp.MarketValue = &mv
			vp.UnrealizedPnL = &pnl
			if pos.AvgCost > 0 {
				pct := last/pos.AvgCost - 1
				vp.UnrealizedPnLPct = &pct
			}
			mvTotal += mv
		}
		valued = append(valued, vp)
	}

	totalEquity := cash + mvTotal
	for i := range valued {
		if valued[i].MarketValue != nil && totalEquity > 0 {
			weight := *valued[i].MarketValue / totalEquity
			valued[i].Weight = &weight
		}
	}

	valuation.Positions = valued
	valuation.MVTotal = mvTotal
	valuation.TotalEquity = totalEquity
	if totalEquity > 0 {
		valuation.CashRatio = cash / totalEquity
	}
	for symbol := range missing {
		valuation.MissingPrices = append(valuation.MissingPrices, symbol)
	}
	sort.Strings(valuation.MissingPrices)

	return valuation, nil
}
