// Package rebalance turns target weights into lot-aligned order suggestions.
package rebalance

import (
	"math"
	"sort"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// Suggestion is one proposed order.
type Suggestion struct {
	Symbol   string          `json:"symbol"`
	Exchange domain.Exchange `json:"exchange"`
	Side     domain.Side     `json:"side"`
	Qty      float64         `json:"qty"`
	Price    float64         `json:"price"`
	EstValue float64         `json:"est_value"`
	Reason   string          `json:"reason"`
	DraftID  string          `json:"draft_id,omitempty"`
}

// Result is the outcome of one rebalance computation.
type Result struct {
	PortfolioID   string       `json:"portfolio_id"`
	TotalEquity   float64      `json:"total_equity"`
	Investable    float64      `json:"investable"`
	CashBefore    float64      `json:"cash_before"`
	CashAfterEst  float64      `json:"cash_after_est"`
	Suggestions   []Suggestion `json:"suggestions"`
	MissingPrices []string     `json:"missing_prices,omitempty"`
}

// Service computes rebalance suggestions.
type Service struct {
	portfolios *portfolio.Service
	bars       *marketdata.BarRepository
	drafts     *drafts.Repository
	lotSize    float64
	log        zerolog.Logger
}

// NewService creates the rebalance service.
func NewService(portfolios *portfolio.Service, bars *marketdata.BarRepository, draftRepo *drafts.Repository, lotSize int, log zerolog.Logger) *Service {
	if lotSize < 1 {
		lotSize = 100
	}
	return &Service{
		portfolios: portfolios,
		bars:       bars,
		drafts:     draftRepo,
		lotSize:    float64(lotSize),
		log:        log.With().Str("service", "rebalance").Logger(),
	}
}

// Suggest computes suggestions that move the portfolio toward the target
// weights. Weights are normalized; a non-positive sum is rejected. Cash equal
// to total_equity * reserve stays uninvested. Deltas smaller than one lot at
// the current price are skipped. When createDrafts is set, every suggestion
// is persisted as a LIMIT order draft with origin "rebalance".
func (s *Service) Suggest(portfolioID string, targets map[string]float64, reserve float64, createDrafts bool) (*Result, error) {
	if len(targets) == 0 {
		return nil, apierr.Validation("targets must not be empty")
	}
	if reserve < 0 || reserve >= 1 {
		return nil, apierr.Validation("reserve_cash_ratio must be in [0, 1)")
	}

	var weightSum float64
	for _, w := range targets {
		weightSum += w
	}
	if weightSum <= 0 {
		return nil, apierr.Validation("target weights must sum to a positive value")
	}

	valuation, err := s.portfolios.Valuation(portfolioID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		PortfolioID: portfolioID,
		TotalEquity: valuation.TotalEquity,
		Investable:  valuation.TotalEquity * (1 - reserve),
		CashBefore:  valuation.Cash,
	}
	cashAfter := valuation.Cash
	missing := make(map[string]bool)
	for _, symbol := range valuation.MissingPrices {
		missing[symbol] = true
	}

	// Current holdings keyed by symbol for delta computation.
	held := make(map[string]portfolio.ValuedPosition, len(valuation.Positions))
	for _, pos := range valuation.Positions {
		held[pos.Symbol] = pos
	}

	// Deterministic iteration: targets in symbol order. Holdings absent from
	// the targets are left untouched.
	symbols := make([]string, 0, len(targets))
	for symbol := range targets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, rawSymbol := range symbols {
		symbol := domain.NormalizeSymbol(rawSymbol)
		weight := targets[rawSymbol] / weightSum

		exchange := domain.GuessExchange(symbol)
		var curQty, curMV float64
		if pos, ok := held[symbol]; ok {
			exchange = pos.Exchange
			curQty = pos.Qty
			if pos.MarketValue != nil {
				curMV = *pos.MarketValue
			}
		}

		quote, err := s.bars.LatestQuote(symbol, exchange)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			missing[symbol] = true
			continue
		}
		px := quote.Close

		targetValue := result.Investable * weight
		delta := targetValue - curMV
		if math.Abs(delta) < px*s.lotSize {
			continue
		}

		if delta > 0 {
			qty := s.floorToLot(delta / px)
			// Never suggest buying past the cash that is left.
			if qty*px > cashAfter {
				qty = s.floorToLot(cashAfter / px)
			}
			if qty <= 0 {
				continue
			}
			cashAfter -= qty * px
			result.Suggestions = append(result.Suggestions, Suggestion{
				Symbol: symbol, Exchange: exchange, Side: domain.SideBuy,
				Qty: qty, Price: px, EstValue: qty * px,
				Reason: "increase toward target weight",
			})
		} else {
			qty := s.floorToLot(-delta / px)
			if qty > curQty {
				qty = curQty
			}
			if qty <= 0 {
				continue
			}
			cashAfter += qty * px
			result.Suggestions = append(result.Suggestions, Suggestion{
				Symbol: symbol, Exchange: exchange, Side: domain.SideSell,
				Qty: qty, Price: px, EstValue: qty * px,
				Reason: "reduce toward target weight",
			})
		}
	}

	result.CashAfterEst = cashAfter
	for symbol := range missing {
		result.MissingPrices = append(result.MissingPrices, symbol)
	}
	sort.Strings(result.MissingPrices)

	if createDrafts {
		for i := range result.Suggestions {
			sug := &result.Suggestions[i]
			price := sug.Price
			draft, err := s.drafts.Create(drafts.Draft{
				PortfolioID: portfolioID,
				Symbol:      sug.Symbol,
				Exchange:    sug.Exchange,
				Side:        sug.Side,
				OrderType:   domain.OrderLimit,
				Price:       &price,
				Qty:         sug.Qty,
				Origin:      drafts.OriginRebalance,
				Notes:       sug.Reason,
			})
			if err != nil {
				return nil, err
			}
			sug.DraftID = draft.DraftID
		}
	}

	return result, nil
}

func (s *Service) floorToLot(qty float64) float64 {
	return math.Floor(qty/s.lotSize) * s.lotSize
}
