// Package portfolio manages paper portfolios: cash accounts, positions and
// mark-to-market valuation.
package portfolio

import "github.com/datanger/workbench/internal/domain"

// Portfolio is one paper portfolio.
type Portfolio struct {
	PortfolioID  string `json:"portfolio_id"`
	Name         string `json:"name"`
	BaseCurrency string `json:"base_currency"`
	CreatedAt    string `json:"created_at"`
}

// Position is one holding.
type Position struct {
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Exchange    domain.Exchange `json:"exchange"`
	Qty         float64         `json:"qty"`
	AvgCost     float64         `json:"avg_cost"`
	UpdatedAt   string          `json:"updated_at"`
}

// ValuedPosition is a position marked to the latest close.
type ValuedPosition struct {
	Position
	LastPrice        *float64 `json:"last_price"`
	MarketValue      *float64 `json:"market_value"`
	UnrealizedPnL    *float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct *float64 `json:"unrealized_pnl_pct"`
	Weight           *float64 `json:"weight"`
}

// Valuation is a fully valued portfolio snapshot.
type Valuation struct {
	Portfolio     Portfolio        `json:"portfolio"`
	Cash          float64          `json:"cash"`
	Positions     []ValuedPosition `json:"positions"`
	MVTotal       float64          `json:"mv_total"`
	TotalEquity   float64          `json:"total_equity"`
	CashRatio     float64          `json:"cash_ratio"`
	MissingPrices []string         `json:"missing_prices,omitempty"`
}
