// Package providers defines the market data provider port and its
// implementations. Providers are pluggable: ingest walks them in configured
// order and falls back when one is unhealthy.
package providers

import (
	"context"

	"github.com/datanger/workbench/internal/domain"
)

// InstrumentRow is one listed instrument as reported by a provider.
type InstrumentRow struct {
	Symbol   string
	Exchange domain.Exchange
	Market   domain.Market
	Name     string
	Industry string
}

// BarDailyRow is one daily OHLCV bar. Amount is turnover in CNY.
type BarDailyRow struct {
	TradeDate string // YYYY-MM-DD
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Amount    float64
}

// FundamentalRow is a daily fundamental snapshot. MV is total market value in CNY.
type FundamentalRow struct {
	ReportPeriod  string // YYYY-MM-DD
	PETTM         *float64
	PB            *float64
	DividendYield *float64
	MV            *float64
}

// CapitalFlowRow is one day of money flow by order size.
type CapitalFlowRow struct {
	TradeDate           string
	MainNetInflow       *float64
	SuperLargeNetInflow *float64
	LargeNetInflow      *float64
	MediumNetInflow     *float64
	SmallNetInflow      *float64
}

// Status reports provider health.
type Status struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// DataProvider is the core port every market data source implements.
type DataProvider interface {
	Name() string
	Status(ctx context.Context) Status
	Instruments(ctx context.Context) ([]InstrumentRow, error)
	BarsDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string, adj domain.Adj) ([]BarDailyRow, error)
}

// FundamentalsProvider is an optional capability for daily fundamentals.
type FundamentalsProvider interface {
	FundamentalsDaily(ctx context.Context, symbol string, exchange domain.Exchange) (*FundamentalRow, error)
}

// CapitalFlowProvider is an optional capability for daily money flow.
type CapitalFlowProvider interface {
	CapitalFlowDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string) ([]CapitalFlowRow, error)
}
