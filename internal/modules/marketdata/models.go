// Package marketdata persists daily bars, fundamentals and capital flow, and
// runs provider-backed ingestion.
package marketdata

import "github.com/datanger/workbench/internal/domain"

// Bar is one persisted daily bar.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Exchange  domain.Exchange `json:"exchange"`
	TradeDate string          `json:"trade_date"`
	Adj       domain.Adj      `json:"adj"`
	Open      float64         `json:"open"`
	High      float64         `json:"high"`
	Low       float64         `json:"low"`
	Close     float64         `json:"close"`
	Volume    float64         `json:"volume"`
	Amount    float64         `json:"amount"`
}

// Quote is the latest close with its predecessor, used for valuation and
// price-limit checks.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Exchange  domain.Exchange `json:"exchange"`
	TradeDate string          `json:"trade_date"`
	Close     float64         `json:"close"`
	PrevClose float64         `json:"prev_close,omitempty"`
}

// ChangePct returns the day-over-day change, or 0 when no predecessor exists.
func (q Quote) ChangePct() float64 {
	if q.PrevClose <= 0 {
		return 0
	}
	return q.Close/q.PrevClose - 1
}

// Fundamental is one daily fundamental snapshot. MV is in CNY.
type Fundamental struct {
	Symbol        string          `json:"symbol"`
	Exchange      domain.Exchange `json:"exchange"`
	ReportPeriod  string          `json:"report_period"`
	ReportType    string          `json:"report_type"`
	PETTM         *float64        `json:"pe_ttm"`
	PB            *float64        `json:"pb"`
	DividendYield *float64        `json:"dividend_yield"`
	MV            *float64        `json:"mv"`
	UpdatedAt     string          `json:"updated_at"`
}

// CapitalFlow is one day of money flow by order size.
type CapitalFlow struct {
	Symbol              string          `json:"symbol"`
	Exchange            domain.Exchange `json:"exchange"`
	TradeDate           string          `json:"trade_date"`
	MainNetInflow       *float64        `json:"main_net_inflow"`
	SuperLargeNetInflow *float64        `json:"super_large_net_inflow"`
	LargeNetInflow      *float64        `json:"large_net_inflow"`
	MediumNetInflow     *float64        `json:"medium_net_inflow"`
	SmallNetInflow      *float64        `json:"small_net_inflow"`
	UpdatedAt           string          `json:"updated_at"`
}

// SymbolRef identifies one instrument in ingest requests.
type SymbolRef struct {
	Symbol   string          `json:"symbol"`
	Exchange domain.Exchange `json:"exchange"`
}
