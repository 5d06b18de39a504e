// Package domain holds shared value types for the workbench.
// The domain layer is pure: no infrastructure dependencies.
package domain

import "strings"

// Exchange identifies an A-share listing venue.
type Exchange string

const (
	ExchangeSSE  Exchange = "SSE"
	ExchangeSZSE Exchange = "SZSE"
)

// Market is the market segment. Only mainland A-shares are supported.
type Market string

const MarketCNA Market = "CN_A"

// Adj identifies the price adjustment mode of a daily bar series.
type Adj string

const (
	AdjRaw Adj = "RAW"
	AdjQfq Adj = "QFQ"
	AdjHfq Adj = "HFQ"
)

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
)

// RiskStatus is the overall verdict of a risk check, and also the level of a
// single risk item.
type RiskStatus string

const (
	RiskPass RiskStatus = "PASS"
	RiskWarn RiskStatus = "WARN"
	RiskFail RiskStatus = "FAIL"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the pricing mode of an order draft.
type OrderType string

const (
	OrderLimit  OrderType = "LIMIT"
	OrderMarket OrderType = "MARKET"
)

// ValidExchange reports whether s names a supported exchange.
func ValidExchange(s string) bool {
	return s == string(ExchangeSSE) || s == string(ExchangeSZSE)
}

// ValidAdj reports whether s names a supported adjustment mode.
func ValidAdj(s string) bool {
	return s == string(AdjRaw) || s == string(AdjQfq) || s == string(AdjHfq)
}

// NormalizeSymbol zero-pads a bare symbol to the canonical 6-digit form.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// GuessExchange infers the exchange for a bare 6-digit symbol. Shanghai codes
// start with 6 or 9, everything else trades in Shenzhen.
func GuessExchange(symbol string) Exchange {
	s := NormalizeSymbol(symbol)
	if strings.HasPrefix(s, "6") || strings.HasPrefix(s, "9") {
		return ExchangeSSE
	}
	return ExchangeSZSE
}
