// Package plans manages trade plans: price levels and sizing for a future
// entry, generated from scores or written by hand.
package plans

import "github.com/datanger/workbench/internal/domain"

// Plan statuses.
const (
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
	StatusDone     = "DONE"
)

// Plan is one versioned trade plan.
type Plan struct {
	PlanID         string          `json:"plan_id"`
	Symbol         string          `json:"symbol"`
	Exchange       domain.Exchange `json:"exchange"`
	PlanVersion    int             `json:"plan_version"`
	Status         string          `json:"status"`
	EntryLow       *float64        `json:"entry_low"`
	EntryHigh      *float64        `json:"entry_high"`
	StopLoss       *float64        `json:"stop_loss"`
	TakeProfit     *float64        `json:"take_profit"`
	PositionSizing *Sizing         `json:"position_sizing,omitempty"`
	BasedOn        *BasedOn        `json:"based_on,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// Sizing is the suggested portfolio fraction for the position.
type Sizing struct {
	Method string  `json:"method"`
	Value  float64 `json:"value"`
}

// BasedOn records the score snapshot a generated plan was derived from.
type BasedOn struct {
	ScoreID      string  `json:"score_id"`
	ScoreRuleset string  `json:"score_ruleset"`
	TradeDate    string  `json:"trade_date"`
	ScoreTotal   float64 `json:"score_total"`
}
