// Package scoring computes technical scores and indicator series for single
// instruments. The scoring ruleset is versioned so stored snapshots stay
// comparable.
package scoring

import "github.com/datanger/workbench/internal/domain"

// RulesetVersion identifies the scoring rules behind every snapshot.
const RulesetVersion = "score/tech_v1"

// MinBars is the minimum history needed to score; fewer bars means the data
// is not ready.
const MinBars = 60

// MaxBars caps how much history the score looks at.
const MaxBars = 120

// Snapshot is one persisted score. Breakdown holds the per-category point
// totals (trend, momentum, volatility, liquidity); Reasons lists the rule
// tags that fired, in rule order.
type Snapshot struct {
	ScoreID        string             `json:"score_id"`
	Symbol         string             `json:"symbol"`
	Exchange       domain.Exchange    `json:"exchange"`
	TradeDate      string             `json:"trade_date"`
	RulesetVersion string             `json:"ruleset_version"`
	ScoreTotal     float64            `json:"score_total"`
	Breakdown      map[string]float64 `json:"breakdown"`
	Reasons        []string           `json:"reasons"`
	Metrics        map[string]float64 `json:"metrics"`
	DataVersion    DataVersion        `json:"data_version"`
	CreatedAt      string             `json:"created_at"`
}

// DataVersion pins the input data a score was computed from.
type DataVersion struct {
	BarsTradeDate string `json:"bars_trade_date"`
	BarsCount     int    `json:"bars_count"`
}

// Indicator is one computed indicator series for the workspace chart.
type Indicator struct {
	Name   string           `json:"name"`
	Params map[string]int   `json:"params"`
	Last   float64          `json:"last"`
	Series []IndicatorPoint `json:"series"`
}

// IndicatorPoint is one dated indicator value.
type IndicatorPoint struct {
	TradeDate string  `json:"trade_date"`
	Value     float64 `json:"value"`
}
