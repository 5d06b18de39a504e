// Package radar screens a stock universe with rule templates and scores the
// survivors. Runs execute as background tasks and persist ranked results.
package radar

import "github.com/datanger/workbench/internal/domain"

// Universe types.
const (
	UniverseAll       = "ALL"
	UniverseCustom    = "CUSTOM"
	UniverseWatchlist = "WATCHLIST"
)

// Rule operators.
const (
	OpEq     = "eq"
	OpIn     = "in"
	OpPrefix = "prefix"
)

// Universe selects the candidate set of a template.
type Universe struct {
	Type     string   `json:"type"`
	Symbols  []string `json:"symbols,omitempty"`
	ListType string   `json:"list_type,omitempty"`
}

// Rule is one filter predicate over instrument attributes.
type Rule struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// Template is one stored screen.
type Template struct {
	TemplateID string   `json:"template_id"`
	Name       string   `json:"name"`
	Universe   Universe `json:"universe"`
	Rules      []Rule   `json:"rules"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// Result is one scored survivor of a radar run.
type Result struct {
	TaskID     string                 `json:"task_id"`
	Symbol     string                 `json:"symbol"`
	Exchange   domain.Exchange        `json:"exchange"`
	ScoreTotal float64                `json:"score_total"`
	Breakdown  interface{}            `json:"breakdown"`
	Reasons    []string               `json:"reasons"`
	KeyMetrics map[string]interface{} `json:"key_metrics"`
	CreatedAt  string                 `json:"created_at"`
}
