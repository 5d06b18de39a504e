// Package risk evaluates order drafts against configurable trading rules
// before they are allowed to reach simulated execution.
package risk

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/config"
	"github.com/rs/zerolog"
)

// RulesetVersion tags persisted check results.
const RulesetVersion = "risk/v1"

// Rules is the effective rule set: environment defaults overlaid with
// per-key overrides from the risk_rules table.
type Rules struct {
	MaxPositionPerSymbol     float64 `json:"max_position_per_symbol"`
	MinCashRatio             float64 `json:"min_cash_ratio"`
	MaxOrderValue            float64 `json:"max_order_value"`
	MinOrderValue            float64 `json:"min_order_value"`
	MaxOrdersPerDay          int     `json:"max_orders_per_day"`
	MaxOrderFrequencySeconds int     `json:"max_order_frequency_seconds"`
	PriceDeviationLimit      float64 `json:"price_deviation_limit"`
	LotSize                  int     `json:"lot_size"`
	MaxDailyTradingValue     float64 `json:"max_daily_trading_value"`
}

// RulesRepository merges rule defaults with stored overrides.
type RulesRepository struct {
	db       *sql.DB
	defaults config.RiskConfig
	log      zerolog.Logger
}

// NewRulesRepository creates a rules repository.
func NewRulesRepository(db *sql.DB, defaults config.RiskConfig, log zerolog.Logger) *RulesRepository {
	return &RulesRepository{
		db:       db,
		defaults: defaults,
		log:      log.With().Str("repo", "risk_rules").Logger(),
	}
}

// Effective returns the rules currently in force.
func (r *RulesRepository) Effective() (*Rules, error) {
	rules := &Rules{
		MaxPositionPerSymbol:     r.defaults.MaxPositionPerSymbol,
		MinCashRatio:             r.defaults.MinCashRatio,
		MaxOrderValue:            r.defaults.MaxOrderValue,
		MinOrderValue:            r.defaults.MinOrderValue,
		MaxOrdersPerDay:          r.defaults.MaxOrdersPerDay,
		MaxOrderFrequencySeconds: r.defaults.MaxOrderFrequencySeconds,
		PriceDeviationLimit:      r.defaults.PriceDeviationLimit,
		LotSize:                  r.defaults.LotSize,
		MaxDailyTradingValue:     r.defaults.MaxDailyTradingValue,
	}

	rows, err := r.db.Query(`SELECT key, value_json FROM risk_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk rule overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, valueJSON string
		if err := rows.Scan(&key, &valueJSON); err != nil {
			return nil, fmt.Errorf("failed to scan risk rule: %w", err)
		}
		if err := applyOverride(rules, key, valueJSON); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("Skipping unreadable risk rule override")
		}
	}
	return rules, rows.Err()
}

// SetOverrides persists the given overrides. Unknown keys are rejected.
func (r *RulesRepository) SetOverrides(overrides map[string]json.RawMessage) (*Rules, error) {
	probe := &Rules{}
	for key, raw := range overrides {
		if err := applyOverride(probe, key, string(raw)); err != nil {
			return nil, apierr.Validation(fmt.Sprintf("invalid risk rule %s: %v", key, err))
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for key, raw := range overrides {
		_, err := r.db.Exec(`
			INSERT INTO risk_rules (key, value_json, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json,
				updated_at = excluded.updated_at`,
			key, string(raw), now)
		if err != nil {
			return nil, fmt.Errorf("failed to store risk rule %s: %w", key, err)
		}
	}
	return r.Effective()
}

func applyOverride(rules *Rules, key, valueJSON string) error {
	switch key {
	case "max_position_per_symbol":
		return json.Unmarshal([]byte(valueJSON), &rules.MaxPositionPerSymbol)
	case "min_cash_ratio":
		return json.Unmarshal([]byte(valueJSON), &rules.MinCashRatio)
	case "max_order_value":
		return json.Unmarshal([]byte(valueJSON), &rules.MaxOrderValue)
	case "min_order_value":
		return json.Unmarshal([]byte(valueJSON), &rules.MinOrderValue)
	case "max_orders_per_day":
		return json.Unmarshal([]byte(valueJSON), &rules.MaxOrdersPerDay)
	case "max_order_frequency_seconds":
		return json.Unmarshal([]byte(valueJSON), &rules.MaxOrderFrequencySeconds)
	case "price_deviation_limit":
		return json.Unmarshal([]byte(valueJSON), &rules.PriceDeviationLimit)
	case "lot_size":
		return json.Unmarshal([]byte(valueJSON), &rules.LotSize)
	case "max_daily_trading_value":
		return json.Unmarshal([]byte(valueJSON), &rules.MaxDailyTradingValue)
	default:
		return fmt.Errorf("unknown rule key")
	}
}
