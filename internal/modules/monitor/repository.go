// Package monitor watches portfolios and watched symbols with user-defined
// alert rules. Rules run on a schedule or on demand, fired alerts are
// debounced and kept until acknowledged.
package monitor

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Rule types.
const (
	RulePriceChangePct = "price_change_pct"
	RuleVolumeSpike    = "volume_spike"
	RuleScoreChange    = "score_change"
	RulePositionLimit  = "position_limit"
	RuleCashRatio      = "cash_ratio"
)

// Severities.
const (
	SeverityInfo     = "INFO"
	SeverityWarn     = "WARN"
	SeverityCritical = "CRITICAL"
)

// Rule is one stored alert rule.
type Rule struct {
	RuleID    string          `json:"rule_id"`
	RuleType  string          `json:"rule_type"`
	Params    json.RawMessage `json:"params"`
	Enabled   bool            `json:"enabled"`
	CreatedAt string          `json:"created_at"`
}

// Alert is one fired alert.
type Alert struct {
	AlertID      string          `json:"alert_id"`
	RuleID       string          `json:"rule_id"`
	TS           string          `json:"ts"`
	Severity     string          `json:"severity"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Context      json.RawMessage `json:"context,omitempty"`
	Acknowledged bool            `json:"acknowledged"`
}

// Repository provides access to alert rules and alerts.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a monitor repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "monitor").Logger(),
	}
}

// CreateRule stores a new enabled rule.
func (r *Repository) CreateRule(ruleType string, params json.RawMessage) (*Rule, error) {
	rule := Rule{
		RuleID:    uuid.New().String(),
		RuleType:  ruleType,
		Params:    params,
		Enabled:   true,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := r.db.Exec(`
		INSERT INTO alert_rules (rule_id, rule_type, params_json, enabled, created_at)
		VALUES (?, ?, ?, 1, ?)`,
		rule.RuleID, rule.RuleType, string(rule.Params), rule.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns all rules, or only the enabled ones.
func (r *Repository) ListRules(enabledOnly bool) ([]Rule, error) {
	query := `SELECT rule_id, rule_type, params_json, enabled, created_at FROM alert_rules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var rule Rule
		var params string
		var enabled int
		if err := rows.Scan(&rule.RuleID, &rule.RuleType, &params, &enabled, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rule.Params = json.RawMessage(params)
		rule.Enabled = enabled != 0
		out = append(out, rule)
	}
	return out, rows.Err()
}

// SetRuleEnabled toggles a rule. Returns false when it does not exist.
func (r *Repository) SetRuleEnabled(ruleID string, enabled bool) (bool, error) {
	value := 0
	if enabled {
		value = 1
	}
	result, err := r.db.Exec(`UPDATE alert_rules SET enabled = ? WHERE rule_id = ?`, value, ruleID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle alert rule %s: %w", ruleID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// DeleteRule removes a rule. Returns false when it did not exist.
func (r *Repository) DeleteRule(ruleID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM alert_rules WHERE rule_id = ?`, ruleID)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert rule %s: %w", ruleID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// InsertAlert stores a fired alert.
func (r *Repository) InsertAlert(alert *Alert) error {
	alert.AlertID = uuid.New().String()
	alert.TS = time.Now().UTC().Format(time.RFC3339)

	var context interface{}
	if len(alert.Context) > 0 {
		context = string(alert.Context)
	}
	_, err := r.db.Exec(`
		INSERT INTO alerts (alert_id, rule_id, ts, severity, title, message, context_json,
			acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		alert.AlertID, alert.RuleID, alert.TS, alert.Severity, alert.Title, alert.Message, context)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts newest first.
func (r *Repository) ListAlerts(unackedOnly bool, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT alert_id, rule_id, ts, severity, title, message, context_json, acknowledged
		FROM alerts`
	if unackedOnly {
		query += ` WHERE acknowledged = 0`
	}
	query += ` ORDER BY ts DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var alert Alert
		var context sql.NullString
		var acked int
		if err := rows.Scan(&alert.AlertID, &alert.RuleID, &alert.TS, &alert.Severity,
			&alert.Title, &alert.Message, &context, &acked); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if context.Valid {
			alert.Context = json.RawMessage(context.String)
		}
		alert.Acknowledged = acked != 0
		out = append(out, alert)
	}
	return out, rows.Err()
}

// AckAlert acknowledges an alert. Returns false when it does not exist.
func (r *Repository) AckAlert(alertID string) (bool, error) {
	result, err := r.db.Exec(`UPDATE alerts SET acknowledged = 1 WHERE alert_id = ?`, alertID)
	if err != nil {
		return false, fmt.Errorf("failed to ack alert %s: %w", alertID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// LastAlertTime returns the time of the newest alert of a rule, or zero.
func (r *Repository) LastAlertTime(ruleID string) (time.Time, error) {
	var ts sql.NullString
	err := r.db.QueryRow(`
		SELECT MAX(ts) FROM alerts WHERE rule_id = ?`, ruleID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last alert time for %s: %w", ruleID, err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, ts.String)
	if err != nil {
		return time.Time{}, nil
	}
	return parsed, nil
}
