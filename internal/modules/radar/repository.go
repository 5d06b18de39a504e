package radar

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository provides access to radar templates and results.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a radar repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "radar").Logger(),
	}
}

// CreateTemplate stores a new template.
func (r *Repository) CreateTemplate(tpl Template) (*Template, error) {
	tpl.TemplateID = uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	tpl.CreatedAt, tpl.UpdatedAt = now, now

	universeJSON, err := json.Marshal(tpl.Universe)
	if err != nil {
		return nil, fmt.Errorf("failed to encode universe: %w", err)
	}
	rulesJSON, err := json.Marshal(tpl.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO radar_templates (template_id, name, universe_json, rules_json,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tpl.TemplateID, tpl.Name, string(universeJSON), string(rulesJSON),
		tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create radar template: %w", err)
	}
	return &tpl, nil
}

// GetTemplate returns one template or nil.
func (r *Repository) GetTemplate(templateID string) (*Template, error) {
	row := r.db.QueryRow(`
		SELECT template_id, name, universe_json, rules_json, created_at, updated_at
		FROM radar_templates WHERE template_id = ?`, templateID)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get radar template %s: %w", templateID, err)
	}
	return tpl, nil
}

// ListTemplates returns all templates, newest first.
func (r *Repository) ListTemplates() ([]Template, error) {
	rows, err := r.db.Query(`
		SELECT template_id, name, universe_json, rules_json, created_at, updated_at
		FROM radar_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list radar templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan radar template: %w", err)
		}
		out = append(out, *tpl)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template. Returns false when it did not exist.
func (r *Repository) DeleteTemplate(templateID string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM radar_templates WHERE template_id = ?`, templateID)
	if err != nil {
		return false, fmt.Errorf("failed to delete radar template %s: %w", templateID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// SaveResult persists one scored survivor.
func (r *Repository) SaveResult(res Result) error {
	breakdownJSON, err := json.Marshal(res.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	reasonsJSON, err := json.Marshal(res.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}
	metricsJSON, err := json.Marshal(res.KeyMetrics)
	if err != nil {
		return fmt.Errorf("failed to encode key metrics: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO radar_results (task_id, symbol, exchange, score_total, breakdown_json,
			reasons_json, key_metrics_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id, symbol, exchange) DO UPDATE SET
			score_total = excluded.score_total,
			breakdown_json = excluded.breakdown_json,
			reasons_json = excluded.reasons_json,
			key_metrics_json = excluded.key_metrics_json`,
		res.TaskID, res.Symbol, res.Exchange, res.ScoreTotal, string(breakdownJSON),
		string(reasonsJSON), string(metricsJSON), res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save radar result: %w", err)
	}
	return nil
}

// Results returns the survivors of one run, best score first.
func (r *Repository) Results(taskID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT task_id, symbol, exchange, score_total, breakdown_json, reasons_json,
		       key_metrics_json, created_at
		FROM radar_results WHERE task_id = ?
		ORDER BY score_total DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list radar results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var res Result
		var breakdownJSON, reasonsJSON, metricsJSON string
		if err := rows.Scan(&res.TaskID, &res.Symbol, &res.Exchange, &res.ScoreTotal,
			&breakdownJSON, &reasonsJSON, &metricsJSON, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan radar result: %w", err)
		}
		if err := json.Unmarshal([]byte(breakdownJSON), &res.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown: %w", err)
		}
		if err := json.Unmarshal([]byte(reasonsJSON), &res.Reasons); err != nil {
			return nil, fmt.Errorf("failed to decode reasons: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &res.KeyMetrics); err != nil {
			return nil, fmt.Errorf("failed to decode key metrics: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	var tpl Template
	var universeJSON, rulesJSON string
	err := row.Scan(&tpl.TemplateID, &tpl.Name, &universeJSON, &rulesJSON,
		&tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(universeJSON), &tpl.Universe); err != nil {
		return nil, fmt.Errorf("failed to decode universe: %w", err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &tpl.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return &tpl, nil
}
