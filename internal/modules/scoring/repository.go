package scoring

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/datanger/workbench/internal/domain"
	"github.com/rs/zerolog"
)

// Repository provides access to the score_snapshots table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a score repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "scores").Logger(),
	}
}

// Save persists one snapshot.
func (r *Repository) Save(s *Snapshot) error {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	reasons, err := json.Marshal(s.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}
	metrics, err := json.Marshal(s.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	dataVersion, err := json.Marshal(s.DataVersion)
	if err != nil {
		return fmt.Errorf("failed to encode data version: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO score_snapshots
			(score_id, symbol, exchange, trade_date, ruleset_version, score_total,
			 breakdown_json, reasons_json, metrics_json, data_version_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ScoreID, s.Symbol, s.Exchange, s.TradeDate, s.RulesetVersion, s.ScoreTotal,
		string(breakdown), string(reasons), string(metrics), string(dataVersion), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save score snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot for an instrument, or nil.
func (r *Repository) Latest(symbol string, exchange domain.Exchange) (*Snapshot, error) {
	row := r.db.QueryRow(`
		SELECT score_id, symbol, exchange, trade_date, ruleset_version, score_total,
		       breakdown_json, reasons_json, metrics_json, data_version_json, created_at
		FROM score_snapshots
		WHERE symbol = ? AND exchange = ?
		ORDER BY created_at DESC LIMIT 1`, symbol, exchange)

	snapshot, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest score for %s.%s: %w", symbol, exchange, err)
	}
	return snapshot, nil
}

// List returns snapshots for an instrument, newest first.
func (r *Repository) List(symbol string, exchange domain.Exchange, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT score_id, symbol, exchange, trade_date, ruleset_version, score_total,
		       breakdown_json, reasons_json, metrics_json, data_version_json, created_at
		FROM score_snapshots
		WHERE symbol = ? AND exchange = ?
		ORDER BY created_at DESC LIMIT ?`, symbol, exchange, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores for %s.%s: %w", symbol, exchange, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score snapshot: %w", err)
		}
		out = append(out, *snapshot)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var s Snapshot
	var breakdown, reasons, metrics, dataVersion string
	err := row.Scan(&s.ScoreID, &s.Symbol, &s.Exchange, &s.TradeDate, &s.RulesetVersion,
		&s.ScoreTotal, &breakdown, &reasons, &metrics, &dataVersion, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(breakdown), &s.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &s.Reasons); err != nil {
		return nil, fmt.Errorf("failed to decode reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &s.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(dataVersion), &s.DataVersion); err != nil {
		return nil, fmt.Errorf("failed to decode data version: %w", err)
	}
	return &s, nil
}
