// Package audit maintains the append-only audit trail of state-changing
// operations.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one audit record. Input and Output snapshot the request and the
// produced state; RulesetVersion and DataVersion pin what the operation ran
// against.
type Entry struct {
	AuditID        string                 `json:"audit_id"`
	TS             string                 `json:"ts"`
	Actor          string                 `json:"actor"`
	Action         string                 `json:"action"`
	EntityType     string                 `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	Input          map[string]interface{} `json:"input,omitempty"`
	Output         map[string]interface{} `json:"output,omitempty"`
	RulesetVersion string                 `json:"ruleset_version,omitempty"`
	DataVersion    string                 `json:"data_version,omitempty"`
}

// Recorder writes and reads audit entries.
type Recorder struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRecorder creates an audit recorder.
func NewRecorder(db *sql.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: log.With().Str("repo", "audit").Logger(),
	}
}

// Record appends one entry. AuditID and TS are assigned here; Actor defaults
// to "user" when the caller leaves it empty. A failed write is an error: an
// operation whose trail cannot be written must not report success silently.
func (r *Recorder) Record(e Entry) error {
	e.AuditID = uuid.New().String()
	e.TS = time.Now().UTC().Format(time.RFC3339)
	if e.Actor == "" {
		e.Actor = "user"
	}

	inputJSON, err := marshalSnapshot(e.Input)
	if err != nil {
		return fmt.Errorf("failed to encode audit input snapshot: %w", err)
	}
	outputJSON, err := marshalSnapshot(e.Output)
	if err != nil {
		return fmt.Errorf("failed to encode audit output snapshot: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO audit_log
			(audit_id, ts, actor, action, entity_type, entity_id,
			 input_snapshot_json, output_snapshot_json, ruleset_version, data_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AuditID, e.TS, e.Actor, e.Action, e.EntityType, e.EntityID,
		inputJSON, outputJSON, nullable(e.RulesetVersion), nullable(e.DataVersion),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// List returns entries for one entity, newest first.
func (r *Recorder) List(entityType, entityID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT audit_id, ts, actor, action, entity_type, entity_id,
		       input_snapshot_json, output_snapshot_json, ruleset_version, data_version
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY ts DESC LIMIT ?`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var input, output, ruleset, data sql.NullString
		if err := rows.Scan(&e.AuditID, &e.TS, &e.Actor, &e.Action,
			&e.EntityType, &e.EntityID, &input, &output, &ruleset, &data); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if input.Valid && input.String != "" {
			if err := json.Unmarshal([]byte(input.String), &e.Input); err != nil {
				r.log.Warn().Err(err).Str("audit_id", e.AuditID).Msg("Malformed audit input snapshot")
			}
		}
		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &e.Output); err != nil {
				r.log.Warn().Err(err).Str("audit_id", e.AuditID).Msg("Malformed audit output snapshot")
			}
		}
		e.RulesetVersion = ruleset.String
		e.DataVersion = data.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalSnapshot(snapshot map[string]interface{}) (interface{}, error) {
	if snapshot == nil {
		return nil, nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
