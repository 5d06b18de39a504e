// Package tasks runs background jobs (ingestion, radar scans) on a bounded
// worker pool, with every run persisted to the tasks table.
package tasks

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/rs/zerolog"
)

// Task is one persisted background job.
type Task struct {
	TaskID       string            `json:"task_id"`
	Type         string            `json:"type"`
	Status       domain.TaskStatus `json:"status"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    string            `json:"created_at"`
	StartedAt    string            `json:"started_at,omitempty"`
	FinishedAt   string            `json:"finished_at,omitempty"`
}

// Repository provides access to the tasks table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a task repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "tasks").Logger(),
	}
}

// Insert stores a new PENDING task.
func (r *Repository) Insert(task *Task) error {
	_, err := r.db.Exec(`
		INSERT INTO tasks (task_id, type, status, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		task.TaskID, task.Type, task.Status, nullIfEmpty(string(task.Payload)), task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// MarkRunning transitions a task to RUNNING.
func (r *Repository) MarkRunning(taskID string) error {
	_, err := r.db.Exec(`
		UPDATE tasks SET status = ?, started_at = ? WHERE task_id = ?`,
		domain.TaskRunning, time.Now().UTC().Format(time.RFC3339), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task %s running: %w", taskID, err)
	}
	return nil
}

// MarkSucceeded stores the result and transitions to SUCCEEDED.
func (r *Repository) MarkSucceeded(taskID string, result interface{}) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	_, err = r.db.Exec(`
		UPDATE tasks SET status = ?, result_json = ?, finished_at = ? WHERE task_id = ?`,
		domain.TaskSucceeded, string(resultJSON), time.Now().UTC().Format(time.RFC3339), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task %s succeeded: %w", taskID, err)
	}
	return nil
}

// MarkFailed stores the error and transitions to FAILED.
func (r *Repository) MarkFailed(taskID, errorCode, errorMessage string) error {
	_, err := r.db.Exec(`
		UPDATE tasks SET status = ?, error_code = ?, error_message = ?, finished_at = ?
		WHERE task_id = ?`,
		domain.TaskFailed, errorCode, errorMessage,
		time.Now().UTC().Format(time.RFC3339), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", taskID, err)
	}
	return nil
}

// FailOrphans marks tasks left PENDING or RUNNING by a previous process as
// FAILED. Called once at startup before workers accept new work.
func (r *Repository) FailOrphans() (int, error) {
	result, err := r.db.Exec(`
		UPDATE tasks SET status = ?, error_code = 'INTERNAL_ERROR',
			error_message = 'interrupted by restart', finished_at = ?
		WHERE status IN (?, ?)`,
		domain.TaskFailed, time.Now().UTC().Format(time.RFC3339),
		domain.TaskPending, domain.TaskRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to fail orphaned tasks: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Get returns one task or nil.
func (r *Repository) Get(taskID string) (*Task, error) {
	row := r.db.QueryRow(selectColumns+` WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return task, nil
}

// List returns tasks newest first, optionally filtered by status and type.
func (r *Repository) List(limit int, status, taskType string) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectColumns + ` WHERE 1 = 1`
	args := []interface{}{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if taskType != "" {
		query += ` AND type = ?`
		args = append(args, taskType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// QueueDepth returns the number of tasks waiting or running.
func (r *Repository) QueueDepth() (int, error) {
	var depth int
	err := r.db.QueryRow(`
		SELECT COUNT(1) FROM tasks WHERE status IN (?, ?)`,
		domain.TaskPending, domain.TaskRunning).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

const selectColumns = `
	SELECT task_id, type, status, payload_json, result_json, error_code, error_message,
	       created_at, started_at, finished_at
	FROM tasks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var payload, result, errorCode, errorMessage, startedAt, finishedAt sql.NullString
	err := row.Scan(&task.TaskID, &task.Type, &task.Status, &payload, &result,
		&errorCode, &errorMessage, &task.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		task.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		task.Result = json.RawMessage(result.String)
	}
	task.ErrorCode = errorCode.String
	task.ErrorMessage = errorMessage.String
	task.StartedAt = startedAt.String
	task.FinishedAt = finishedAt.String
	return &task, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
