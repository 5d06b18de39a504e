package plans

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository provides access to the trade_plans table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a plan repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "plans").Logger(),
	}
}

// Create persists a plan, assigning the next plan_version for the instrument.
func (r *Repository) Create(plan Plan) (*Plan, error) {
	plan.PlanID = uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Status == "" {
		plan.Status = StatusActive
	}

	var sizingJSON, basedOnJSON interface{}
	if plan.PositionSizing != nil {
		data, err := json.Marshal(plan.PositionSizing)
		if err != nil {
			return nil, fmt.Errorf("failed to encode position sizing: %w", err)
		}
		sizingJSON = string(data)
	}
	if plan.BasedOn != nil {
		data, err := json.Marshal(plan.BasedOn)
		if err != nil {
			return nil, fmt.Errorf("failed to encode based_on: %w", err)
		}
		basedOnJSON = string(data)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Version is assigned inside the transaction so concurrent generates for
	// the same instrument cannot collide.
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(plan_version), 0) + 1 FROM trade_plans
		WHERE symbol = ? AND exchange = ?`, plan.Symbol, plan.Exchange).Scan(&plan.PlanVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to compute plan version: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO trade_plans
			(plan_id, symbol, exchange, plan_version, status, entry_low, entry_high,
			 stop_loss, take_profit, position_sizing_json, based_on_json, notes,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.PlanID, plan.Symbol, plan.Exchange, plan.PlanVersion, plan.Status,
		nullFloat(plan.EntryLow), nullFloat(plan.EntryHigh),
		nullFloat(plan.StopLoss), nullFloat(plan.TakeProfit),
		sizingJSON, basedOnJSON, nullIfEmpty(plan.Notes),
		plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan: %w", err)
	}
	return &plan, nil
}

// Get returns one plan or nil.
func (r *Repository) Get(planID string) (*Plan, error) {
	row := r.db.QueryRow(selectColumns+` WHERE plan_id = ?`, planID)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}
	return plan, nil
}

// List returns plans for an instrument, newest version first.
func (r *Repository) List(symbol string, exchange domain.Exchange, limit int) ([]Plan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(selectColumns+`
		WHERE symbol = ? AND exchange = ?
		ORDER BY plan_version DESC LIMIT ?`, symbol, exchange, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans for %s.%s: %w", symbol, exchange, err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, *plan)
	}
	return out, rows.Err()
}

// Latest returns the highest-version plan for an instrument, or nil.
func (r *Repository) Latest(symbol string, exchange domain.Exchange) (*Plan, error) {
	row := r.db.QueryRow(selectColumns+`
		WHERE symbol = ? AND exchange = ?
		ORDER BY plan_version DESC LIMIT 1`, symbol, exchange)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest plan for %s.%s: %w", symbol, exchange, err)
	}
	return plan, nil
}

// UpdateStatusNotes changes status and/or notes of a plan.
func (r *Repository) UpdateStatusNotes(planID string, status, notes *string) (*Plan, error) {
	existing, err := r.Get(planID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if status != nil {
		existing.Status = *status
	}
	if notes != nil {
		existing.Notes = *notes
	}
	existing.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	_, err = r.db.Exec(`
		UPDATE trade_plans SET status = ?, notes = ?, updated_at = ? WHERE plan_id = ?`,
		existing.Status, nullIfEmpty(existing.Notes), existing.UpdatedAt, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to update plan %s: %w", planID, err)
	}
	return existing, nil
}

const selectColumns = `
	SELECT plan_id, symbol, exchange, plan_version, status, entry_low, entry_high,
	       stop_loss, take_profit, position_sizing_json, based_on_json, notes,
	       created_at, updated_at
	FROM trade_plans`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var plan Plan
	var entryLow, entryHigh, stopLoss, takeProfit sql.NullFloat64
	var sizing, basedOn, notes sql.NullString
	err := row.Scan(&plan.PlanID, &plan.Symbol, &plan.Exchange, &plan.PlanVersion,
		&plan.Status, &entryLow, &entryHigh, &stopLoss, &takeProfit,
		&sizing, &basedOn, &notes, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	plan.EntryLow = floatPtr(entryLow)
	plan.EntryHigh = floatPtr(entryHigh)
	plan.StopLoss = floatPtr(stopLoss)
	plan.TakeProfit = floatPtr(takeProfit)
	plan.Notes = notes.String
	if sizing.Valid && sizing.String != "" {
		plan.PositionSizing = &Sizing{}
		if err := json.Unmarshal([]byte(sizing.String), plan.PositionSizing); err != nil {
			return nil, fmt.Errorf("failed to decode position sizing: %w", err)
		}
	}
	if basedOn.Valid && basedOn.String != "" {
		plan.BasedOn = &BasedOn{}
		if err := json.Unmarshal([]byte(basedOn.String), plan.BasedOn); err != nil {
			return nil, fmt.Errorf("failed to decode based_on: %w", err)
		}
	}
	return &plan, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
