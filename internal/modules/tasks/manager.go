package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Task types the manager accepts.
const (
	TypeIngestInstruments      = "ingest_instruments"
	TypeIngestBarsDaily        = "ingest_bars_daily"
	TypeIngestFundamentals     = "ingest_fundamentals_daily"
	TypeIngestCapitalFlowDaily = "ingest_capital_flow_daily"
	TypeRadarRun               = "radar_run"
	TypeIngestNewsMock         = "ingest_news_mock"
)

// Runner executes one task type. The task ID is passed so runners can key
// persisted output by it. The returned value is stored as result_json.
type Runner func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error)

// Manager owns the worker pool. Task types must be registered before Run is
// called for them.
type Manager struct {
	repo    *Repository
	events  *events.Manager
	log     zerolog.Logger
	queue   chan string
	runners map[string]Runner
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager with the given pool size.
func NewManager(repo *Repository, eventBus *events.Manager, workers int, log zerolog.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:    repo,
		events:  eventBus,
		log:     log.With().Str("service", "tasks").Logger(),
		queue:   make(chan string, 256),
		runners: make(map[string]Runner),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Register binds a runner to a task type.
func (m *Manager) Register(taskType string, runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[taskType] = runner
}

// RecoverOrphans fails tasks left over from a previous process. Call once at
// startup, before submitting new work.
func (m *Manager) RecoverOrphans() {
	n, err := m.repo.FailOrphans()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to clean up orphaned tasks")
		return
	}
	if n > 0 {
		m.log.Warn().Int("count", n).Msg("Marked orphaned tasks as failed")
	}
}

// Run persists a new task and submits it to the pool. Unknown types are
// rejected before anything is stored.
func (m *Manager) Run(taskType string, payload json.RawMessage) (*Task, error) {
	m.mu.RLock()
	_, known := m.runners[taskType]
	m.mu.RUnlock()
	if !known {
		return nil, apierr.Validation("unknown task type %q", taskType)
	}

	task := &Task{
		TaskID:    uuid.New().String(),
		Type:      taskType,
		Status:    domain.TaskPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.repo.Insert(task); err != nil {
		return nil, err
	}

	select {
	case m.queue <- task.TaskID:
	case <-m.ctx.Done():
		return nil, apierr.Internal("task manager is shutting down")
	}

	m.publish(task.TaskID, taskType, domain.TaskPending)
	return task, nil
}

// Stop drains the workers. Running tasks finish, queued tasks stay PENDING
// and are failed as orphans on the next start.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case taskID := <-m.queue:
			m.execute(taskID)
		}
	}
}

func (m *Manager) execute(taskID string) {
	task, err := m.repo.Get(taskID)
	if err != nil || task == nil {
		m.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to load queued task")
		return
	}

	m.mu.RLock()
	runner := m.runners[task.Type]
	m.mu.RUnlock()

	if err := m.repo.MarkRunning(taskID); err != nil {
		m.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to mark task running")
		return
	}
	m.publish(taskID, task.Type, domain.TaskRunning)
	m.log.Info().Str("task_id", taskID).Str("type", task.Type).Msg("Task started")

	result, runErr := m.runSafely(runner, taskID, task.Payload)
	if runErr != nil {
		code := string(apierr.From(runErr).Code)
		if err := m.repo.MarkFailed(taskID, code, runErr.Error()); err != nil {
			m.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to mark task failed")
		}
		m.publish(taskID, task.Type, domain.TaskFailed)
		m.log.Warn().Err(runErr).Str("task_id", taskID).Str("type", task.Type).Msg("Task failed")
		return
	}

	if err := m.repo.MarkSucceeded(taskID, result); err != nil {
		m.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to mark task succeeded")
		return
	}
	m.publish(taskID, task.Type, domain.TaskSucceeded)
	m.log.Info().Str("task_id", taskID).Str("type", task.Type).Msg("Task succeeded")
}

func (m *Manager) runSafely(runner Runner, taskID string, payload json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return runner(m.ctx, taskID, payload)
}

func (m *Manager) publish(taskID, taskType string, status domain.TaskStatus) {
	m.events.Publish(events.TaskUpdated, map[string]interface{}{
		"task_id": taskID, "type": taskType, "status": status,
	})
}
