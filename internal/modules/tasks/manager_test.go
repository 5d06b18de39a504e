package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *Repository) {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	m := NewManager(repo, events.NewManager(), 2, zerolog.Nop())
	t.Cleanup(m.Stop)
	return m, repo
}

func waitForTerminal(t *testing.T, repo *Repository, taskID string) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := repo.Get(taskID)
		require.NoError(t, err)
		require.NotNil(t, task)
		if task.Status == domain.TaskSucceeded || task.Status == domain.TaskFailed {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task did not finish in time")
	return nil
}

func TestRunRejectsUnknownType(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Run("no_such_task", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)
}

func TestRunExecutesRegisteredRunner(t *testing.T) {
	m, repo := newTestManager(t)
	m.Register(TypeIngestNewsMock, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		var p map[string]int
		require.NoError(t, json.Unmarshal(payload, &p))
		return map[string]int{"doubled": p["value"] * 2}, nil
	})

	task, err := m.Run(TypeIngestNewsMock, json.RawMessage(`{"value": 21}`))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)

	done := waitForTerminal(t, repo, task.TaskID)
	assert.Equal(t, domain.TaskSucceeded, done.Status)
	assert.JSONEq(t, `{"doubled": 42}`, string(done.Result))
	assert.NotEmpty(t, done.StartedAt)
	assert.NotEmpty(t, done.FinishedAt)
}

func TestRunMarksFailureWithErrorCode(t *testing.T) {
	m, repo := newTestManager(t)
	m.Register(TypeRadarRun, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		return nil, apierr.DataNotReady("not enough bars")
	})

	task, err := m.Run(TypeRadarRun, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, repo, task.TaskID)
	assert.Equal(t, domain.TaskFailed, done.Status)
	assert.Equal(t, string(apierr.CodeDataNotReady), done.ErrorCode)
	assert.Contains(t, done.ErrorMessage, "not enough bars")
}

func TestRunRecoversFromPanic(t *testing.T) {
	m, repo := newTestManager(t)
	m.Register(TypeIngestInstruments, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		panic("boom")
	})

	task, err := m.Run(TypeIngestInstruments, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, repo, task.TaskID)
	assert.Equal(t, domain.TaskFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "boom")
}

func TestRecoverOrphansFailsLeftoverTasks(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	orphan := &Task{
		TaskID:    "orphan-1",
		Type:      TypeIngestBarsDaily,
		Status:    domain.TaskPending,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	require.NoError(t, repo.Insert(orphan))
	require.NoError(t, repo.MarkRunning(orphan.TaskID))

	m := NewManager(repo, events.NewManager(), 1, zerolog.Nop())
	t.Cleanup(m.Stop)
	m.RecoverOrphans()

	task, err := repo.Get(orphan.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "interrupted")
}

func TestListFiltersByStatus(t *testing.T) {
	m, repo := newTestManager(t)
	m.Register(TypeIngestNewsMock, func(ctx context.Context, taskID string, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("always fails")
	})

	task, err := m.Run(TypeIngestNewsMock, nil)
	require.NoError(t, err)
	waitForTerminal(t, repo, task.TaskID)

	failed, err := repo.List(10, string(domain.TaskFailed), "")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, task.TaskID, failed[0].TaskID)

	succeeded, err := repo.List(10, string(domain.TaskSucceeded), "")
	require.NoError(t, err)
	assert.Empty(t, succeeded)
}
