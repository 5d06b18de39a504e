package audit

import (
	"testing"

	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoresSnapshotsAndVersions(t *testing.T) {
	db := testutil.OpenDB(t)
	recorder := NewRecorder(db.Conn(), zerolog.Nop())

	err := recorder.Record(Entry{
		Action:         "score.calc",
		EntityType:     "score",
		EntityID:       "s1",
		Input:          map[string]interface{}{"symbol": "600000"},
		Output:         map[string]interface{}{"score_total": 40.0},
		RulesetVersion: "score/tech_v1",
		DataVersion:    "2024-03-04",
	})
	require.NoError(t, err)

	items, err := recorder.List("score", "s1", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	e := items[0]
	assert.NotEmpty(t, e.AuditID)
	assert.NotEmpty(t, e.TS)
	assert.Equal(t, "user", e.Actor)
	assert.Equal(t, "score.calc", e.Action)
	assert.Equal(t, "600000", e.Input["symbol"])
	assert.Equal(t, 40.0, e.Output["score_total"])
	assert.Equal(t, "score/tech_v1", e.RulesetVersion)
	assert.Equal(t, "2024-03-04", e.DataVersion)
}

func TestRecordKeepsExplicitActor(t *testing.T) {
	db := testutil.OpenDB(t)
	recorder := NewRecorder(db.Conn(), zerolog.Nop())

	require.NoError(t, recorder.Record(Entry{
		Actor: "scheduler", Action: "task.run", EntityType: "task", EntityID: "t1",
	}))

	items, err := recorder.List("task", "t1", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "scheduler", items[0].Actor)
}

func TestRecordSurfacesWriteFailure(t *testing.T) {
	db := testutil.OpenDB(t)
	conn := db.Conn()
	recorder := NewRecorder(conn, zerolog.Nop())
	require.NoError(t, conn.Close())

	err := recorder.Record(Entry{
		Action: "note.create", EntityType: "note", EntityID: "n1",
	})
	require.Error(t, err)
}
