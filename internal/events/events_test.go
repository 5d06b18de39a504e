package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	m := NewManager()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Publish(TaskUpdated, map[string]interface{}{"task_id": "t1"})

	select {
	case event := <-ch:
		assert.Equal(t, TaskUpdated, event.Type)
		assert.False(t, event.TS.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	m := NewManager()
	_, cancel := m.Subscribe()
	require.Equal(t, 1, m.SubscriberCount())

	cancel()
	assert.Equal(t, 0, m.SubscriberCount())

	// Second cancel is a no-op.
	cancel()
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	m := NewManager()
	ch, cancel := m.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			m.Publish(AlertRaised, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
	assert.NotEmpty(t, ch)
}
