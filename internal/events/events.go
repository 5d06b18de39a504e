// Package events provides an in-process event bus with a websocket fan-out.
// Task status transitions and new alerts are published here and streamed to
// connected clients.
package events

import (
	"sync"
	"time"
)

// EventType names a category of event.
type EventType string

const (
	TaskUpdated  EventType = "task.updated"
	AlertRaised  EventType = "alert.raised"
	SimConfirmed EventType = "sim.confirmed"
)

// Event is a single published event.
type Event struct {
	Type EventType   `json:"type"`
	TS   time.Time   `json:"ts"`
	Data interface{} `json:"data"`
}

// Manager fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Manager struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewManager creates an event manager.
func NewManager() *Manager {
	return &Manager{subs: make(map[int]chan Event)}
}

// Publish delivers an event to all current subscribers without blocking.
func (m *Manager) Publish(eventType EventType, data interface{}) {
	event := Event{Type: eventType, TS: time.Now().UTC(), Data: data}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	ch := make(chan Event, 64)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
