package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/sportshop/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is an in-memory store.EventStore that records calls.
type MockEventStore struct {
	mu     sync.RWMutex
	events map[string][]store.Event
	order  []store.Event

	AppendCalls []AppendCall
	AppendErr   error
	// EventsErr is returned by Events and AllEvents when set.
	EventsErr error
}

type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		AppendCalls: make([]AppendCall, 0),
	}
}

func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       len(m.events[aggregateID]) + 1,
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	m.order = append(m.order, event)
	return &event, nil
}

func (m *MockEventStore) Events(ctx context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.EventsErr != nil {
		return nil, m.EventsErr
	}
	return append([]store.Event(nil), m.events[aggregateID]...), nil
}

func (m *MockEventStore) AllEvents(ctx context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.EventsErr != nil {
		return nil, m.EventsErr
	}
	return append([]store.Event(nil), m.order...), nil
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.order = nil
	m.AppendCalls = make([]AppendCall, 0)
	m.AppendErr = nil
	m.EventsErr = nil
}
