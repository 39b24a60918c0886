package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one entry of the append-only event log.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// EventStore appends events and reads them back in version order.
type EventStore interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	Events(ctx context.Context, aggregateID string) ([]Event, error)
	AllEvents(ctx context.Context) ([]Event, error)
}

// Publisher ships an appended event to its consumers.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// MemoryEventStore keeps events in process memory and publishes each one
// after it is stored.
type MemoryEventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event
	order     []string
	publisher Publisher
	now       func() time.Time
}

func NewMemoryEventStore(publisher Publisher) *MemoryEventStore {
	return &MemoryEventStore{
		events:    make(map[string][]Event),
		publisher: publisher,
		now:       time.Now,
	}
}

// Append stores the event and publishes it. A publish failure is returned
// together with the stored event.
func (es *MemoryEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	es.mu.Lock()
	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     es.now(),
		Version:       len(es.events[aggregateID]) + 1,
	}
	es.events[aggregateID] = append(es.events[aggregateID], event)
	es.order = append(es.order, aggregateID)
	es.mu.Unlock()

	if es.publisher != nil {
		if err := es.publisher.Publish(ctx, aggregateID, event); err != nil {
			return &event, err
		}
	}
	return &event, nil
}

func (es *MemoryEventStore) Events(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...), nil
}

// AllEvents returns every event in append order.
func (es *MemoryEventStore) AllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	all := make([]Event, 0, len(es.order))
	next := make(map[string]int, len(es.events))
	for _, id := range es.order {
		all = append(all, es.events[id][next[id]])
		next[id]++
	}
	return all, nil
}
