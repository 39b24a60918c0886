package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/example/sportshop/internal/infrastructure/store"
)

// Projector folds ledger events into the revenue view. Applying the same
// event twice, or an older one after a newer one, leaves the view unchanged.
type Projector struct {
	view store.RevenueView
	log  *slog.Logger
}

func NewProjector(view store.RevenueView, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{view: view, log: logger.With("component", "projector")}
}

func (p *Projector) Apply(ctx context.Context, e store.Event) error {
	if e.AggregateType != AggregateType {
		return nil
	}
	switch e.EventType {
	case EventRevenueRecorded, EventRevenueReversed:
	default:
		p.log.Warn("unknown ledger event skipped", "event_type", e.EventType, "event_id", e.ID)
		return nil
	}

	var ev RevenueEvent
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return fmt.Errorf("decode %s %s: %w", e.EventType, e.ID, err)
	}

	applied, err := p.view.Apply(ctx, store.RevenueEntry{
		OrderID:     e.AggregateID,
		OrderNumber: ev.OrderNumber,
		Amount:      ev.Net,
		Version:     e.Version,
		UpdatedAt:   e.Timestamp,
	})
	if err != nil {
		return err
	}
	if applied {
		p.log.Debug("ledger view updated", "order_number", ev.OrderNumber, "net", ev.Net, "version", e.Version)
	}
	return nil
}

// HandleMessage is a kafka.MessageHandler for JSON encoded store events.
func (p *Projector) HandleMessage(ctx context.Context, key, value []byte) error {
	var e store.Event
	if err := json.Unmarshal(value, &e); err != nil {
		return fmt.Errorf("decode event message %s: %w", key, err)
	}
	return p.Apply(ctx, e)
}

// Publish lets the projector stand in for a broker when events are applied
// in process.
func (p *Projector) Publish(ctx context.Context, key string, event any) error {
	e, ok := event.(store.Event)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return p.Apply(ctx, e)
}

// Rebuild clears the view and replays the whole event log into it.
func (p *Projector) Rebuild(ctx context.Context, events store.EventStore) (int, error) {
	all, err := events.AllEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("load ledger events: %w", err)
	}
	if err := p.view.Reset(ctx); err != nil {
		return 0, err
	}
	for _, e := range all {
		if err := p.Apply(ctx, e); err != nil {
			return 0, err
		}
	}
	p.log.Info("ledger view rebuilt", "events", len(all))
	return len(all), nil
}

// Total is the running total of the view.
func (p *Projector) Total(ctx context.Context) (int64, error) {
	return p.view.Total(ctx)
}
