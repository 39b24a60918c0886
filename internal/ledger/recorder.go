package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/sportshop/internal/domain/order"
	"github.com/example/sportshop/internal/infrastructure/store"
)

// Recorder turns order status changes into ledger events.
type Recorder struct {
	events store.EventStore
	log    *slog.Logger
}

func NewRecorder(events store.EventStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{events: events, log: logger.With("component", "ledger")}
}

// StatusChanged records revenue when an order becomes delivered and reverses
// it when a delivered order is cancelled. Other transitions are ignored.
func (r *Recorder) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	var (
		eventType string
		amount    int64
		net       int64
	)
	switch {
	case o.Status == order.StatusDelivered:
		eventType, amount, net = EventRevenueRecorded, o.Pricing.FinalTotal, o.Pricing.FinalTotal
	case from == order.StatusDelivered && o.Status == order.StatusCancelled:
		eventType, amount, net = EventRevenueReversed, -o.Pricing.FinalTotal, 0
	default:
		return nil
	}

	last := o.History[len(o.History)-1]
	ev := RevenueEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Amount:      amount,
		Net:         net,
		Actor:       last.Actor,
		OccurredAt:  last.At,
	}
	stored, err := r.events.Append(ctx, o.ID, AggregateType, eventType, ev)
	if err != nil {
		if stored != nil {
			// the event is durable; the projector catches up on rebuild
			r.log.Warn("ledger event stored but not published",
				"order_number", o.Number, "event_type", eventType, "error", err)
			return nil
		}
		return fmt.Errorf("append %s for %s: %w", eventType, o.Number, err)
	}
	r.log.Info("ledger event recorded",
		"order_number", o.Number, "event_type", eventType, "amount", amount, "version", stored.Version)
	return nil
}
