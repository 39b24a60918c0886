package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/sportshop/internal/domain/order"
	"github.com/example/sportshop/internal/infrastructure/store"
	"github.com/example/sportshop/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newOrder(t *testing.T, number string, total int64) *order.Order {
	t.Helper()
	o, err := order.Place(order.Draft{
		Number:        number,
		SessionID:     "sid-1",
		PaymentMethod: order.PaymentCOD,
		Items:         []order.Item{{ProductID: "p1", ProductName: "Tee", Quantity: 1, Price: total, Subtotal: total}},
		Pricing:       order.Pricing{ItemsTotal: total, FinalTotal: total},
	}, order.StatusConfirmed, testNow)
	require.NoError(t, err)
	return o
}

func move(t *testing.T, o *order.Order, to order.Status) order.Status {
	t.Helper()
	from := o.Status
	require.NoError(t, o.Transition(to, "admin-1", "", testNow))
	return from
}

// ============================================
// Recorder Tests
// ============================================

func TestRecorder_StatusChanged(t *testing.T) {
	es := mocks.NewMockEventStore()
	rec := NewRecorder(es, nil)
	ctx := context.Background()
	o := newOrder(t, "SS260601-000001", 430000)

	from := move(t, o, order.StatusShipping)
	require.NoError(t, rec.StatusChanged(ctx, o, from))
	assert.Empty(t, es.AppendCalls)

	from = move(t, o, order.StatusDelivered)
	require.NoError(t, rec.StatusChanged(ctx, o, from))
	require.Len(t, es.AppendCalls, 1)
	call := es.AppendCalls[0]
	assert.Equal(t, o.ID, call.AggregateID)
	assert.Equal(t, AggregateType, call.AggregateType)
	assert.Equal(t, EventRevenueRecorded, call.EventType)
	ev := call.Data.(RevenueEvent)
	assert.Equal(t, int64(430000), ev.Amount)
	assert.Equal(t, int64(430000), ev.Net)
	assert.Equal(t, "admin-1", ev.Actor)

	from = move(t, o, order.StatusCancelled)
	require.NoError(t, rec.StatusChanged(ctx, o, from))
	require.Len(t, es.AppendCalls, 2)
	assert.Equal(t, EventRevenueReversed, es.AppendCalls[1].EventType)
	ev = es.AppendCalls[1].Data.(RevenueEvent)
	assert.Equal(t, int64(-430000), ev.Amount)
	assert.Zero(t, ev.Net)
}

func TestRecorder_CancelBeforeDeliveryRecordsNothing(t *testing.T) {
	es := mocks.NewMockEventStore()
	rec := NewRecorder(es, nil)
	o := newOrder(t, "SS260601-000001", 100000)

	from := move(t, o, order.StatusCancelled)
	require.NoError(t, rec.StatusChanged(context.Background(), o, from))
	assert.Empty(t, es.AppendCalls)
}

func TestRecorder_AppendFailure(t *testing.T) {
	es := mocks.NewMockEventStore()
	es.AppendErr = errors.New("connection refused")
	rec := NewRecorder(es, nil)
	o := newOrder(t, "SS260601-000001", 100000)
	move(t, o, order.StatusShipping)

	from := move(t, o, order.StatusDelivered)
	err := rec.StatusChanged(context.Background(), o, from)
	assert.ErrorContains(t, err, "connection refused")
}

// ============================================
// Projector Tests
// ============================================

func TestProjector_ReplayIsIdempotent(t *testing.T) {
	es := mocks.NewMockEventStore()
	rec := NewRecorder(es, nil)
	view := store.NewMemoryRevenueView()
	proj := NewProjector(view, nil)
	ctx := context.Background()

	a := newOrder(t, "SS260601-000001", 430000)
	b := newOrder(t, "SS260601-000002", 600000)
	for _, o := range []*order.Order{a, b} {
		move(t, o, order.StatusShipping)
		require.NoError(t, rec.StatusChanged(ctx, o, move(t, o, order.StatusDelivered)))
	}
	require.NoError(t, rec.StatusChanged(ctx, b, move(t, b, order.StatusCancelled)))

	all, err := es.AllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	for range 2 {
		for _, e := range all {
			require.NoError(t, proj.Apply(ctx, e))
		}
	}
	total, err := proj.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(430000), total)

	// out of order delivery of the older event keeps the reversal
	require.NoError(t, proj.Apply(ctx, all[1]))
	total, _ = proj.Total(ctx)
	assert.Equal(t, int64(430000), total)
}

func TestProjector_Rebuild(t *testing.T) {
	es := mocks.NewMockEventStore()
	rec := NewRecorder(es, nil)
	view := store.NewMemoryRevenueView()
	proj := NewProjector(view, nil)
	ctx := context.Background()

	o := newOrder(t, "SS260601-000001", 250000)
	move(t, o, order.StatusShipping)
	require.NoError(t, rec.StatusChanged(ctx, o, move(t, o, order.StatusDelivered)))

	_, _ = view.Apply(ctx, store.RevenueEntry{OrderID: "stray", Amount: 999, Version: 1})

	n, err := proj.Rebuild(ctx, es)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	total, _ := proj.Total(ctx)
	assert.Equal(t, int64(250000), total)

	es.EventsErr = errors.New("db down")
	_, err = proj.Rebuild(ctx, es)
	assert.Error(t, err)
}

func TestProjector_HandleMessage(t *testing.T) {
	proj := NewProjector(store.NewMemoryRevenueView(), nil)
	ctx := context.Background()

	data, err := json.Marshal(RevenueEvent{OrderID: "o1", OrderNumber: "SS1", Amount: 500, Net: 500})
	require.NoError(t, err)
	msg, err := json.Marshal(store.Event{
		ID: "e1", AggregateID: "o1", AggregateType: AggregateType,
		EventType: EventRevenueRecorded, Data: data, Timestamp: testNow, Version: 1,
	})
	require.NoError(t, err)

	require.NoError(t, proj.HandleMessage(ctx, []byte("o1"), msg))
	total, _ := proj.Total(ctx)
	assert.Equal(t, int64(500), total)

	assert.Error(t, proj.HandleMessage(ctx, []byte("o1"), []byte("not json")))
}

func TestProjector_ActsAsPublisher(t *testing.T) {
	view := store.NewMemoryRevenueView()
	proj := NewProjector(view, nil)
	es := store.NewMemoryEventStore(proj)
	rec := NewRecorder(es, nil)
	ctx := context.Background()

	o := newOrder(t, "SS260601-000001", 300000)
	move(t, o, order.StatusShipping)
	require.NoError(t, rec.StatusChanged(ctx, o, move(t, o, order.StatusDelivered)))

	total, _ := proj.Total(ctx)
	assert.Equal(t, int64(300000), total)

	assert.Error(t, proj.Publish(ctx, "x", "not an event"))
}
