package order

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (h *recordingHook) StatusChanged(ctx context.Context, o *Order, from Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, fmt.Sprintf("%s:%s->%s", o.Number, from, o.Status))
	return h.err
}

type testEnv struct {
	service *Service
	repo    *MemoryRepository
	hook    *recordingHook
	now     time.Time
}

func newTestOrderService(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo: NewMemoryRepository(),
		hook: &recordingHook{},
		now:  testNow,
	}
	env.service = NewService(env.repo, env.hook, nil)
	env.service.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) create(t *testing.T, number string, mutate func(*Draft)) *Order {
	t.Helper()
	d := testDraft()
	d.Number = number
	if mutate != nil {
		mutate(&d)
	}
	o, err := e.service.Create(context.Background(), d, StatusConfirmed)
	require.NoError(t, err)
	return o
}

func (e *testEnv) deliver(t *testing.T, id string) *Order {
	t.Helper()
	ctx := context.Background()
	_, err := e.service.UpdateStatus(ctx, id, StatusShipping, "admin-1", "")
	require.NoError(t, err)
	o, err := e.service.UpdateStatus(ctx, id, StatusDelivered, "admin-1", "")
	require.NoError(t, err)
	return o
}

// ============================================
// Create Tests
// ============================================

func TestService_Create_DuplicateNumber(t *testing.T) {
	env := newTestOrderService(t)
	env.create(t, "SS260601-000001", nil)

	_, err := env.service.Create(context.Background(), testDraft(), StatusConfirmed)
	require.NoError(t, err)
	d := testDraft()
	d.Number = "SS260601-000001"
	_, err = env.service.Create(context.Background(), d, StatusConfirmed)
	assert.ErrorIs(t, err, ErrDuplicateOrderNumber)
}

// ============================================
// UpdateStatus Tests
// ============================================

func TestService_UpdateStatus_PersistsAndNotifies(t *testing.T) {
	env := newTestOrderService(t)
	o := env.create(t, "SS260601-000001", nil)

	updated, err := env.service.UpdateStatus(context.Background(), o.ID, StatusShipping, "admin-1", "  handed to courier ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipping, updated.Status)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, "handed to courier", updated.History[len(updated.History)-1].Note)

	stored, err := env.repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipping, stored.Status)
	assert.Equal(t, []string{"SS260601-000001:confirmed->shipping"}, env.hook.calls)
}

func TestService_UpdateStatus_InvalidTransitionNotPersisted(t *testing.T) {
	env := newTestOrderService(t)
	o := env.create(t, "SS260601-000001", nil)

	_, err := env.service.UpdateStatus(context.Background(), o.ID, StatusDelivered, "admin-1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, _ := env.repo.Get(context.Background(), o.ID)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Empty(t, env.hook.calls)
}

func TestService_UpdateStatus_NotFound(t *testing.T) {
	env := newTestOrderService(t)
	_, err := env.service.UpdateStatus(context.Background(), "missing", StatusShipping, "admin-1", "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_UpdateStatus_HookFailureSwallowed(t *testing.T) {
	env := newTestOrderService(t)
	env.hook.err = errors.New("ledger down")
	o := env.create(t, "SS260601-000001", nil)

	updated, err := env.service.UpdateStatus(context.Background(), o.ID, StatusCancelled, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
}

func TestService_UpdateStatus_StaleVersion(t *testing.T) {
	env := newTestOrderService(t)
	o := env.create(t, "SS260601-000001", nil)

	stale, err := env.repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	_, err = env.service.UpdateStatus(context.Background(), o.ID, StatusShipping, "admin-1", "")
	require.NoError(t, err)

	require.NoError(t, stale.Transition(StatusCancelled, "admin-2", "", testNow))
	assert.ErrorIs(t, env.repo.Save(context.Background(), stale), ErrConcurrentUpdate)
}

func TestService_ReversalDropsLiveRevenueByFinalTotal(t *testing.T) {
	env := newTestOrderService(t)
	ctx := context.Background()
	a := env.create(t, "SS260601-000001", nil)
	b := env.create(t, "SS260601-000002", func(d *Draft) {
		d.Pricing = Pricing{ItemsTotal: 600000, FinalTotal: 600000}
	})
	env.deliver(t, a.ID)
	env.deliver(t, b.ID)

	before, err := env.repo.RevenueSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1030000), before.Revenue)
	assert.Equal(t, int64(2), before.Orders)

	_, err = env.service.UpdateStatus(ctx, b.ID, StatusCancelled, "admin-1", "customer returned goods")
	require.NoError(t, err)

	after, err := env.repo.RevenueSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, before.Revenue-600000, after.Revenue)
	assert.Equal(t, int64(1), after.Orders)
}

// ============================================
// BulkUpdate Tests
// ============================================

func TestService_BulkUpdate_IndependentOutcomes(t *testing.T) {
	env := newTestOrderService(t)
	a := env.create(t, "SS260601-000001", nil)
	b := env.create(t, "SS260601-000002", nil)
	c := env.create(t, "SS260601-000003", nil)
	_, err := env.service.UpdateStatus(context.Background(), c.ID, StatusCancelled, "admin-1", "")
	require.NoError(t, err)

	res := env.service.BulkUpdate(context.Background(), []string{a.ID, b.ID, c.ID, a.ID, "missing", " "}, StatusShipping, "admin-1", "")

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	reasons := map[string]string{}
	for _, f := range res.Failures {
		reasons[f.OrderID] = f.Reason
	}
	assert.Contains(t, reasons[c.ID], "cannot transition from cancelled to shipping")
	assert.Contains(t, reasons["missing"], "order not found")
}

func TestService_BulkUpdate_AllFail(t *testing.T) {
	env := newTestOrderService(t)
	res := env.service.BulkUpdate(context.Background(), []string{"x", "y"}, StatusShipping, "admin-1", "")
	assert.Zero(t, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
}

// ============================================
// Customer Tests
// ============================================

func TestService_GetForUser(t *testing.T) {
	env := newTestOrderService(t)
	o := env.create(t, "SS260601-000001", func(d *Draft) { d.UserID = "user-1" })

	got, err := env.service.GetForUser(context.Background(), "ss260601-000001", "user-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = env.service.GetForUser(context.Background(), o.Number, "user-2")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = env.service.GetForUser(context.Background(), o.Number, "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_CancelByCustomer(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(env *testEnv, id string)
		wantErr error
	}{
		{name: "confirmed", prepare: func(*testEnv, string) {}},
		{
			name: "shipping",
			prepare: func(env *testEnv, id string) {
				_, _ = env.service.UpdateStatus(context.Background(), id, StatusShipping, "admin-1", "")
			},
			wantErr: ErrNotCancellable,
		},
		{
			name: "already cancelled",
			prepare: func(env *testEnv, id string) {
				_, _ = env.service.UpdateStatus(context.Background(), id, StatusCancelled, "admin-1", "")
			},
			wantErr: ErrNotCancellable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestOrderService(t)
			o := env.create(t, "SS260601-000001", func(d *Draft) { d.UserID = "user-1" })
			tt.prepare(env, o.ID)

			got, err := env.service.CancelByCustomer(context.Background(), o.Number, "user-1", "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, got.Status)
			assert.Equal(t, "user-1", got.CancelledBy)
			assert.Equal(t, "Cancelled by customer", got.CancelReason)
		})
	}
}

// ============================================
// List / Export Tests
// ============================================

func TestService_List_FiltersAndPages(t *testing.T) {
	env := newTestOrderService(t)
	for i := 1; i <= 5; i++ {
		env.now = testNow.Add(time.Duration(i) * time.Minute)
		env.create(t, fmt.Sprintf("SS260601-00000%d", i), func(d *Draft) {
			if i%2 == 0 {
				d.PaymentMethod = PaymentBankTransfer
				d.Customer.Name = "Tran Thi B"
			}
		})
	}

	page, err := env.service.List(context.Background(), Filter{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "SS260601-000005", page.Items[0].Number)

	page, err = env.service.List(context.Background(), Filter{PaymentMethod: PaymentBankTransfer})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = env.service.List(context.Background(), Filter{Query: "tran thi"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = env.service.List(context.Background(), Filter{Query: "000003"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestService_Export_WritesCSV(t *testing.T) {
	env := newTestOrderService(t)
	env.create(t, "SS260601-000001", nil)
	env.create(t, "SS260601-000002", nil)

	var buf bytes.Buffer
	n, err := env.service.Export(context.Background(), Filter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "order_number", rows[0][0])
	assert.Equal(t, "Pegasus 41 (black/42) x2", rows[1][9])
	assert.Equal(t, "430000", rows[1][10])
}

func TestMemoryRepository_DailyRevenue(t *testing.T) {
	env := newTestOrderService(t)
	a := env.create(t, "SS260601-000001", nil)
	b := env.create(t, "SS260601-000002", nil)
	env.deliver(t, a.ID)
	env.now = testNow.Add(24 * time.Hour)
	env.deliver(t, b.ID)

	days, err := env.repo.DailyRevenue(context.Background(), time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), days[0].Day)
	assert.Equal(t, int64(430000), days[1].Revenue)

	counts, err := env.repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[StatusDelivered])
}
