package cart

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/example/sportshop/internal/apperr"
	"github.com/example/sportshop/internal/domain/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	service *Service
	repo    *MemoryRepository
	catalog *product.MemoryRepository
	now     time.Time
}

func newTestCartService(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:    NewMemoryRepository(),
		catalog: product.NewMemoryRepository(),
		now:     time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	env.service = NewService(env.repo, env.catalog, Options{Pricing: DefaultPricing()})
	env.service.now = func() time.Time { return env.now }

	for _, p := range []*product.Product{
		{ID: "shoe-1", Slug: "shoe-1", Name: "Pegasus 41", Price: 200000, Colors: []string{"black", "white"}, Sizes: []string{"41", "42"}, InStock: true, Stock: 10},
		{ID: "tee-1", Slug: "tee-1", Name: "Dri-FIT Tee", Price: 150000, Colors: []string{"red"}, Sizes: []string{"M", "L"}, InStock: true, Stock: 30},
		{ID: "cap-1", Slug: "cap-1", Name: "Club Cap", Price: 90000, InStock: true, Stock: 4},
		{ID: "sold-out", Slug: "sold-out", Name: "Limited Spike", Price: 900000, Colors: []string{"black"}, Sizes: []string{"42"}, InStock: false, Stock: 0},
	} {
		require.NoError(t, env.catalog.Insert(context.Background(), p))
	}
	return env
}

func guest(sessionID string) Owner { return Owner{SessionID: sessionID} }

func assertTotalsConsistent(t *testing.T, c *Cart, p Pricing) {
	t.Helper()
	var items int
	var sum int64
	for _, it := range c.Items {
		assert.Equal(t, int64(it.Quantity)*it.Price, it.Subtotal)
		items += it.Quantity
		sum += it.Subtotal
	}
	assert.Equal(t, items, c.TotalItems)
	assert.Equal(t, sum, c.TotalPrice)
	assert.Equal(t, c.TotalPrice+c.ShippingFee, c.FinalTotal)
	if c.IsEmpty() {
		assert.Zero(t, c.ShippingFee)
	} else {
		assert.Equal(t, c.TotalPrice >= p.FreeShippingThreshold, c.ShippingFee == 0)
	}
}

// ============================================
// Resolve Tests
// ============================================

func TestService_Resolve_CreatesLazily(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	first := env.service.Resolve(ctx, guest("sid-1"))
	loaded, ok := first.(Loaded)
	require.True(t, ok)
	assert.Equal(t, "sid-1", loaded.Cart.SessionID)
	assert.Equal(t, StatusActive, loaded.Cart.Status)
	assert.Equal(t, 1, env.repo.Len())

	second := env.service.Resolve(ctx, guest("sid-1"))
	require.IsType(t, Loaded{}, second)
	assert.Equal(t, loaded.Cart.ID, second.(Loaded).Cart.ID)
	assert.True(t, second.View().Persistent)
}

type slowRepository struct {
	*MemoryRepository
}

func (r slowRepository) FindGuestBySession(ctx context.Context, sessionID string) (*Cart, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestService_Resolve_FallbackOnTimeout(t *testing.T) {
	env := newTestCartService(t)
	service := NewService(slowRepository{env.repo}, env.catalog, Options{LookupTimeout: 20 * time.Millisecond})

	res := service.Resolve(context.Background(), guest("sid-slow"))

	fb, ok := res.(Fallback)
	require.True(t, ok)
	assert.ErrorIs(t, fb.Err, context.DeadlineExceeded)
	view := res.View()
	assert.False(t, view.Persistent)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.FinalTotal)
}

func TestService_Mutation_OnFallbackIsNotSaved(t *testing.T) {
	env := newTestCartService(t)
	service := NewService(slowRepository{env.repo}, env.catalog, Options{Pricing: DefaultPricing(), LookupTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	c, err := service.AddItem(ctx, guest("sid-slow"), "shoe-1", 2, "black", "42")

	require.NoError(t, err)
	assert.False(t, c.Persistent())
	require.Len(t, c.Items, 1)
	assertTotalsConsistent(t, c, DefaultPricing())

	res := ResultOf(c)
	require.IsType(t, Fallback{}, res)
	view := res.View()
	assert.False(t, view.Persistent)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.TotalItems)
	assert.Zero(t, env.repo.Len())
}

func TestService_Mutation_OnFallbackStillValidates(t *testing.T) {
	env := newTestCartService(t)
	service := NewService(slowRepository{env.repo}, env.catalog, Options{LookupTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := service.AddItem(ctx, guest("sid-slow"), "missing", 1, "", "")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = service.AddItem(ctx, guest("sid-slow"), "shoe-1", 11, "black", "42")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = service.UpdateItemQuantity(ctx, guest("sid-slow"), "item-1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestService_Mutation_OnFallbackReturnsEmptyCart(t *testing.T) {
	env := newTestCartService(t)
	service := NewService(slowRepository{env.repo}, env.catalog, Options{LookupTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	tests := []struct {
		name string
		op   func() (*Cart, error)
	}{
		{"update", func() (*Cart, error) { return service.UpdateItemQuantity(ctx, guest("sid-slow"), "item-1", 3) }},
		{"remove", func() (*Cart, error) { return service.RemoveItem(ctx, guest("sid-slow"), "item-1") }},
		{"clear", func() (*Cart, error) { return service.Clear(ctx, guest("sid-slow")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.op()
			require.NoError(t, err)
			assert.False(t, c.Persistent())
			assert.True(t, c.IsEmpty())
			assert.False(t, ResultOf(c).View().Persistent)
		})
	}
	assert.Zero(t, env.repo.Len())
}

func TestService_MarkCheckedOut_RejectsFallbackCart(t *testing.T) {
	env := newTestCartService(t)
	service := NewService(slowRepository{env.repo}, env.catalog, Options{LookupTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	c, err := service.AddItem(ctx, guest("sid-slow"), "shoe-1", 1, "black", "42")
	require.NoError(t, err)

	err = service.MarkCheckedOut(ctx, c, "ORD-1")

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, apperr.KindTransientStore, apperr.KindOf(err))
	assert.Equal(t, StatusActive, c.Status)
}

// ============================================
// AddItem Tests
// ============================================

func TestService_AddItem_QuantityBounds(t *testing.T) {
	tests := []struct {
		quantity int
		wantErr  bool
	}{
		{-1, true},
		{0, true},
		{1, false},
		{5, false},
		{10, false},
		{11, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("quantity %d", tt.quantity), func(t *testing.T) {
			env := newTestCartService(t)

			c, err := env.service.AddItem(context.Background(), guest("sid"), "shoe-1", tt.quantity, "black", "42")

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuantity)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, c.Items, 1)
			assert.Equal(t, tt.quantity, c.Items[0].Quantity)
		})
	}
}

func TestService_AddItem_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		color     string
		size      string
		want      error
	}{
		{"unknown product", "nope", "black", "42", ErrProductNotFound},
		{"out of stock", "sold-out", "black", "42", ErrOutOfStock},
		{"unknown color", "shoe-1", "green", "42", ErrInvalidVariant},
		{"unknown size", "shoe-1", "black", "45", ErrInvalidVariant},
		{"size required", "tee-1", "red", "", ErrInvalidVariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestCartService(t)

			_, err := env.service.AddItem(context.Background(), guest("sid"), tt.productID, 1, tt.color, tt.size)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestService_AddItem_ProductWithoutVariants(t *testing.T) {
	env := newTestCartService(t)

	c, err := env.service.AddItem(context.Background(), guest("sid"), "cap-1", 2, "", "")

	require.NoError(t, err)
	assert.Equal(t, int64(180000), c.TotalPrice)
}

func TestService_AddItem_SameVariantKeepsFirstPrice(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	_, err := env.service.AddItem(ctx, guest("sid"), "shoe-1", 2, "Black", "42")
	require.NoError(t, err)

	p, err := env.catalog.Get(ctx, "shoe-1")
	require.NoError(t, err)
	p.Price = 260000
	require.NoError(t, env.catalog.Update(ctx, p))

	c, err := env.service.AddItem(ctx, guest("sid"), "shoe-1", 3, "black", "42")

	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, int64(200000), c.Items[0].Price)
	assert.Equal(t, int64(5*200000), c.Items[0].Subtotal)
	assertTotalsConsistent(t, c, env.service.Pricing())
}

func TestService_AddItem_MergeBeyondMaxRejected(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	_, err := env.service.AddItem(ctx, guest("sid"), "shoe-1", 7, "black", "42")
	require.NoError(t, err)

	_, err = env.service.AddItem(ctx, guest("sid"), "shoe-1", 4, "black", "42")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	c := env.service.Resolve(ctx, guest("sid")).(Loaded).Cart
	assert.Equal(t, 7, c.Items[0].Quantity)
}

func TestService_AddItem_DifferentVariantsAreSeparateLines(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	_, err := env.service.AddItem(ctx, guest("sid"), "shoe-1", 1, "black", "42")
	require.NoError(t, err)
	c, err := env.service.AddItem(ctx, guest("sid"), "shoe-1", 1, "white", "42")
	require.NoError(t, err)

	assert.Len(t, c.Items, 2)
	assert.NotEqual(t, c.Items[0].ID, c.Items[1].ID)
}

// ============================================
// Totals Tests
// ============================================

func TestComputeTotals_ShippingThreshold(t *testing.T) {
	p := DefaultPricing()

	tests := []struct {
		name     string
		items    []Item
		wantShip int64
	}{
		{"empty cart", nil, 0},
		{"below threshold", []Item{{Quantity: 2, Subtotal: 499999}}, 30000},
		{"at threshold", []Item{{Quantity: 1, Subtotal: 500000}}, 0},
		{"above threshold", []Item{{Quantity: 3, Subtotal: 300000}, {Quantity: 1, Subtotal: 300000}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := ComputeTotals(tt.items, p)
			assert.Equal(t, tt.wantShip, totals.ShippingFee)
			assert.Equal(t, totals.TotalPrice+totals.ShippingFee, totals.FinalTotal)
		})
	}
}

func TestService_TotalsInvariantUnderRandomOperations(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()
	owner := guest("sid-random")
	rng := rand.New(rand.NewPCG(42, 7))

	variants := []struct{ product, color, size string }{
		{"shoe-1", "black", "41"},
		{"shoe-1", "white", "42"},
		{"tee-1", "red", "M"},
		{"cap-1", "", ""},
	}

	for step := 0; step < 200; step++ {
		c := env.service.Resolve(ctx, owner).(Loaded).Cart
		switch op := rng.IntN(4); {
		case op <= 1 || c.IsEmpty():
			v := variants[rng.IntN(len(variants))]
			_, _ = env.service.AddItem(ctx, owner, v.product, 1+rng.IntN(3), v.color, v.size)
		case op == 2:
			item := c.Items[rng.IntN(len(c.Items))]
			_, err := env.service.UpdateItemQuantity(ctx, owner, item.ID, 1+rng.IntN(10))
			require.NoError(t, err)
		default:
			item := c.Items[rng.IntN(len(c.Items))]
			_, err := env.service.RemoveItem(ctx, owner, item.ID)
			require.NoError(t, err)
		}

		after := env.service.Resolve(ctx, owner).(Loaded).Cart
		assertTotalsConsistent(t, after, env.service.Pricing())
	}
}

// ============================================
// Update / Remove / Clear Tests
// ============================================

func TestService_UpdateItemQuantity(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	c, err := env.service.AddItem(ctx, guest("sid"), "tee-1", 1, "red", "M")
	require.NoError(t, err)
	itemID := c.Items[0].ID

	c, err = env.service.UpdateItemQuantity(ctx, guest("sid"), itemID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, int64(600000), c.TotalPrice)
	assert.Zero(t, c.ShippingFee)

	_, err = env.service.UpdateItemQuantity(ctx, guest("sid"), itemID, 11)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = env.service.UpdateItemQuantity(ctx, guest("sid"), "missing-line", 2)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_RemoveAndClear(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()
	owner := guest("sid")

	_, err := env.service.AddItem(ctx, owner, "tee-1", 1, "red", "M")
	require.NoError(t, err)
	c, err := env.service.AddItem(ctx, owner, "shoe-1", 1, "black", "41")
	require.NoError(t, err)

	c, err = env.service.RemoveItem(ctx, owner, c.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "shoe-1", c.Items[0].ProductID)

	_, err = env.service.RemoveItem(ctx, owner, "missing-line")
	assert.ErrorIs(t, err, ErrItemNotFound)

	c, err = env.service.Clear(ctx, owner)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Zero(t, c.FinalTotal)
}

// ============================================
// Checkout marking Tests
// ============================================

func TestService_MarkCheckedOut(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()
	owner := guest("sid")

	c, err := env.service.AddItem(ctx, owner, "tee-1", 2, "red", "L")
	require.NoError(t, err)

	require.NoError(t, env.service.MarkCheckedOut(ctx, c, "SS260601-ABC123"))
	assert.Equal(t, StatusCheckedOut, c.Status)

	stored, err := env.repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedOut, stored.Status)
	assert.Equal(t, "SS260601-ABC123", stored.OrderNumber)

	_, err = stored.Add(&product.Product{ID: "tee-1", InStock: true, Stock: 1, Colors: []string{"red"}, Sizes: []string{"L"}}, 1, "red", "L")
	assert.ErrorIs(t, err, ErrCartCheckedOut)

	next := env.service.Resolve(ctx, owner).(Loaded).Cart
	assert.NotEqual(t, c.ID, next.ID)
	assert.True(t, next.IsEmpty())
}

func TestService_MarkCheckedOut_StaleVersion(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()
	owner := guest("sid")

	stale, err := env.service.AddItem(ctx, owner, "tee-1", 1, "red", "M")
	require.NoError(t, err)
	_, err = env.service.AddItem(ctx, owner, "tee-1", 1, "red", "M")
	require.NoError(t, err)

	err = env.service.MarkCheckedOut(ctx, stale, "SS260601-000001")

	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, StatusActive, stale.Status)
}

// ============================================
// Guest Merge Tests
// ============================================

func TestService_MergeGuestCart_NoGuestCart(t *testing.T) {
	env := newTestCartService(t)

	err := env.service.MergeGuestCart(context.Background(), "sid-none", "user-1")

	require.NoError(t, err)
	assert.Zero(t, env.repo.Len())
}

func TestService_MergeGuestCart_ReownsWhenUserHasNoCart(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	_, err := env.service.AddItem(ctx, guest("sid"), "shoe-1", 2, "black", "42")
	require.NoError(t, err)
	guestCart, err := env.service.AddItem(ctx, guest("sid"), "tee-1", 1, "red", "M")
	require.NoError(t, err)

	require.NoError(t, env.service.MergeGuestCart(ctx, "sid", "user-1"))

	userCart, err := env.repo.FindActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, guestCart.ID, userCart.ID)
	assert.Equal(t, guestCart.Items, userCart.Items)
	assert.Equal(t, guestCart.FinalTotal, userCart.FinalTotal)
	assert.Equal(t, 1, env.repo.Len())

	_, err = env.repo.FindGuestBySession(ctx, "sid")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestService_MergeGuestCart_OldPriceWins(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()
	userOwner := Owner{SessionID: "sid-old", UserID: "user-1"}

	_, err := env.service.AddItem(ctx, userOwner, "shoe-1", 1, "black", "42")
	require.NoError(t, err)

	p, err := env.catalog.Get(ctx, "shoe-1")
	require.NoError(t, err)
	p.Price = 250000
	require.NoError(t, env.catalog.Update(ctx, p))

	_, err = env.service.AddItem(ctx, guest("sid-new"), "shoe-1", 2, "black", "42")
	require.NoError(t, err)
	guestCart, err := env.service.AddItem(ctx, guest("sid-new"), "tee-1", 1, "red", "M")
	require.NoError(t, err)

	require.NoError(t, env.service.MergeGuestCart(ctx, "sid-new", "user-1"))

	merged, err := env.repo.FindActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, merged.Items, 2)
	assert.Equal(t, 3, merged.Items[0].Quantity)
	assert.Equal(t, int64(200000), merged.Items[0].Price)
	assert.Equal(t, int64(3*200000), merged.Items[0].Subtotal)
	assert.Equal(t, guestCart.Items[1], merged.Items[1])
	assertTotalsConsistent(t, merged, env.service.Pricing())

	_, err = env.repo.Get(ctx, guestCart.ID)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestCart_Absorb_CapsQuantity(t *testing.T) {
	user := &Cart{Items: []Item{{ID: "a", ProductID: "p", Color: "black", Size: "42", Quantity: 8, Price: 100}}}
	g := &Cart{Items: []Item{{ID: "b", ProductID: "p", Color: "black", Size: "42", Quantity: 5, Price: 90}}}

	user.Absorb(g)

	require.Len(t, user.Items, 1)
	assert.Equal(t, MaxQuantity, user.Items[0].Quantity)
	assert.Equal(t, int64(MaxQuantity*100), user.Items[0].Subtotal)
}

// ============================================
// Abandoned cart Tests
// ============================================

func TestService_PurgeAbandoned(t *testing.T) {
	env := newTestCartService(t)
	ctx := context.Background()

	_, err := env.service.AddItem(ctx, guest("old"), "tee-1", 1, "red", "M")
	require.NoError(t, err)
	checkedOut, err := env.service.AddItem(ctx, guest("done"), "tee-1", 1, "red", "M")
	require.NoError(t, err)
	require.NoError(t, env.service.MarkCheckedOut(ctx, checkedOut, "SS260601-AAAAAA"))

	env.now = env.now.Add(6 * 24 * time.Hour)
	_, err = env.service.AddItem(ctx, guest("recent"), "tee-1", 1, "red", "M")
	require.NoError(t, err)

	env.now = env.now.Add(2 * 24 * time.Hour)
	n, err := env.service.PurgeAbandoned(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, env.repo.Len())
	_, err = env.repo.FindGuestBySession(ctx, "recent")
	assert.NoError(t, err)
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	env := newTestCartService(t)
	sweeper := NewSweeper(env.service, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, sweeper.Run(ctx))
}
