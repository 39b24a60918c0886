package order

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps orders in process memory and answers the revenue
// queries the dashboard needs.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*Order)}
}

func (r *MemoryRepository) Insert(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.Number == o.Number {
			return ErrDuplicateOrderNumber
		}
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.Number == number {
			return o.Clone(), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *MemoryRepository) Save(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return ErrConcurrentUpdate
	}
	o.Version++
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*Order, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	var matched []*Order
	for _, o := range r.orders {
		if matches(o, f) {
			matched = append(matched, o.Clone())
		}
	}
	r.mu.RUnlock()

	sortNewest(matched)
	total := int64(len(matched))
	if f.PageSize <= 0 {
		return matched, total, nil
	}
	start := min(int(f.Skip()), len(matched))
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sortNewest(out)
	return out, nil
}

// RevenueSummary sums delivered and completed orders whose delivery falls in
// [from, to). Zero bounds are open.
func (r *MemoryRepository) RevenueSummary(ctx context.Context, from, to time.Time) (RevenueTotals, error) {
	if err := ctx.Err(); err != nil {
		return RevenueTotals{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var t RevenueTotals
	for _, o := range r.orders {
		if o.CountsAsRevenue() && deliveredWithin(o, from, to) {
			t.Revenue += o.Pricing.FinalTotal
			t.Orders++
		}
	}
	return t, nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[Status]int64, len(Statuses))
	for _, o := range r.orders {
		counts[o.Status]++
	}
	return counts, nil
}

// DailyRevenue groups revenue by delivery day, with day boundaries taken in
// loc.
func (r *MemoryRepository) DailyRevenue(ctx context.Context, from, to time.Time, loc *time.Location) ([]DayRevenue, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	byDay := make(map[time.Time]*DayRevenue)
	for _, o := range r.orders {
		if !o.CountsAsRevenue() || !deliveredWithin(o, from, to) {
			continue
		}
		at := o.DeliveredAt.In(loc)
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, loc)
		d, ok := byDay[day]
		if !ok {
			d = &DayRevenue{Day: day}
			byDay[day] = d
		}
		d.Revenue += o.Pricing.FinalTotal
		d.Orders++
	}
	r.mu.RUnlock()

	out := make([]DayRevenue, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b DayRevenue) int { return a.Day.Compare(b.Day) })
	return out, nil
}

func matches(o *Order, f Filter) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentMethod != "" && o.PaymentMethod != f.PaymentMethod {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
		return false
	}
	if q := strings.ToLower(f.Query); q != "" {
		fields := []string{o.Number, o.Customer.Name, o.Customer.Email, o.Customer.Phone}
		return slices.ContainsFunc(fields, func(v string) bool {
			return strings.Contains(strings.ToLower(v), q)
		})
	}
	return true
}

func deliveredWithin(o *Order, from, to time.Time) bool {
	if o.DeliveredAt == nil {
		return false
	}
	at := *o.DeliveredAt
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func sortNewest(orders []*Order) {
	slices.SortFunc(orders, func(a, b *Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})
}
