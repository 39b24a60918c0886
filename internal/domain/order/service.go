package order

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	bulkConcurrency = 8
)

type Filter struct {
	Status        Status
	PaymentMethod PaymentMethod
	From          time.Time
	To            time.Time
	// Query matches the order number, customer name, email or phone.
	Query    string
	Page     int
	PageSize int
}

// Normalize clamps paging. Repositories treat PageSize 0 as unlimited, which
// only export relies on.
func (f Filter) Normalize() Filter {
	f.Query = strings.TrimSpace(f.Query)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func (f Filter) Skip() int64 {
	if f.PageSize <= 0 || f.Page < 1 {
		return 0
	}
	return int64((f.Page - 1) * f.PageSize)
}

type Page struct {
	Items      []*Order `json:"items"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

type Repository interface {
	// Insert stores a new order. A taken order number yields
	// ErrDuplicateOrderNumber.
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Save replaces the stored order if its version still equals o.Version
	// and then advances o.Version.
	Save(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]*Order, int64, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}

// RevenueHook observes committed status changes. Its errors never fail the
// transition.
type RevenueHook interface {
	StatusChanged(ctx context.Context, o *Order, from Status) error
}

type Service struct {
	repo Repository
	hook RevenueHook
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, hook RevenueHook, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo: repo,
		hook: hook,
		log:  logger.With("component", "order"),
		now:  time.Now,
	}
}

// Create places and stores an order drafted at checkout.
func (s *Service) Create(ctx context.Context, d Draft, initial Status) (*Order, error) {
	o, err := Place(d, initial, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, o); err != nil {
		return nil, err
	}
	s.log.Info("order placed", "order_id", o.ID, "order_number", o.Number, "status", o.Status, "final_total", o.Pricing.FinalTotal)
	return o, nil
}

// Delete removes an order. Checkout uses it to undo an insert.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
}

func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Order{}
	}
	pages := int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	return &Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize, TotalPages: pages}, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// GetForUser returns the order only when it belongs to userID.
func (s *Service) GetForUser(ctx context.Context, number, userID string) (*Order, error) {
	o, err := s.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if userID == "" || o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// UpdateStatus applies one transition and reports it to the revenue hook.
func (s *Service) UpdateStatus(ctx context.Context, id string, target Status, actor, note string) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, o, target, actor, note)
}

// CancelByCustomer lets a customer cancel their own order while it has not
// shipped yet.
func (s *Service) CancelByCustomer(ctx context.Context, number, userID, reason string) (*Order, error) {
	o, err := s.GetForUser(ctx, number, userID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotCancellable, o.Number, o.Status)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Cancelled by customer"
	}
	return s.apply(ctx, o, StatusCancelled, userID, reason)
}

func (s *Service) apply(ctx context.Context, o *Order, target Status, actor, note string) (*Order, error) {
	from := o.Status
	if err := o.Transition(target, actor, strings.TrimSpace(note), s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return nil, err
	}

	s.log.Info("order status changed",
		"order_id", o.ID, "order_number", o.Number, "from", from, "to", o.Status, "actor", o.History[len(o.History)-1].Actor)

	if s.hook != nil {
		if err := s.hook.StatusChanged(ctx, o, from); err != nil {
			s.log.Error("revenue ledger update failed",
				"order_id", o.ID, "order_number", o.Number, "from", from, "to", o.Status, "error", err)
		}
	}
	return o, nil
}

type BulkFailure struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

// BulkUpdate applies the same transition to every order independently.
// Failures are collected per order and never stop the others.
func (s *Service) BulkUpdate(ctx context.Context, ids []string, target Status, actor, note string) BulkResult {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	var (
		mu  sync.Mutex
		res BulkResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, id := range unique {
		g.Go(func() error {
			_, err := s.UpdateStatus(gctx, id, target, actor, note)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Failures = append(res.Failures, BulkFailure{OrderID: id, Reason: err.Error()})
				return nil
			}
			res.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.Failures, func(a, b BulkFailure) int { return strings.Compare(a.OrderID, b.OrderID) })
	s.log.Info("bulk status update finished", "target", target, "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}
