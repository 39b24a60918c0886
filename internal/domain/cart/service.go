package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/sportshop/internal/domain/product"
)

const (
	DefaultLookupTimeout = 3 * time.Second
	DefaultRetention     = 7 * 24 * time.Hour
)

// Owner identifies whose cart is being addressed: always a session, plus a
// user once authenticated.
type Owner struct {
	SessionID string
	UserID    string
}

type Repository interface {
	// FindGuestBySession returns the active cart of the session that has no
	// owning user.
	FindGuestBySession(ctx context.Context, sessionID string) (*Cart, error)
	FindActiveByUser(ctx context.Context, userID string) (*Cart, error)
	Insert(ctx context.Context, c *Cart) error
	// Save replaces the stored cart if its version still equals c.Version and
	// then advances c.Version. A stale version yields ErrConcurrentUpdate.
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
	// DeleteAbandoned removes active carts last updated before cutoff.
	DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
}

type Catalog interface {
	Get(ctx context.Context, id string) (*product.Product, error)
}

type Options struct {
	Pricing       Pricing
	LookupTimeout time.Duration
	Retention     time.Duration
	Logger        *slog.Logger
}

type Service struct {
	repo          Repository
	catalog       Catalog
	pricing       Pricing
	lookupTimeout time.Duration
	retention     time.Duration
	log           *slog.Logger
	now           func() time.Time
}

func NewService(repo Repository, catalog Catalog, opts Options) *Service {
	if opts.Pricing == (Pricing{}) {
		opts.Pricing = DefaultPricing()
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		catalog:       catalog,
		pricing:       opts.Pricing,
		lookupTimeout: opts.LookupTimeout,
		retention:     opts.Retention,
		log:           opts.Logger.With("component", "cart"),
		now:           time.Now,
	}
}

func (s *Service) Pricing() Pricing {
	return s.pricing
}

// Resolve returns the owner's active cart, creating an empty one on first
// access. Store errors and timeouts yield a Fallback instead of an error.
func (s *Service) Resolve(ctx context.Context, owner Owner) Result {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	c, err := s.find(lookupCtx, owner)
	if errors.Is(err, ErrCartNotFound) {
		c = New(owner.SessionID, owner.UserID, s.now())
		c.Recalculate(s.pricing)
		err = s.repo.Insert(lookupCtx, c)
	}
	if err != nil {
		s.log.Warn("cart lookup failed, serving fallback cart",
			"session_id", owner.SessionID, "user_id", owner.UserID, "error", err)
		return Fallback{Err: err}
	}
	return Loaded{Cart: c}
}

func (s *Service) find(ctx context.Context, owner Owner) (*Cart, error) {
	if owner.UserID != "" {
		return s.repo.FindActiveByUser(ctx, owner.UserID)
	}
	return s.repo.FindGuestBySession(ctx, owner.SessionID)
}

// load resolves the cart for a mutation. When the store is unavailable the
// mutation runs against a detached empty cart, so the caller still gets a
// cart back; the change is lost.
func (s *Service) load(ctx context.Context, owner Owner) *Cart {
	if res, ok := s.Resolve(ctx, owner).(Loaded); ok {
		return res.Cart
	}
	c := New(owner.SessionID, owner.UserID, s.now())
	c.detached = true
	return c
}

func (s *Service) persist(ctx context.Context, c *Cart) error {
	c.Recalculate(s.pricing)
	c.UpdatedAt = s.now()
	if c.detached {
		s.log.Warn("cart store unavailable, change not saved",
			"session_id", c.SessionID, "user_id", c.UserID)
		return nil
	}
	return s.repo.Save(ctx, c)
}

func (s *Service) AddItem(ctx context.Context, owner Owner, productID string, quantity int, color, size string) (*Cart, error) {
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	p, err := s.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	c := s.load(ctx, owner)
	if _, err := c.Add(p, quantity, color, size); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateItemQuantity changes the quantity of one line. A detached cart has
// no lines to change and is returned as is once the quantity is checked.
func (s *Service) UpdateItemQuantity(ctx context.Context, owner Owner, itemID string, quantity int) (*Cart, error) {
	c := s.load(ctx, owner)
	if c.detached {
		if !validQuantity(quantity) {
			return nil, ErrInvalidQuantity
		}
		return c, s.persist(ctx, c)
	}
	if err := c.UpdateQuantity(itemID, quantity); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, owner Owner, itemID string) (*Cart, error) {
	c := s.load(ctx, owner)
	if c.detached {
		return c, s.persist(ctx, c)
	}
	if err := c.Remove(itemID); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Clear(ctx context.Context, owner Owner) (*Cart, error) {
	c := s.load(ctx, owner)
	if err := c.Clear(); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkCheckedOut freezes c under the order number. It fails with
// ErrConcurrentUpdate when the cart changed after c was read.
func (s *Service) MarkCheckedOut(ctx context.Context, c *Cart, orderNumber string) error {
	if c.detached {
		return ErrStoreUnavailable
	}
	next := c.Clone()
	if err := next.CheckOut(orderNumber); err != nil {
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	*c = *next
	return nil
}

// MergeGuestCart moves the session's guest cart to the user after login. The
// guest cart is re-owned when the user has no active cart, otherwise its
// lines are merged into the user's cart and the guest cart is deleted.
func (s *Service) MergeGuestCart(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return nil
	}

	guest, err := s.repo.FindGuestBySession(ctx, sessionID)
	if errors.Is(err, ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find guest cart: %w", err)
	}
	if guest.IsEmpty() {
		return nil
	}

	userCart, err := s.repo.FindActiveByUser(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		guest.UserID = userID
		if err := s.persist(ctx, guest); err != nil {
			return fmt.Errorf("re-own guest cart: %w", err)
		}
		s.log.Info("guest cart re-owned", "cart_id", guest.ID, "user_id", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find user cart: %w", err)
	}

	userCart.Absorb(guest)
	if err := s.persist(ctx, userCart); err != nil {
		return fmt.Errorf("save merged cart: %w", err)
	}
	if err := s.repo.Delete(ctx, guest.ID); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}
	s.log.Info("guest cart merged", "guest_cart_id", guest.ID, "cart_id", userCart.ID, "user_id", userID)
	return nil
}

// PurgeAbandoned deletes active carts idle for longer than the retention
// window.
func (s *Service) PurgeAbandoned(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	return s.repo.DeleteAbandoned(ctx, cutoff)
}
