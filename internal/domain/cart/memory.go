package cart

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps carts in process memory. It honours the same
// version check as the persistent repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*Cart)}
}

func (r *MemoryRepository) FindGuestBySession(ctx context.Context, sessionID string) (*Cart, error) {
	return r.findOne(ctx, func(c *Cart) bool {
		return c.SessionID == sessionID && c.UserID == ""
	})
}

func (r *MemoryRepository) FindActiveByUser(ctx context.Context, userID string) (*Cart, error) {
	return r.findOne(ctx, func(c *Cart) bool {
		return c.UserID == userID
	})
}

func (r *MemoryRepository) findOne(ctx context.Context, match func(*Cart) bool) (*Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *Cart
	for _, c := range r.carts {
		if c.Status != StatusActive || !match(c) {
			continue
		}
		if found == nil || c.UpdatedAt.After(found.UpdatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, ErrCartNotFound
	}
	return found.Clone(), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepository) Insert(ctx context.Context, c *Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[c.ID] = c.Clone()
	return nil
}

func (r *MemoryRepository) Save(ctx context.Context, c *Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.carts[c.ID]
	if !ok {
		return ErrCartNotFound
	}
	if stored.Version != c.Version {
		return ErrConcurrentUpdate
	}
	c.Version++
	r.carts[c.ID] = c.Clone()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, id)
	return nil
}

func (r *MemoryRepository) DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.carts {
		if c.Status == StatusActive && c.UpdatedAt.Before(cutoff) {
			delete(r.carts, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored carts.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.carts)
}
