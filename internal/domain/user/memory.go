package user

import (
	"context"
	"slices"
	"strings"
	"sync"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*User)}
}

func (r *MemoryRepository) Insert(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) Save(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	if stored.Version != u.Version {
		return ErrConcurrentUpdate
	}
	u.Version++
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*User, int64, error) {
	r.mu.RLock()
	var matched []*User
	q := strings.ToLower(f.Query)
	for _, u := range r.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if q != "" && !strings.Contains(u.Email, q) && !strings.Contains(strings.ToLower(u.Name), q) {
			continue
		}
		matched = append(matched, u.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *User) int { return b.CreatedAt.Compare(a.CreatedAt) })
	total := int64(len(matched))
	start := min(int(f.Skip()), len(matched))
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], total, nil
}
