package settings

import (
	"context"
	"maps"
	"sync"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[Key]*Document
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[Key]*Document)}
}

func (r *MemoryRepository) Get(ctx context.Context, key Key) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[key]
	if !ok {
		return nil, nil
	}
	return clone(d), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, clone(d))
	}
	return out, nil
}

func (r *MemoryRepository) Put(ctx context.Context, doc *Document, expected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := 0
	if d, ok := r.docs[doc.Key]; ok {
		current = d.Version
	}
	if current != expected {
		return ErrVersionClash
	}
	r.docs[doc.Key] = clone(doc)
	return nil
}

func clone(d *Document) *Document {
	cp := *d
	cp.Value = maps.Clone(d.Value)
	return &cp
}
