package product

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository keeps products in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]*Product
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{products: make(map[string]*Product)}
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*Product, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Product
	for _, p := range r.products {
		if matches(p, f) {
			matched = append(matched, clone(p))
		}
	}
	sortProducts(matched, f.Sort)

	total := int64(len(matched))
	start := int(f.Skip())
	if start >= len(matched) {
		return []*Product{}, total, nil
	}
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return clone(p), nil
}

func (r *MemoryRepository) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.products {
		if p.Slug == slug {
			return clone(p), nil
		}
	}
	return nil, ErrProductNotFound
}

func (r *MemoryRepository) Insert(ctx context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.products {
		if existing.Slug == p.Slug {
			return ErrDuplicateSlug
		}
	}
	r.products[p.ID] = clone(p)
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[p.ID] = clone(p)
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func matches(p *Product, f Filter) bool {
	switch {
	case f.Category != "" && p.Category != f.Category:
		return false
	case f.Brand != "" && p.Brand != f.Brand:
		return false
	case f.Color != "" && !slices.Contains(p.Colors, f.Color):
		return false
	case f.Size != "" && !slices.Contains(p.Sizes, f.Size):
		return false
	case f.MinPrice > 0 && p.Price < f.MinPrice:
		return false
	case f.MaxPrice > 0 && p.Price > f.MaxPrice:
		return false
	case f.InStockOnly && !p.Available():
		return false
	case f.FeaturedOnly && !p.Featured:
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		text := strings.ToLower(p.Name + " " + p.Description + " " + p.Brand)
		if !strings.Contains(text, q) {
			return false
		}
	}
	return true
}

func sortProducts(items []*Product, by Sort) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch by {
		case SortPriceAsc:
			return a.Price < b.Price
		case SortPriceDesc:
			return a.Price > b.Price
		case SortName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}

func clone(p *Product) *Product {
	c := *p
	c.Colors = slices.Clone(p.Colors)
	c.Sizes = slices.Clone(p.Sizes)
	c.Images = slices.Clone(p.Images)
	return &c
}
