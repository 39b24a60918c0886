package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 60
)

type Sort string

const (
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
	SortName      Sort = "name"
)

type Filter struct {
	Category     Category
	Brand        string
	Color        string
	Size         string
	MinPrice     int64
	MaxPrice     int64
	InStockOnly  bool
	FeaturedOnly bool
	Query        string
	Sort         Sort
	Page         int
	PageSize     int
}

// Normalize clamps paging and canonicalizes enum values.
func (f Filter) Normalize() Filter {
	f.Category = Category(strings.ToLower(strings.TrimSpace(string(f.Category))))
	f.Brand = strings.ToLower(strings.TrimSpace(f.Brand))
	f.Color = strings.ToLower(strings.TrimSpace(f.Color))
	f.Size = strings.ToUpper(strings.TrimSpace(f.Size))
	f.Query = strings.TrimSpace(f.Query)
	switch f.Sort {
	case SortPriceAsc, SortPriceDesc, SortName:
	default:
		f.Sort = SortNewest
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.MinPrice < 0 {
		f.MinPrice = 0
	}
	if f.MaxPrice < 0 {
		f.MaxPrice = 0
	}
	return f
}

func (f Filter) Skip() int64 {
	return int64((f.Page - 1) * f.PageSize)
}

type Page struct {
	Items      []*Product `json:"items"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

func NewPage(items []*Product, total int64, f Filter) *Page {
	pages := int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	if items == nil {
		items = []*Product{}
	}
	return &Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize, TotalPages: pages}
}

type Repository interface {
	List(ctx context.Context, f Filter) ([]*Product, int64, error)
	Get(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return NewPage(items, total, f), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	return s.repo.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := s.now()
	p := &Product{
		ID:        id,
		Slug:      Slugify(in.Name) + "-" + id[:6],
		CreatedAt: now,
	}
	p.apply(in, now)

	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the editable fields. Existing cart and order lines keep the
// values they captured.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Product, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.apply(in, s.now())

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
