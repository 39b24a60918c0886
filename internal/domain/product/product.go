package product

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/sportshop/internal/apperr"
)

type Category string

const (
	CategoryShoes       Category = "shoes"
	CategoryTops        Category = "tops"
	CategoryBottoms     Category = "bottoms"
	CategoryAccessories Category = "accessories"
)

var Categories = []Category{CategoryShoes, CategoryTops, CategoryBottoms, CategoryAccessories}

var Brands = []string{"nike", "adidas", "puma", "under-armour", "new-balance", "asics", "other"}

var Colors = []string{"black", "white", "red", "blue", "green", "yellow", "grey", "navy", "pink", "orange"}

var Sizes = []string{
	"XS", "S", "M", "L", "XL", "XXL",
	"36", "37", "38", "39", "40", "41", "42", "43", "44", "45",
}

var (
	ErrProductNotFound = apperr.NotFound("product not found")
	ErrInvalidProduct  = apperr.Validation("invalid product")
	ErrDuplicateSlug   = apperr.Conflict("product slug already exists")
)

type Product struct {
	ID             string    `json:"id" bson:"_id"`
	Name           string    `json:"name" bson:"name"`
	Slug           string    `json:"slug" bson:"slug"`
	Description    string    `json:"description" bson:"description"`
	Price          int64     `json:"price" bson:"price"`
	CompareAtPrice int64     `json:"compare_at_price,omitempty" bson:"compare_at_price,omitempty"`
	Category       Category  `json:"category" bson:"category"`
	Brand          string    `json:"brand" bson:"brand"`
	Colors         []string  `json:"colors" bson:"colors"`
	Sizes          []string  `json:"sizes" bson:"sizes"`
	InStock        bool      `json:"in_stock" bson:"in_stock"`
	Stock          int       `json:"stock" bson:"stock"`
	Images         []string  `json:"images" bson:"images"`
	Featured       bool      `json:"featured" bson:"featured"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// Available reports whether the product can currently be added to a cart.
func (p *Product) Available() bool {
	return p.InStock && p.Stock > 0
}

func (p *Product) HasColor(color string) bool {
	return slices.Contains(p.Colors, strings.ToLower(strings.TrimSpace(color)))
}

func (p *Product) HasSize(size string) bool {
	return slices.Contains(p.Sizes, strings.ToUpper(strings.TrimSpace(size)))
}

// AllowsVariant reports whether color and size are offered. Products without
// color or size options accept an empty selection.
func (p *Product) AllowsVariant(color, size string) bool {
	colorOK := p.HasColor(color) || (len(p.Colors) == 0 && strings.TrimSpace(color) == "")
	sizeOK := p.HasSize(size) || (len(p.Sizes) == 0 && strings.TrimSpace(size) == "")
	return colorOK && sizeOK
}

// Image returns the first image, used as the cart thumbnail.
func (p *Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Input carries the editable fields of a product.
type Input struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          int64    `json:"price"`
	CompareAtPrice int64    `json:"compare_at_price"`
	Category       Category `json:"category"`
	Brand          string   `json:"brand"`
	Colors         []string `json:"colors"`
	Sizes          []string `json:"sizes"`
	Stock          int      `json:"stock"`
	Images         []string `json:"images"`
	Featured       bool     `json:"featured"`
}

// normalize lower-cases colors and brand and upper-cases sizes, dropping
// duplicates.
func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Brand = strings.ToLower(strings.TrimSpace(in.Brand))
	in.Category = Category(strings.ToLower(strings.TrimSpace(string(in.Category))))
	in.Colors = dedupe(in.Colors, strings.ToLower)
	in.Sizes = dedupe(in.Sizes, strings.ToUpper)
}

func (in Input) validate() error {
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if in.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	if in.CompareAtPrice < 0 {
		return fmt.Errorf("%w: compare-at price cannot be negative", ErrInvalidProduct)
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}
	if !slices.Contains(Categories, in.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidProduct, in.Category)
	}
	if !slices.Contains(Brands, in.Brand) {
		return fmt.Errorf("%w: unknown brand %q", ErrInvalidProduct, in.Brand)
	}
	for _, c := range in.Colors {
		if !slices.Contains(Colors, c) {
			return fmt.Errorf("%w: unknown color %q", ErrInvalidProduct, c)
		}
	}
	for _, s := range in.Sizes {
		if !slices.Contains(Sizes, s) {
			return fmt.Errorf("%w: unknown size %q", ErrInvalidProduct, s)
		}
	}
	return nil
}

func (p *Product) apply(in Input, now time.Time) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.CompareAtPrice = in.CompareAtPrice
	p.Category = in.Category
	p.Brand = in.Brand
	p.Colors = in.Colors
	p.Sizes = in.Sizes
	p.Stock = in.Stock
	p.InStock = in.Stock > 0
	p.Images = in.Images
	p.Featured = in.Featured
	p.UpdatedAt = now
}

func dedupe(values []string, norm func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Slugify turns a product name into a URL slug.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
