package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/sportshop/internal/apperr"
	"github.com/example/sportshop/internal/domain/product"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusCheckedOut Status = "checked_out"
)

const (
	MinQuantity = 1
	MaxQuantity = 10
)

var (
	ErrCartNotFound     = apperr.NotFound("cart not found")
	ErrItemNotFound     = apperr.NotFound("cart item not found")
	ErrInvalidQuantity  = apperr.Validation(fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity))
	ErrProductNotFound  = apperr.Validation("product does not exist")
	ErrOutOfStock       = apperr.Validation("product is out of stock")
	ErrInvalidVariant   = apperr.Validation("selected color or size is not available")
	ErrCartCheckedOut   = apperr.DomainConstraint("cart has already been checked out")
	ErrConcurrentUpdate = apperr.Conflict("cart was modified by another request")
	ErrStoreUnavailable = apperr.New(apperr.KindTransientStore, "cart is temporarily unavailable")
)

type Item struct {
	ID          string `json:"id" bson:"id"`
	ProductID   string `json:"product_id" bson:"product_id"`
	ProductName string `json:"product_name" bson:"product_name"`
	Image       string `json:"image,omitempty" bson:"image,omitempty"`
	Color       string `json:"color" bson:"color"`
	Size        string `json:"size" bson:"size"`
	Quantity    int    `json:"quantity" bson:"quantity"`
	// Price is captured when the line is first added and never refreshed.
	Price    int64 `json:"price" bson:"price"`
	Subtotal int64 `json:"subtotal" bson:"subtotal"`
}

func (i Item) sameVariant(productID, color, size string) bool {
	return i.ProductID == productID && i.Color == color && i.Size == size
}

type Cart struct {
	ID          string    `json:"id" bson:"_id"`
	SessionID   string    `json:"session_id" bson:"session_id"`
	UserID      string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Status      Status    `json:"status" bson:"status"`
	Items       []Item    `json:"items" bson:"items"`
	TotalItems  int       `json:"total_items" bson:"total_items"`
	TotalPrice  int64     `json:"total_price" bson:"total_price"`
	ShippingFee int64     `json:"shipping_fee" bson:"shipping_fee"`
	FinalTotal  int64     `json:"final_total" bson:"final_total"`
	OrderNumber string    `json:"order_number,omitempty" bson:"order_number,omitempty"`
	Version     int       `json:"version" bson:"version"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`

	// detached carts stand in for the stored cart while the store is
	// unavailable. Changes to them are never saved.
	detached bool
}

func New(sessionID, userID string, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Status:    StatusActive,
		Items:     []Item{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Pricing holds the shipping rule applied to cart totals.
type Pricing struct {
	ShippingFee           int64
	FreeShippingThreshold int64
}

func DefaultPricing() Pricing {
	return Pricing{ShippingFee: 30000, FreeShippingThreshold: 500000}
}

// Totals are the derived amounts of a set of lines.
type Totals struct {
	TotalItems  int   `json:"total_items"`
	TotalPrice  int64 `json:"total_price"`
	ShippingFee int64 `json:"shipping_fee"`
	FinalTotal  int64 `json:"final_total"`
}

// ComputeTotals is a pure function of the lines. An empty cart owes no
// shipping.
func ComputeTotals(items []Item, p Pricing) Totals {
	var t Totals
	for _, it := range items {
		t.TotalItems += it.Quantity
		t.TotalPrice += it.Subtotal
	}
	if len(items) > 0 && t.TotalPrice < p.FreeShippingThreshold {
		t.ShippingFee = p.ShippingFee
	}
	t.FinalTotal = t.TotalPrice + t.ShippingFee
	return t
}

// Recalculate refreshes line subtotals and the derived cart fields.
func (c *Cart) Recalculate(p Pricing) {
	for i := range c.Items {
		c.Items[i].Subtotal = int64(c.Items[i].Quantity) * c.Items[i].Price
	}
	t := ComputeTotals(c.Items, p)
	c.TotalItems = t.TotalItems
	c.TotalPrice = t.TotalPrice
	c.ShippingFee = t.ShippingFee
	c.FinalTotal = t.FinalTotal
}

// Persistent reports whether changes to c are saved.
func (c *Cart) Persistent() bool {
	return !c.detached
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) IsGuest() bool {
	return c.UserID == ""
}

func (c *Cart) ensureMutable() error {
	if c.Status != StatusActive {
		return ErrCartCheckedOut
	}
	return nil
}

func canonicalColor(color string) string {
	return strings.ToLower(strings.TrimSpace(color))
}

func canonicalSize(size string) string {
	return strings.ToUpper(strings.TrimSpace(size))
}

func validQuantity(q int) bool {
	return q >= MinQuantity && q <= MaxQuantity
}

// Add puts quantity units of the product variant in the cart. A line with the
// same product, color and size absorbs the quantity at its original price.
func (c *Cart) Add(p *product.Product, quantity int, color, size string) (*Item, error) {
	if err := c.ensureMutable(); err != nil {
		return nil, err
	}
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}
	if !p.Available() {
		return nil, ErrOutOfStock
	}
	if !p.AllowsVariant(color, size) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidVariant, color, size)
	}
	color, size = canonicalColor(color), canonicalSize(size)

	for i := range c.Items {
		if c.Items[i].sameVariant(p.ID, color, size) {
			merged := c.Items[i].Quantity + quantity
			if merged > MaxQuantity {
				return nil, fmt.Errorf("%w: cart already holds %d", ErrInvalidQuantity, c.Items[i].Quantity)
			}
			c.Items[i].Quantity = merged
			c.Items[i].Subtotal = int64(merged) * c.Items[i].Price
			return &c.Items[i], nil
		}
	}

	c.Items = append(c.Items, Item{
		ID:          uuid.New().String(),
		ProductID:   p.ID,
		ProductName: p.Name,
		Image:       p.Image(),
		Color:       color,
		Size:        size,
		Quantity:    quantity,
		Price:       p.Price,
		Subtotal:    int64(quantity) * p.Price,
	})
	return &c.Items[len(c.Items)-1], nil
}

func (c *Cart) UpdateQuantity(itemID string, quantity int) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if !validQuantity(quantity) {
		return ErrInvalidQuantity
	}
	c.Items[idx].Quantity = quantity
	c.Items[idx].Subtotal = int64(quantity) * c.Items[idx].Price
	return nil
}

func (c *Cart) Remove(itemID string) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return nil
}

func (c *Cart) Clear() error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	c.Items = []Item{}
	return nil
}

// Absorb merges guest lines into c. Matching lines keep c's price and are
// capped at MaxQuantity; other lines are appended unchanged.
func (c *Cart) Absorb(guest *Cart) {
	for _, g := range guest.Items {
		merged := false
		for i := range c.Items {
			if c.Items[i].sameVariant(g.ProductID, g.Color, g.Size) {
				c.Items[i].Quantity = min(c.Items[i].Quantity+g.Quantity, MaxQuantity)
				c.Items[i].Subtotal = int64(c.Items[i].Quantity) * c.Items[i].Price
				merged = true
				break
			}
		}
		if !merged {
			c.Items = append(c.Items, g)
		}
	}
}

// CheckOut freezes the cart and links it to the order created from it.
func (c *Cart) CheckOut(orderNumber string) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	if c.IsEmpty() {
		return apperr.DomainConstraint("cannot check out an empty cart")
	}
	c.Status = StatusCheckedOut
	c.OrderNumber = orderNumber
	return nil
}

func (c *Cart) indexOf(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	if cp.Items == nil {
		cp.Items = []Item{}
	}
	return &cp
}
