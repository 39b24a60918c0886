package cart

// Result is the outcome of resolving the cart for a session. It is either
// Loaded, backed by a stored cart, or Fallback, used when the store did not
// answer in time. A Fallback may carry a detached cart holding the change
// the caller just made; that change is not saved.
type Result interface {
	View() View
	isResult()
}

type Loaded struct {
	Cart *Cart
}

type Fallback struct {
	Err  error
	Cart *Cart
}

// ResultOf wraps a cart returned by a mutation in its variant.
func ResultOf(c *Cart) Result {
	if c == nil || c.detached {
		return Fallback{Cart: c}
	}
	return Loaded{Cart: c}
}

func (Loaded) isResult()   {}
func (Fallback) isResult() {}

// View is the read model rendered for cart pages and the cart API.
type View struct {
	ID          string `json:"id,omitempty"`
	Status      Status `json:"status"`
	Items       []Item `json:"items"`
	OrderNumber string `json:"order_number,omitempty"`
	Totals
	// Persistent is false for a fallback cart: changes to it are not saved.
	Persistent bool `json:"persistent"`
}

func (l Loaded) View() View {
	return viewOf(l.Cart, true)
}

func (f Fallback) View() View {
	if f.Cart == nil {
		return View{Status: StatusActive, Items: []Item{}}
	}
	return viewOf(f.Cart, false)
}

func viewOf(c *Cart, persistent bool) View {
	return View{
		ID:          c.ID,
		Status:      c.Status,
		Items:       append([]Item{}, c.Items...),
		OrderNumber: c.OrderNumber,
		Totals: Totals{
			TotalItems:  c.TotalItems,
			TotalPrice:  c.TotalPrice,
			ShippingFee: c.ShippingFee,
			FinalTotal:  c.FinalTotal,
		},
		Persistent: persistent,
	}
}
