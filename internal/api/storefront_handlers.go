package api

import (
	"net/http"

	"github.com/example/sportshop/internal/api/middleware"
	"github.com/example/sportshop/internal/domain/cart"
	"github.com/example/sportshop/internal/domain/checkout"
	"github.com/example/sportshop/internal/domain/order"
	"github.com/example/sportshop/internal/domain/product"
)

// Product Handlers

func productFilter(r *http.Request) (product.Filter, error) {
	q := r.URL.Query()
	f := product.Filter{
		Category:     product.Category(q.Get("category")),
		Brand:        q.Get("brand"),
		Color:        q.Get("color"),
		Size:         q.Get("size"),
		InStockOnly:  queryBool(r, "in_stock"),
		FeaturedOnly: queryBool(r, "featured"),
		Query:        q.Get("q"),
		Sort:         product.Sort(q.Get("sort")),
	}
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(r, "page_size", product.DefaultPageSize); err != nil {
		return f, err
	}
	minPrice, err := queryInt(r, "min_price", 0)
	if err != nil {
		return f, err
	}
	maxPrice, err := queryInt(r, "max_price", 0)
	if err != nil {
		return f, err
	}
	f.MinPrice, f.MaxPrice = int64(minPrice), int64(maxPrice)
	return f, nil
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.products.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) GetProductBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) Districts(w http.ResponseWriter, r *http.Request) {
	region := h.checkout.Region()
	respondJSON(w, http.StatusOK, map[string]any{
		"city":      region.City,
		"districts": region.Districts,
	})
}

// Cart Handlers

type cartPage struct {
	Cart cart.View `json:"cart"`
	// AmountToFreeShipping is what the customer still has to add to stop
	// paying the shipping fee.
	AmountToFreeShipping  int64 `json:"amount_to_free_shipping"`
	FreeShippingThreshold int64 `json:"free_shipping_threshold"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view := h.carts.Resolve(r.Context(), owner(r)).View()
	pricing := h.carts.Pricing()
	respondJSON(w, http.StatusOK, cartPage{
		Cart:                  view,
		AmountToFreeShipping:  max(0, pricing.FreeShippingThreshold-view.TotalPrice),
		FreeShippingThreshold: pricing.FreeShippingThreshold,
	})
}

func (h *Handlers) CartAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.carts.Resolve(r.Context(), owner(r)).View())
}

type addToCartRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  flexInt `json:"quantity"`
	Color     string  `json:"color"`
	Size      string  `json:"size"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.AddItem(r.Context(), owner(r), req.ProductID, req.Quantity.Or(1), req.Color, req.Size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Added to cart", cart.ResultOf(c).View())
}

type updateCartItemRequest struct {
	Quantity flexInt `json:"quantity"`
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !req.Quantity.Set {
		h.fail(w, r, cart.ErrInvalidQuantity)
		return
	}
	c, err := h.carts.UpdateItemQuantity(r.Context(), owner(r), r.PathValue("itemId"), req.Quantity.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Cart updated", cart.ResultOf(c).View())
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), owner(r), r.PathValue("itemId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Item removed", cart.ResultOf(c).View())
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), owner(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Cart cleared", cart.ResultOf(c).View())
}

// Checkout Handlers

type checkoutPage struct {
	Cart           cart.View             `json:"cart"`
	City           string                `json:"city"`
	Districts      any                   `json:"districts"`
	PaymentMethods []order.PaymentMethod `json:"payment_methods"`
	Prefill        checkout.Form         `json:"prefill"`
}

func (h *Handlers) CheckoutPage(w http.ResponseWriter, r *http.Request) {
	view := h.carts.Resolve(r.Context(), owner(r)).View()
	if len(view.Items) == 0 {
		h.fail(w, r, checkout.ErrEmptyCart)
		return
	}
	region := h.checkout.Region()
	page := checkoutPage{
		Cart:           view,
		City:           region.City,
		Districts:      region.Districts,
		PaymentMethods: order.PaymentMethods,
		Prefill:        checkout.Form{City: region.City, PaymentMethod: string(order.PaymentCOD)},
	}
	if id := middleware.GetUserID(r.Context()); id != "" {
		if u, err := h.users.Get(r.Context(), id); err == nil {
			page.Prefill.Name = u.Name
			page.Prefill.Email = u.Email
			page.Prefill.Phone = u.Phone
			for _, a := range u.Addresses {
				if a.IsDefault {
					page.Prefill.Street = a.Street
					page.Prefill.Ward = a.Ward
					page.Prefill.District = a.DistrictCode
				}
			}
		}
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := bind(r, &form); err != nil {
		h.fail(w, r, err)
		return
	}

	var c *cart.Cart
	switch res := h.carts.Resolve(r.Context(), owner(r)).(type) {
	case cart.Loaded:
		c = res.Cart
	default:
		h.fail(w, r, cart.ErrStoreUnavailable)
		return
	}

	confirmation, err := h.checkout.Process(r.Context(), c, form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, "Order "+confirmation.OrderNumber+" placed", confirmation)
}
