package api

import (
	"net/http"

	"github.com/example/sportshop/internal/api/middleware"
	"github.com/example/sportshop/internal/domain/user"
)

type profileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.Phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Profile updated", newUserResponse(u))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Password changed successfully", nil)
}

// Orders

func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) MyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetForUser(r.Context(), r.PathValue("number"), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) CancelMyOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.CancelByCustomer(r.Context(), r.PathValue("number"), middleware.GetUserID(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Order "+o.Number+" cancelled", o)
}

// Addresses

func (h *Handlers) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.users.Addresses(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, addrs)
}

type addressRequest struct {
	Label     string   `json:"label"`
	Recipient string   `json:"recipient"`
	Phone     string   `json:"phone"`
	Street    string   `json:"street"`
	Ward      string   `json:"ward"`
	District  string   `json:"district"`
	IsDefault flexBool `json:"is_default"`
}

func (req addressRequest) input() user.AddressInput {
	return user.AddressInput{
		Label:     req.Label,
		Recipient: req.Recipient,
		Phone:     req.Phone,
		Street:    req.Street,
		Ward:      req.Ward,
		District:  req.District,
		IsDefault: bool(req.IsDefault),
	}
}

func (h *Handlers) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.users.AddAddress(r.Context(), middleware.GetUserID(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, "Address added", a)
}

func (h *Handlers) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.users.UpdateAddress(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Address updated", a)
}

func (h *Handlers) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteAddress(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Address deleted", nil)
}

func (h *Handlers) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.users.SetDefaultAddress(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Default address updated", nil)
}

// Favorites

func (h *Handlers) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ids, err := h.users.Favorites(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if _, err := h.products.Get(r.Context(), productID); err != nil {
		h.fail(w, r, err)
		return
	}
	added, err := h.users.ToggleFavorite(r.Context(), middleware.GetUserID(r.Context()), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	message := "Removed from favorites"
	if added {
		message = "Added to favorites"
	}
	h.respond(w, r, http.StatusOK, message, map[string]bool{"favorite": added})
}
