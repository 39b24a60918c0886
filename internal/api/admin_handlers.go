package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/example/sportshop/internal/api/middleware"
	"github.com/example/sportshop/internal/domain/order"
	"github.com/example/sportshop/internal/domain/product"
	"github.com/example/sportshop/internal/domain/user"
)

const defaultRevenueDays = 30

// Reporting

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *Handlers) Revenue(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from", h.loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to", h.loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if to.IsZero() {
		to = time.Now().In(h.loc)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -(defaultRevenueDays - 1))
	}
	series, err := h.reports.RevenueByDay(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

// Orders

func (h *Handlers) orderFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{Query: q.Get("q")}
	var err error
	if s := q.Get("status"); s != "" {
		if f.Status, err = order.ParseStatus(s); err != nil {
			return f, err
		}
	}
	if m := q.Get("payment_method"); m != "" {
		if f.PaymentMethod, err = order.ParsePaymentMethod(m); err != nil {
			return f, err
		}
	}
	if f.From, err = queryDate(r, "from", h.loc); err != nil {
		return f, err
	}
	to, err := queryDate(r, "to", h.loc)
	if err != nil {
		return f, err
	}
	if !to.IsZero() {
		f.To = to.AddDate(0, 0, 1)
	}
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(r, "page_size", 0); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := h.orderFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"order":         o,
		"next_statuses": order.NextStatuses(o.Status),
	})
}

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := order.ParseStatus(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), target, actor(r), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, fmt.Sprintf("Order %s is now %s", o.Number, o.Status), o)
}

type bulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
	Note     string   `json:"note"`
}

// BulkUpdateOrders answers 200 when at least one order moved and 400 when
// none did.
func (h *Handlers) BulkUpdateOrders(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := order.ParseStatus(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.OrderIDs) == 0 {
		h.fail(w, r, fmt.Errorf("%w: no orders selected", ErrBadRequest))
		return
	}

	res := h.orders.BulkUpdate(r.Context(), req.OrderIDs, target, actor(r), req.Note)
	message := fmt.Sprintf("%d updated, %d failed", res.Succeeded, res.Failed)
	if res.Succeeded == 0 {
		writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Message: message, Data: res})
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: message, Data: res})
}

func (h *Handlers) ExportOrders(w http.ResponseWriter, r *http.Request) {
	f, err := h.orderFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	n, err := h.orders.Export(r.Context(), f, &buf)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := fmt.Sprintf("orders-%s.csv", time.Now().In(h.loc).Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn("write order export", "error", err)
		return
	}
	h.log.Info("orders exported", "rows", n, "actor", actor(r))
}

// Products

func (h *Handlers) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	h.ListProducts(w, r)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := bind(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, "Product created", p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := bind(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Product updated", p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Product deleted", nil)
}

// Users

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	f := user.Filter{
		Query: r.URL.Query().Get("q"),
		Role:  user.Role(r.URL.Query().Get("role")),
	}
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		h.fail(w, r, err)
		return
	}
	if f.PageSize, err = queryInt(r, "page_size", user.DefaultPageSize); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.users.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]UserResponse, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, newUserResponse(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handlers) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.SetRole(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"), user.Role(req.Role))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Role updated", newUserResponse(u))
}

type activeRequest struct {
	Active flexBool `json:"active"`
}

func (h *Handlers) SetUserActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.SetActive(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"), bool(req.Active))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	message := "User deactivated"
	if u.IsActive {
		message = "User activated"
	}
	h.respond(w, r, http.StatusOK, message, newUserResponse(u))
}

// Settings

func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	docs, err := h.settings.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) GetSetting(w http.ResponseWriter, r *http.Request) {
	doc, err := h.settings.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

type settingRequest struct {
	Value   map[string]any `json:"value"`
	Version flexInt        `json:"version"`
}

func (h *Handlers) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := h.settings.Update(r.Context(), r.PathValue("key"), req.Value, actor(r), req.Version.Or(0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "Settings saved", doc)
}
