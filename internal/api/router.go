package api

import (
	"net/http"

	"github.com/example/sportshop/internal/api/middleware"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.AuthMiddleware(h.jwt)
	requireAdmin := middleware.RequireRole("admin")
	limited := middleware.RateLimit(h.limiter, h.proxies, h.log)

	user := func(fn http.HandlerFunc) http.Handler { return authed(fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return authed(requireAdmin(fn)) }

	mux.HandleFunc("GET /healthz", h.Health)

	// Catalog
	mux.HandleFunc("GET /products", h.ListProducts)
	mux.HandleFunc("GET /products/{id}", h.GetProduct)
	mux.HandleFunc("GET /products/slug/{slug}", h.GetProductBySlug)
	mux.HandleFunc("GET /delivery/districts", h.Districts)

	// Cart
	mux.HandleFunc("GET /cart", h.GetCart)
	mux.HandleFunc("GET /cart/api", h.CartAPI)
	mux.HandleFunc("POST /cart/add", h.AddToCart)
	mux.HandleFunc("PUT /cart/update/{itemId}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /cart/remove/{itemId}", h.RemoveCartItem)
	mux.HandleFunc("DELETE /cart/clear", h.ClearCart)
	mux.HandleFunc("GET /cart/checkout", h.CheckoutPage)
	mux.Handle("POST /cart/checkout", limited(http.HandlerFunc(h.Checkout)))

	// Auth
	mux.Handle("POST /auth/register", limited(http.HandlerFunc(h.Register)))
	mux.Handle("POST /auth/login", limited(http.HandlerFunc(h.Login)))
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.Handle("GET /auth/me", user(h.Me))

	// Account
	mux.Handle("PUT /account/profile", user(h.UpdateProfile))
	mux.Handle("PUT /account/password", user(h.ChangePassword))
	mux.Handle("GET /account/orders", user(h.MyOrders))
	mux.Handle("GET /account/orders/{number}", user(h.MyOrder))
	mux.Handle("POST /account/orders/{number}/cancel", user(h.CancelMyOrder))
	mux.Handle("GET /account/addresses", user(h.ListAddresses))
	mux.Handle("POST /account/addresses", user(h.AddAddress))
	mux.Handle("PUT /account/addresses/{id}", user(h.UpdateAddress))
	mux.Handle("DELETE /account/addresses/{id}", user(h.DeleteAddress))
	mux.Handle("POST /account/addresses/{id}/default", user(h.SetDefaultAddress))
	mux.Handle("GET /account/favorites", user(h.ListFavorites))
	mux.Handle("POST /account/favorites/{productId}", user(h.ToggleFavorite))

	// Admin
	mux.Handle("GET /admin/dashboard", admin(h.Dashboard))
	mux.Handle("GET /admin/revenue", admin(h.Revenue))
	mux.Handle("GET /admin/orders", admin(h.AdminListOrders))
	mux.Handle("GET /admin/orders/export", admin(h.ExportOrders))
	mux.Handle("GET /admin/orders/{id}", admin(h.AdminGetOrder))
	mux.Handle("POST /admin/orders/{id}/status", admin(h.UpdateOrderStatus))
	mux.Handle("POST /admin/orders/bulk-update", admin(h.BulkUpdateOrders))
	mux.Handle("GET /admin/products", admin(h.AdminListProducts))
	mux.Handle("POST /admin/products", admin(h.CreateProduct))
	mux.Handle("PUT /admin/products/{id}", admin(h.UpdateProduct))
	mux.Handle("DELETE /admin/products/{id}", admin(h.DeleteProduct))
	mux.Handle("GET /admin/users", admin(h.AdminListUsers))
	mux.Handle("POST /admin/users/{id}/role", admin(h.SetUserRole))
	mux.Handle("POST /admin/users/{id}/active", admin(h.SetUserActive))
	mux.Handle("GET /admin/settings", admin(h.ListSettings))
	mux.Handle("GET /admin/settings/{key}", admin(h.GetSetting))
	mux.Handle("PUT /admin/settings/{key}", admin(h.UpdateSetting))

	var handler http.Handler = mux
	handler = middleware.OptionalAuthMiddleware(h.jwt)(handler)
	handler = middleware.Session(handler)
	handler = middleware.Logging(h.log)(handler)
	handler = middleware.Recover(h.log)(handler)
	return handler
}
