// Package api exposes the storefront, account and admin operations over
// HTTP with JSON envelopes.
package api

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/example/sportshop/internal/api/middleware"
	"github.com/example/sportshop/internal/auth"
	"github.com/example/sportshop/internal/domain/cart"
	"github.com/example/sportshop/internal/domain/checkout"
	"github.com/example/sportshop/internal/domain/order"
	"github.com/example/sportshop/internal/domain/product"
	"github.com/example/sportshop/internal/domain/settings"
	"github.com/example/sportshop/internal/domain/user"
	"github.com/example/sportshop/internal/ratelimit"
	"github.com/example/sportshop/internal/report"
)

type Deps struct {
	Products       *product.Service
	Carts          *cart.Service
	Checkout       *checkout.Service
	Orders         *order.Service
	Users          *user.Service
	Settings       *settings.Service
	Reports        *report.Service
	JWT            *auth.JWTService
	// Limiter guards checkout, login and registration.
	Limiter        ratelimit.Limiter
	// TrustedProxies are the peers allowed to report the client address.
	TrustedProxies []netip.Prefix
	Location       *time.Location
	Logger         *slog.Logger
}

type Handlers struct {
	products *product.Service
	carts    *cart.Service
	checkout *checkout.Service
	orders   *order.Service
	users    *user.Service
	settings *settings.Service
	reports  *report.Service
	jwt      *auth.JWTService
	limiter  ratelimit.Limiter
	proxies  []netip.Prefix
	loc      *time.Location
	log      *slog.Logger
}

func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Handlers{
		products: d.Products,
		carts:    d.Carts,
		checkout: d.Checkout,
		orders:   d.Orders,
		users:    d.Users,
		settings: d.Settings,
		reports:  d.Reports,
		jwt:      d.JWT,
		limiter:  d.Limiter,
		proxies:  d.TrustedProxies,
		loc:      d.Location,
		log:      d.Logger.With("component", "api"),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// owner identifies the cart addressed by the request.
func owner(r *http.Request) cart.Owner {
	return cart.Owner{
		SessionID: middleware.SessionID(r.Context()),
		UserID:    middleware.GetUserID(r.Context()),
	}
}

// actor names the user performing an admin action for audit fields.
func actor(r *http.Request) string {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.UserID
}
