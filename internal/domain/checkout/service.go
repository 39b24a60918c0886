// Package checkout turns an active cart into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/sportshop/internal/delivery"
	"github.com/example/sportshop/internal/domain/cart"
	"github.com/example/sportshop/internal/domain/order"
)

const numberAttempts = 3

type Carts interface {
	MarkCheckedOut(ctx context.Context, c *cart.Cart, orderNumber string) error
}

type Orders interface {
	Create(ctx context.Context, d order.Draft, initial order.Status) (*order.Order, error)
	Delete(ctx context.Context, id string) error
}

type BankTransferDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
	Amount        int64  `json:"amount"`
	// Content is the transfer reference the customer must quote.
	Content string `json:"content"`
}

type WalletDetails struct {
	Provider string `json:"provider"`
	Phone    string `json:"phone"`
	Amount   int64  `json:"amount"`
	Content  string `json:"content"`
}

// Confirmation is returned to the customer after checkout. Exactly one of the
// payment specific parts is set.
type Confirmation struct {
	OrderID           string               `json:"order_id"`
	OrderNumber       string               `json:"order_number"`
	Status            order.Status         `json:"status"`
	PaymentMethod     order.PaymentMethod  `json:"payment_method"`
	FinalTotal        int64                `json:"final_total"`
	EstimatedDelivery time.Time            `json:"estimated_delivery"`
	BankTransfer      *BankTransferDetails `json:"bank_transfer,omitempty"`
	Wallet            *WalletDetails       `json:"wallet,omitempty"`
	DeliveryNote      string               `json:"delivery_note,omitempty"`
}

type Service struct {
	carts   Carts
	orders  Orders
	region  *delivery.Region
	initial order.Status
	log     *slog.Logger
	now     func() time.Time
}

// NewService builds the checkout flow. initial is the status new orders start
// in, pending or confirmed.
func NewService(carts Carts, orders Orders, region *delivery.Region, initial order.Status, logger *slog.Logger) (*Service, error) {
	if initial != order.StatusPending && initial != order.StatusConfirmed {
		return nil, fmt.Errorf("%w: %q", order.ErrInvalidInitial, initial)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		carts:   carts,
		orders:  orders,
		region:  region,
		initial: initial,
		log:     logger.With("component", "checkout"),
		now:     time.Now,
	}, nil
}

func (s *Service) Region() *delivery.Region {
	return s.region
}

// Process validates f, places the order and checks the cart out. If the cart
// cannot be checked out the order is removed again.
func (s *Service) Process(ctx context.Context, c *cart.Cart, f Form) (*Confirmation, error) {
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if c.Status != cart.StatusActive {
		return nil, cart.ErrCartCheckedOut
	}
	v, err := validate(f, s.region)
	if err != nil {
		return nil, err
	}

	now := s.now()
	draft := order.Draft{
		UserID:            c.UserID,
		SessionID:         c.SessionID,
		Customer:          v.customer,
		ShippingAddress:   v.address,
		Note:              v.note,
		PaymentMethod:     v.payment,
		Items:             orderItems(c.Items),
		Pricing:           order.Pricing{ItemsTotal: c.TotalPrice, ShippingFee: c.ShippingFee, FinalTotal: c.FinalTotal},
		EstimatedDelivery: v.district.EstimatedDelivery(now),
	}

	o, err := s.place(ctx, draft, now)
	if err != nil {
		return nil, err
	}

	if err := s.carts.MarkCheckedOut(ctx, c, o.Number); err != nil {
		if derr := s.orders.Delete(context.WithoutCancel(ctx), o.ID); derr != nil {
			s.log.Error("failed to remove order after cart checkout failed",
				"order_id", o.ID, "order_number", o.Number, "error", derr)
		}
		s.log.Warn("checkout aborted", "cart_id", c.ID, "order_number", o.Number, "error", err)
		return nil, fmt.Errorf("check out cart: %w", err)
	}

	s.log.Info("checkout completed",
		"cart_id", c.ID, "order_number", o.Number, "payment_method", o.PaymentMethod, "final_total", o.Pricing.FinalTotal)
	return s.confirmation(o), nil
}

func (s *Service) place(ctx context.Context, d order.Draft, now time.Time) (*order.Order, error) {
	var err error
	for range numberAttempts {
		d.Number = order.NewNumber(now)
		var o *order.Order
		o, err = s.orders.Create(ctx, d, s.initial)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, order.ErrDuplicateOrderNumber) {
			return nil, err
		}
	}
	return nil, err
}

func (s *Service) confirmation(o *order.Order) *Confirmation {
	conf := &Confirmation{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		Status:            o.Status,
		PaymentMethod:     o.PaymentMethod,
		FinalTotal:        o.Pricing.FinalTotal,
		EstimatedDelivery: o.EstimatedDelivery,
	}
	switch o.PaymentMethod {
	case order.PaymentBankTransfer:
		bank := s.region.BankTransfer
		conf.BankTransfer = &BankTransferDetails{
			BankName:      bank.BankName,
			AccountNumber: bank.AccountNumber,
			AccountHolder: bank.AccountHolder,
			Amount:        o.Pricing.FinalTotal,
			Content:       o.Number,
		}
	case order.PaymentWallet:
		conf.Wallet = &WalletDetails{
			Provider: s.region.Wallet.Provider,
			Phone:    s.region.Wallet.Phone,
			Amount:   o.Pricing.FinalTotal,
			Content:  o.Number,
		}
	default:
		conf.DeliveryNote = fmt.Sprintf("Please prepare %d VND in cash. Your order is expected on %s.",
			o.Pricing.FinalTotal, o.EstimatedDelivery.Format("02/01/2006"))
	}
	return conf
}

func orderItems(items []cart.Item) []order.Item {
	out := make([]order.Item, 0, len(items))
	for _, it := range items {
		out = append(out, order.Item{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Image:       it.Image,
			Color:       it.Color,
			Size:        it.Size,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}
	return out
}
