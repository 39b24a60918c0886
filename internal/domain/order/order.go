package order

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/sportshop/internal/apperr"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipping  Status = "shipping"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var Statuses = []Status{StatusPending, StatusConfirmed, StatusShipping, StatusDelivered, StatusCancelled}

type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "cod"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "momo"
)

var PaymentMethods = []PaymentMethod{PaymentCOD, PaymentBankTransfer, PaymentWallet}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// ActorSystem marks transitions made by the shop itself.
const ActorSystem = "system"

var (
	ErrOrderNotFound        = apperr.NotFound("order not found")
	ErrEmptyOrder           = apperr.Validation("order must have at least one item")
	ErrUnknownStatus        = apperr.Validation("unknown order status")
	ErrUnknownPayment       = apperr.DomainConstraint("unsupported payment method")
	ErrInvalidTransition    = apperr.DomainConstraint("invalid order status transition")
	ErrSameStatus           = apperr.DomainConstraint("order already has this status")
	ErrNotCancellable       = apperr.DomainConstraint("order can no longer be cancelled")
	ErrInvalidInitial       = apperr.Validation("initial order status must be pending or confirmed")
	ErrConcurrentUpdate     = apperr.Conflict("order was modified by another request")
	ErrDuplicateOrderNumber = apperr.Conflict("order number already exists")
)

// transitions is the single authority on order status changes. Delivered
// only leaves through the revenue reversal into cancelled.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipping, StatusCancelled},
	StatusShipping:  {StatusDelivered, StatusCancelled},
	StatusDelivered: {StatusCancelled},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is an allowed change.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	return slices.Clone(transitions[s])
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Statuses, st) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(PaymentMethods, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPayment, s)
	}
	return m, nil
}

type Customer struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Phone string `json:"phone" bson:"phone"`
}

type Address struct {
	Street       string `json:"street" bson:"street"`
	Ward         string `json:"ward,omitempty" bson:"ward,omitempty"`
	DistrictCode string `json:"district_code" bson:"district_code"`
	DistrictName string `json:"district_name" bson:"district_name"`
	City         string `json:"city" bson:"city"`
}

type Item struct {
	ProductID   string `json:"product_id" bson:"product_id"`
	ProductName string `json:"product_name" bson:"product_name"`
	Image       string `json:"image,omitempty" bson:"image,omitempty"`
	Color       string `json:"color" bson:"color"`
	Size        string `json:"size" bson:"size"`
	Quantity    int    `json:"quantity" bson:"quantity"`
	Price       int64  `json:"price" bson:"price"`
	Subtotal    int64  `json:"subtotal" bson:"subtotal"`
}

type Pricing struct {
	ItemsTotal  int64 `json:"items_total" bson:"items_total"`
	ShippingFee int64 `json:"shipping_fee" bson:"shipping_fee"`
	FinalTotal  int64 `json:"final_total" bson:"final_total"`
}

type HistoryEntry struct {
	Status Status    `json:"status" bson:"status"`
	At     time.Time `json:"at" bson:"at"`
	Note   string    `json:"note,omitempty" bson:"note,omitempty"`
	Actor  string    `json:"actor" bson:"actor"`
}

type Order struct {
	ID                string         `json:"id" bson:"_id"`
	Number            string         `json:"order_number" bson:"order_number"`
	UserID            string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	SessionID         string         `json:"session_id" bson:"session_id"`
	Status            Status         `json:"status" bson:"status"`
	PaymentMethod     PaymentMethod  `json:"payment_method" bson:"payment_method"`
	PaymentStatus     PaymentStatus  `json:"payment_status" bson:"payment_status"`
	Customer          Customer       `json:"customer" bson:"customer"`
	ShippingAddress   Address        `json:"shipping_address" bson:"shipping_address"`
	Note              string         `json:"note,omitempty" bson:"note,omitempty"`
	Items             []Item         `json:"items" bson:"items"`
	Pricing           Pricing        `json:"pricing" bson:"pricing"`
	EstimatedDelivery time.Time      `json:"estimated_delivery" bson:"estimated_delivery"`
	TrackingCode      string         `json:"tracking_code,omitempty" bson:"tracking_code,omitempty"`
	ConfirmedAt       *time.Time     `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	ConfirmedBy       string         `json:"confirmed_by,omitempty" bson:"confirmed_by,omitempty"`
	ShippedAt         *time.Time     `json:"shipped_at,omitempty" bson:"shipped_at,omitempty"`
	ShippedBy         string         `json:"shipped_by,omitempty" bson:"shipped_by,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	DeliveredBy       string         `json:"delivered_by,omitempty" bson:"delivered_by,omitempty"`
	CancelledAt       *time.Time     `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelledBy       string         `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelReason      string         `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	IsCompleted       bool           `json:"is_completed" bson:"is_completed"`
	RevenueRecorded   bool           `json:"revenue_recorded" bson:"revenue_recorded"`
	History           []HistoryEntry `json:"history" bson:"history"`
	Version           int            `json:"version" bson:"version"`
	CreatedAt         time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" bson:"updated_at"`
}

// Draft is the validated input an order is placed from.
type Draft struct {
	Number            string
	UserID            string
	SessionID         string
	Customer          Customer
	ShippingAddress   Address
	Note              string
	PaymentMethod     PaymentMethod
	Items             []Item
	Pricing           Pricing
	EstimatedDelivery time.Time
}

// Place creates a pending order from d and, when initial is confirmed,
// confirms it on behalf of the system.
func Place(d Draft, initial Status, now time.Time) (*Order, error) {
	if len(d.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if initial != StatusPending && initial != StatusConfirmed {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInitial, initial)
	}

	o := &Order{
		ID:                uuid.New().String(),
		Number:            d.Number,
		UserID:            d.UserID,
		SessionID:         d.SessionID,
		Status:            StatusPending,
		PaymentMethod:     d.PaymentMethod,
		PaymentStatus:     PaymentPending,
		Customer:          d.Customer,
		ShippingAddress:   d.ShippingAddress,
		Note:              d.Note,
		Items:             slices.Clone(d.Items),
		Pricing:           d.Pricing,
		EstimatedDelivery: d.EstimatedDelivery,
		History: []HistoryEntry{{
			Status: StatusPending,
			At:     now,
			Note:   "Order placed",
			Actor:  ActorSystem,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if initial == StatusConfirmed {
		if err := o.Transition(StatusConfirmed, ActorSystem, "Confirmed at checkout", now); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Order) CanTransitionTo(target Status) bool {
	return CanTransition(o.Status, target)
}

func (o *Order) transitionError(target Status) error {
	if o.Status == target {
		return fmt.Errorf("%w: order %s is already %s", ErrSameStatus, o.Number, target)
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
}

// Transition moves the order to target, stamping the milestone fields and
// appending a history entry.
func (o *Order) Transition(target Status, actor, note string, now time.Time) error {
	if !slices.Contains(Statuses, target) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	if actor == "" {
		actor = ActorSystem
	}

	at := now
	switch target {
	case StatusConfirmed:
		o.ConfirmedAt = &at
		o.ConfirmedBy = actor
	case StatusShipping:
		o.ShippedAt = &at
		o.ShippedBy = actor
		if o.TrackingCode == "" {
			o.TrackingCode = newTrackingCode()
		}
	case StatusDelivered:
		o.DeliveredAt = &at
		o.DeliveredBy = actor
		o.PaymentStatus = PaymentPaid
		o.IsCompleted = true
		o.RevenueRecorded = true
	case StatusCancelled:
		o.CancelledAt = &at
		o.CancelledBy = actor
		o.CancelReason = note
		o.IsCompleted = false
		o.RevenueRecorded = false
		if o.PaymentStatus == PaymentPaid {
			o.PaymentStatus = PaymentRefunded
		}
	}

	if note == "" {
		note = defaultNote(o.Status, target)
	}
	o.Status = target
	o.UpdatedAt = now
	o.History = append(o.History, HistoryEntry{Status: target, At: now, Note: note, Actor: actor})
	return nil
}

// CountsAsRevenue reports whether the order is part of the revenue aggregate.
func (o *Order) CountsAsRevenue() bool {
	return o.Status == StatusDelivered && o.IsCompleted
}

func defaultNote(from, to Status) string {
	return fmt.Sprintf("Status changed from %s to %s", from, to)
}

// NewNumber returns an external order number such as SS260601-3FA9C2.
func NewNumber(now time.Time) string {
	return "SS" + now.Format("060102") + "-" + randomHex(6)
}

func newTrackingCode() string {
	return "SPT" + randomHex(10)
}

func randomHex(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:n])
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	cp.History = slices.Clone(o.History)
	cp.ConfirmedAt = cloneTime(o.ConfirmedAt)
	cp.ShippedAt = cloneTime(o.ShippedAt)
	cp.DeliveredAt = cloneTime(o.DeliveredAt)
	cp.CancelledAt = cloneTime(o.CancelledAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RevenueTotals is the live revenue aggregate over delivered, completed
// orders.
type RevenueTotals struct {
	Revenue int64 `json:"revenue" bson:"revenue"`
	Orders  int64 `json:"orders" bson:"orders"`
}

type DayRevenue struct {
	Day     time.Time `json:"day" bson:"_id"`
	Revenue int64     `json:"revenue" bson:"revenue"`
	Orders  int64     `json:"orders" bson:"orders"`
}
