// Package ledger keeps the admin revenue ledger: an append-only log of
// revenue events per order and the view folded from it.
package ledger

import (
	"time"
)

const AggregateType = "OrderRevenue"

const (
	EventRevenueRecorded = "RevenueRecorded"
	EventRevenueReversed = "RevenueReversed"
)

// RevenueEvent is the payload of both ledger event types. Amount is the
// signed change; Net is the order's revenue after the change.
type RevenueEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Amount      int64     `json:"amount"`
	Net         int64     `json:"net"`
	Actor       string    `json:"actor"`
	OccurredAt  time.Time `json:"occurred_at"`
}
