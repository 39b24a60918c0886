package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// RevenueEntry is the ledger view row of one order: its net revenue after the
// latest applied event.
type RevenueEntry struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Amount      int64     `json:"amount"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RevenueView is the materialized ledger view.
type RevenueView interface {
	// Apply stores e unless an entry with the same or a newer version is
	// already present. It reports whether e was stored.
	Apply(ctx context.Context, e RevenueEntry) (bool, error)
	Total(ctx context.Context) (int64, error)
	Entries(ctx context.Context) ([]RevenueEntry, error)
	Reset(ctx context.Context) error
}

// MemoryRevenueView is an in-process RevenueView.
type MemoryRevenueView struct {
	mu      sync.RWMutex
	entries map[string]RevenueEntry
}

func NewMemoryRevenueView() *MemoryRevenueView {
	return &MemoryRevenueView{entries: make(map[string]RevenueEntry)}
}

func (v *MemoryRevenueView) Apply(ctx context.Context, e RevenueEntry) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.entries[e.OrderID]; ok && cur.Version >= e.Version {
		return false, nil
	}
	v.entries[e.OrderID] = e
	return true, nil
}

func (v *MemoryRevenueView) Total(ctx context.Context) (int64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var total int64
	for _, e := range v.entries {
		total += e.Amount
	}
	return total, nil
}

func (v *MemoryRevenueView) Entries(ctx context.Context) ([]RevenueEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]RevenueEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b RevenueEntry) int { return strings.Compare(a.OrderNumber, b.OrderNumber) })
	return out, nil
}

func (v *MemoryRevenueView) Reset(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]RevenueEntry)
	return nil
}
