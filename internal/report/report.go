// Package report computes the admin dashboard figures. Revenue is always
// recomputed from the orders; the ledger view is shown beside it.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/sportshop/internal/apperr"
	"github.com/example/sportshop/internal/domain/order"
)

const maxRangeDays = 366

var ErrInvalidRange = apperr.Validation("invalid date range")

// Source answers revenue queries over the order collection.
type Source interface {
	RevenueSummary(ctx context.Context, from, to time.Time) (order.RevenueTotals, error)
	CountByStatus(ctx context.Context) (map[order.Status]int64, error)
	DailyRevenue(ctx context.Context, from, to time.Time, loc *time.Location) ([]order.DayRevenue, error)
}

// Ledger is the materialized revenue ledger.
type Ledger interface {
	Total(ctx context.Context) (int64, error)
}

type Dashboard struct {
	Revenue          int64                  `json:"revenue"`
	RevenueToday     int64                  `json:"revenue_today"`
	RevenueThisMonth int64                  `json:"revenue_this_month"`
	DeliveredOrders  int64                  `json:"delivered_orders"`
	OrdersByStatus   map[order.Status]int64 `json:"orders_by_status"`
	PendingActions   int64                  `json:"pending_actions"`
	// LedgerTotal is nil when the ledger view could not be read.
	LedgerTotal *int64    `json:"ledger_total"`
	LedgerDrift *int64    `json:"ledger_drift"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Service struct {
	orders Source
	ledger Ledger
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time
}

// NewService builds the reporting service. Day boundaries are taken in loc.
func NewService(orders Source, ledger Ledger, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders: orders,
		ledger: ledger,
		loc:    loc,
		log:    logger.With("component", "report"),
		now:    time.Now,
	}
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)

	all, err := s.orders.RevenueSummary(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("total revenue: %w", err)
	}
	daily, err := s.orders.RevenueSummary(ctx, today, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("revenue today: %w", err)
	}
	monthly, err := s.orders.RevenueSummary(ctx, month, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("revenue this month: %w", err)
	}
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	byStatus := make(map[order.Status]int64, len(order.Statuses))
	for _, st := range order.Statuses {
		byStatus[st] = counts[st]
	}

	d := &Dashboard{
		Revenue:          all.Revenue,
		RevenueToday:     daily.Revenue,
		RevenueThisMonth: monthly.Revenue,
		DeliveredOrders:  all.Orders,
		OrdersByStatus:   byStatus,
		PendingActions:   byStatus[order.StatusPending] + byStatus[order.StatusConfirmed],
		GeneratedAt:      now,
	}

	if s.ledger != nil {
		total, err := s.ledger.Total(ctx)
		if err != nil {
			s.log.Warn("ledger view unavailable", "error", err)
		} else {
			drift := all.Revenue - total
			d.LedgerTotal = &total
			d.LedgerDrift = &drift
			if drift != 0 {
				s.log.Warn("ledger drift detected", "authoritative", all.Revenue, "ledger", total, "drift", drift)
			}
		}
	}
	return d, nil
}

// RevenueByDay returns one point per day in [from, to], including days
// without revenue.
func (s *Service) RevenueByDay(ctx context.Context, from, to time.Time) ([]order.DayRevenue, error) {
	from = truncateDay(from, s.loc)
	to = truncateDay(to, s.loc)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > maxRangeDays {
		return nil, fmt.Errorf("%w: at most %d days", ErrInvalidRange, maxRangeDays)
	}

	points, err := s.orders.DailyRevenue(ctx, from, to.AddDate(0, 0, 1), s.loc)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]order.DayRevenue, len(points))
	for _, p := range points {
		byDay[p.Day.In(s.loc).Format(time.DateOnly)] = p
	}

	series := make([]order.DayRevenue, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		p := byDay[d.Format(time.DateOnly)]
		p.Day = d
		series = append(series, p)
	}
	return series, nil
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
