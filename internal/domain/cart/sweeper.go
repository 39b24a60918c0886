package cart

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically purges abandoned carts. It takes no lock: only carts
// idle past the retention window are touched.
type Sweeper struct {
	service  *Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{service: service, interval: interval, log: logger.With("component", "sweeper")}
}

// Run sweeps once per interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.log.Info("abandoned cart sweeper started", "interval", sw.interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	n, err := sw.service.PurgeAbandoned(ctx)
	if err != nil {
		sw.log.Error("purge abandoned carts", "error", err)
		return
	}
	if n > 0 {
		sw.log.Info("purged abandoned carts", "count", n)
	}
}
