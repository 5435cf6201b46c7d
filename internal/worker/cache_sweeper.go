package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
)

// Purgeable is a TTL cache whose expired entries can be dropped in bulk.
type Purgeable interface {
	Purge() int
	Len() int
}

// CacheSweeper periodically drops expired entries from in-process caches. Entries also
// expire lazily on read; the sweep only bounds memory held by keys nobody asks for again.
type CacheSweeper struct {
	caches   map[string]Purgeable
	logger   *slog.Logger
	interval time.Duration
}

// NewCacheSweeper sweeps every named cache once per interval.
func NewCacheSweeper(caches map[string]Purgeable, interval time.Duration, logger *slog.Logger) *CacheSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &CacheSweeper{caches: caches, logger: logger, interval: interval}
}

// Start runs the sweep loop until ctx is done.
func (w *CacheSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("cache sweeper started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep purges every cache once and returns the number of entries evicted.
func (w *CacheSweeper) Sweep() int {
	total := 0
	for name, c := range w.caches {
		evicted := c.Purge()
		remaining := c.Len()
		metrics.ObserveSweep(name, evicted, remaining)
		total += evicted
		if evicted > 0 {
			w.logger.Debug("cache swept",
				slog.String("cache", name),
				slog.Int("evicted", evicted),
				slog.Int("remaining", remaining),
			)
		}
	}
	return total
}
