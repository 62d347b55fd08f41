package refresh

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes unusable refresh records. A failed sweep is logged,
// reported to OnError when set, and retried on the next tick.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// OnError receives every sweep failure, e.g. for Sentry capture.
	OnError func(error)
}

// NewSweeper returns a sweeper over store. A nil logger discards output.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of removed records.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	removed, err := s.store.SweepExpiredAndRevoked(ctx, s.now())
	if err != nil {
		s.logger.Error("refresh token sweep failed", slog.Any("error", err), slog.Int64("removed", removed))
		if s.OnError != nil {
			s.OnError(err)
		}
		return removed
	}
	if removed > 0 {
		s.logger.Info("refresh token sweep", slog.Int64("removed", removed))
	}
	return removed
}
