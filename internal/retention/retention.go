// internal/retention/retention.go
//
// Package retention prunes old turns from the history store. A daily cron
// entry removes everything past the configured age; one sweep also runs
// shortly after startup so restart-heavy deployments still converge.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/fathom/internal/history"
)

const sweepTimeout = time.Minute

// Sweeper deletes turns older than maxAge.
type Sweeper struct {
	store  history.Store
	maxAge time.Duration
	cron   *cron.Cron
}

// New creates a Sweeper. maxAge <= 0 disables sweeping entirely.
func New(store history.Store, maxAge time.Duration) *Sweeper {
	return &Sweeper{store: store, maxAge: maxAge, cron: cron.New()}
}

// Start schedules the daily sweep and kicks off an immediate one.
func (s *Sweeper) Start() error {
	if s.maxAge <= 0 {
		return nil
	}
	if _, err := s.cron.AddFunc("@daily", s.runSweep); err != nil {
		return err
	}
	s.cron.Start()
	go s.runSweep()
	return nil
}

// Stop stops the cron ticker.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.Sweep(ctx)
}

// Sweep removes turns older than the retention window once.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)
	n, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("retention sweep removed turns", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
