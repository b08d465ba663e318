package semantic

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler replays pending links into the vector index.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Repairer periodically sweeps the link table for rows stuck in pending
// and replays them. It covers the crash window between the metadata
// commit and the vector-index write, and vector writes that failed at
// ingest time.
type Repairer struct {
	service Reconciler
	poll    time.Duration
	logger  *slog.Logger
}

// NewRepairer creates a Repairer over a reconcilable service.
// If pollInterval is <= 0, it defaults to 30s.
func NewRepairer(service Reconciler, pollInterval time.Duration) *Repairer {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Repairer{
		service: service,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run sweeps once immediately, then on every poll tick until ctx is
// cancelled.
func (r *Repairer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("repair sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce performs a single repair sweep. Returns the number of links
// repaired.
func (r *Repairer) RunOnce(ctx context.Context) (int, error) {
	return r.service.Reconcile(ctx)
}
