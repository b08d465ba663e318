package semantic

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// indexGuard serializes all vector-index access. The flat index tolerates
// neither concurrent writes nor a write concurrent with a query, and the
// guard enforces that from the outside. Acquisition carries a deadline so
// a stuck holder surfaces as a timeout instead of blocking forever.
type indexGuard struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func newIndexGuard(timeout time.Duration) *indexGuard {
	if timeout <= 0 {
		timeout = defaultGuardTimeout
	}
	return &indexGuard{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// acquire takes the guard, waiting at most the guard timeout (or less if
// ctx expires first). The returned release must be called exactly once.
func (g *indexGuard) acquire(ctx context.Context) (release func(), err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring vector index guard: %w", err)
	}
	return func() { g.sem.Release(1) }, nil
}
