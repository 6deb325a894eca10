package retrain

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sod/surrogate/internal/logging"
)

// Scheduler options
type dbSchedulerConfig struct {
	maxSnapshots  int
	rebuildDBTime time.Duration
}

func newDBScheduler(config dbSchedulerConfig) *dbScheduler {
	return &dbScheduler{opts: config}
}

// The scheduler keeps the number of stored snapshots bounded.
type dbScheduler struct {
	opts dbSchedulerConfig
}

// rebuildSize removes every snapshot but the newest maxSnapshots.
func (s *dbScheduler) rebuildSize(ctx context.Context, pruneFn pruneSnapshotsFn) error {
	if s.opts.maxSnapshots <= 0 {
		return nil
	}
	n, err := pruneFn(ctx, s.opts.maxSnapshots)
	if err != nil {
		return fmt.Errorf("unable prune snapshots: %w", err)
	}
	if n > 0 {
		logging.FromContext(ctx).Infof("pruned %d outdated snapshots", n)
	}
	return nil
}

func (s *dbScheduler) schedule(ctx context.Context, pruneFn pruneSnapshotsFn) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.opts.rebuildDBTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.rebuildSize(ctx, pruneFn); err != nil {
				logger.Errorf("unable db rebuild size: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
