package main

import (
	"context"
	"fmt"
	"os"
	"time"

	surrogate "github.com/go-sod/surrogate/internal/config"
	"github.com/go-sod/surrogate/internal/learner"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/setup"
	"github.com/go-sod/surrogate/internal/shutdown"
	"github.com/go-sod/surrogate/internal/snapshot"
	snapshotDb "github.com/go-sod/surrogate/internal/snapshot/database"
)

func main() {
	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx); err != nil {
		done()
		logger.Fatal(err)
	}
	defer done()
}

func run(ctx context.Context) error {
	config := surrogate.TrainConfig{}
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(context.Background())

	learning := env.Learning()
	s, err := schema.Lookup(learning.Schema)
	if err != nil {
		return err
	}
	rows, err := env.Truth().Rows(ctx, s)
	if err != nil {
		return fmt.Errorf("read ground truth: %w", err)
	}
	n, _ := rows.Dims()

	model, res, err := learner.Retrain(ctx, rows, learning)
	if err != nil {
		return err
	}
	snap, err := snapshot.New(model, res, n, time.Now())
	if err != nil {
		return err
	}
	snapshots := snapshotDb.New(env.Database())
	if err := snapshots.Store(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	pruned := 0
	if keep := config.Retrain.MaxSnapshots; keep > 0 {
		if pruned, err = snapshots.DeleteOlder(ctx, s.Kind, keep); err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	kept, err := snapshots.Keys(s.Kind)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "snapshot:   %s\n", snap.ID)
	_, _ = fmt.Fprintf(os.Stdout, "schema:     %s\n", s.Kind)
	_, _ = fmt.Fprintf(os.Stdout, "rows:       %d\n", n)
	_, _ = fmt.Fprintf(os.Stdout, "members:    %d/%d in %d attempts\n", len(res.Members), learning.Ensemble.Members, res.Attempts)
	_, _ = fmt.Fprintf(os.Stdout, "thresholds: %v\n", model.Thresholds())
	_, _ = fmt.Fprintf(os.Stdout, "inactive:   %v\n", model.Inactive())
	_, _ = fmt.Fprintf(os.Stdout, "pruned:     %d\n", pruned)
	_, _ = fmt.Fprintf(os.Stdout, "kept:       %d\n", len(kept))
	for _, id := range kept {
		_, _ = fmt.Fprintf(os.Stdout, "  %s\n", id)
	}
	return nil
}
