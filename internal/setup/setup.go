package setup

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/valyala/fastrand"

	"github.com/go-sod/surrogate/internal/alert"
	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/learner"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/metrics"
	"github.com/go-sod/surrogate/internal/retrain"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/srvenv"
	"github.com/go-sod/surrogate/internal/truth"
)

type RetrainConfigProvider interface {
	RetrainConfig() *retrain.Config
}

type NotifierConfigProvider interface {
	NotifyConfig() *alert.Config
}

type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

type TruthConfigProvider interface {
	TruthConfig() *truth.Config
}

type MetricsConfigProvider interface {
	MetricsConfig() *metrics.Config
}

func Setup(ctx context.Context, config interface{}) (*srvenv.SrvEnv, error) {
	logger := logging.FromContext(ctx)
	var serverEnvOpts []srvenv.Option
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var (
		db                *database.DB
		truthDB           *truth.DB
		learning          = learner.Default()
		notifierProvideFn alert.ProvideFn
	)
	// closes what was opened so far
	fail := func(err error) (*srvenv.SrvEnv, error) {
		_ = srvenv.New(serverEnvOpts...).Close(ctx)
		return nil, err
	}

	if retrainConfigProvider, ok := config.(RetrainConfigProvider); ok {
		logger.Info("Configuring learning")
		cfg, err := LoadLearning(ctx, retrainConfigProvider.RetrainConfig())
		if err != nil {
			return nil, err
		}
		learning = cfg
		serverEnvOpts = append(serverEnvOpts, srvenv.WithLearning(learning))
	}

	if dbConfigProvider, ok := config.(DatabaseConfigProvider); ok {
		logger.Info("Configuring snapshot db")
		dbFromEnv, err := database.New(ctx, dbConfigProvider.DatabaseConfig())
		if err != nil {
			return fail(fmt.Errorf("unable to connect to database: %w", err))
		}
		db = dbFromEnv
		serverEnvOpts = append(serverEnvOpts, srvenv.WithDatabase(db))
	}

	if truthConfigProvider, ok := config.(TruthConfigProvider); ok {
		logger.Info("Configuring ground truth db")
		cfg := truthConfigProvider.TruthConfig()
		truthFromEnv, err := truth.Open(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("unable to connect to ground truth database: %w", err))
		}
		truthDB = truthFromEnv
		serverEnvOpts = append(serverEnvOpts, srvenv.WithTruth(truthDB))
		if cfg.InitTables {
			s, err := schema.Lookup(learning.Schema)
			if err != nil {
				return fail(err)
			}
			if err := truthDB.InitTables(ctx, s); err != nil {
				return fail(err)
			}
		}
	}

	if metricsConfigProvider, ok := config.(MetricsConfigProvider); ok && metricsConfigProvider.MetricsConfig().Enabled {
		logger.Info("Configuring metrics")
		handler, err := metrics.Register(metricsConfigProvider.MetricsConfig())
		if err != nil {
			return fail(fmt.Errorf("unable register metrics: %w", err))
		}
		serverEnvOpts = append(serverEnvOpts, srvenv.WithMetrics(handler))
	}

	if notifyConfigProvider, ok := config.(NotifierConfigProvider); ok {
		logger.Info("Configuring notifier")
		provideFn, err := ProvideNotifierFor(ctx, notifyConfigProvider, db)
		if err != nil {
			return fail(fmt.Errorf("unable create notifier provide function: %w", err))
		}
		notifierProvideFn = provideFn
		serverEnvOpts = append(serverEnvOpts, srvenv.WithNotifier(notifierProvideFn))
	}

	if retrainConfigProvider, ok := config.(RetrainConfigProvider); ok && notifierProvideFn != nil {
		logger.Info("Configuring retrain manager")
		provideFn, err := ProvideRetrainFor(retrainConfigProvider, learning, truthDB, db)
		if err != nil {
			return fail(fmt.Errorf("unable create retrain provide function: %w", err))
		}
		serverEnvOpts = append(serverEnvOpts, srvenv.WithRetrain(provideFn))
	}

	return srvenv.New(serverEnvOpts...), nil
}

// LoadLearning reads the learning parameters named by cfg, or the defaults. An unset seed is
// drawn at random so that successive processes build different committees.
func LoadLearning(ctx context.Context, cfg *retrain.Config) (learner.Config, error) {
	logger := logging.FromContext(ctx)
	learning := learner.Default()
	if cfg.LearningConfig != "" {
		loaded, err := learner.LoadFile(cfg.LearningConfig)
		if err != nil {
			return learner.Config{}, err
		}
		learning = loaded
	}
	if learning.Ensemble.Seed == 0 {
		learning.Ensemble.Seed = int64(fastrand.Uint32())
	}
	logger.Debugf("learning config: %s", spew.Sdump(learning))
	return learning, nil
}

func ProvideNotifierFor(ctx context.Context, provider NotifierConfigProvider, db *database.DB) (alert.ProvideFn, error) {
	cfg := provider.NotifyConfig()
	if !cfg.Enabled() {
		return func(shutdownCh chan<- error) (alert.Manager, error) {
			return alert.NewNoop(shutdownCh), nil
		}, nil
	}
	if db == nil {
		return nil, fmt.Errorf("notifier requires the snapshot database")
	}
	return func(shutdownCh chan<- error) (alert.Manager, error) {
		pub, err := alert.NewRedisPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return alert.New(
			db,
			pub,
			shutdownCh,
			alert.WithInterval(cfg.Interval),
			alert.WithRequestTimeout(cfg.RequestTimeout),
			alert.WithChannel(cfg.Channel),
		)
	}, nil
}

func ProvideRetrainFor(provider RetrainConfigProvider, learning learner.Config, truthDB *truth.DB, db *database.DB) (retrain.ProvideFn, error) {
	cfg := provider.RetrainConfig()
	if truthDB == nil || db == nil {
		return nil, fmt.Errorf("retrain manager requires both databases")
	}
	opts := []retrain.Option{
		retrain.WithInterval(cfg.Interval),
		retrain.WithMinRows(cfg.MinRows),
		retrain.WithMaxSnapshots(cfg.MaxSnapshots),
		retrain.WithRebuildDBTime(cfg.RebuildDBTime),
	}
	if cfg.PinSnapshot != "" {
		id, err := uuid.Parse(cfg.PinSnapshot)
		if err != nil {
			return nil, fmt.Errorf("invalid pinned snapshot id %q: %w", cfg.PinSnapshot, err)
		}
		opts = append(opts, retrain.WithPinnedSnapshot(id))
	}
	return func(notifier alert.Manager, shutdownCh chan<- error) (retrain.Manager, error) {
		return retrain.New(truthDB, db, learning, notifier, shutdownCh, opts...)
	}, nil
}
