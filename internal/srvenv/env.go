package srvenv

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-sod/surrogate/internal/alert"
	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/learner"
	"github.com/go-sod/surrogate/internal/retrain"
	"github.com/go-sod/surrogate/internal/truth"
)

type Option func(*SrvEnv) *SrvEnv

func New(opts ...Option) *SrvEnv {
	env := &SrvEnv{}
	for _, f := range opts {
		env = f(env)
	}

	return env
}

type SrvEnv struct {
	database *database.DB
	truth    *truth.DB
	learning learner.Config
	retrain  retrain.ProvideFn
	notifier alert.ProvideFn
	metrics  http.Handler
}

func (s *SrvEnv) ProvideNotifier() alert.ProvideFn {
	return s.notifier
}

func (s *SrvEnv) ProvideRetrain() retrain.ProvideFn {
	return s.retrain
}

func (s *SrvEnv) Database() *database.DB {
	return s.database
}

func (s *SrvEnv) Truth() *truth.DB {
	return s.truth
}

func (s *SrvEnv) Learning() learner.Config {
	return s.learning
}

// MetricsHandler is nil when metrics are disabled.
func (s *SrvEnv) MetricsHandler() http.Handler {
	return s.metrics
}

func WithNotifier(fn alert.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.notifier = fn
		return s
	}
}

func WithRetrain(fn retrain.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.retrain = fn
		return s
	}
}

func WithDatabase(db *database.DB) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.database = db
		return s
	}
}

func WithTruth(db *truth.DB) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.truth = db
		return s
	}
}

func WithLearning(cfg learner.Config) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.learning = cfg
		return s
	}
}

func WithMetrics(h http.Handler) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.metrics = h
		return s
	}
}

func (s *SrvEnv) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs []error
	if s.truth != nil {
		if err := s.truth.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.database != nil {
		if err := s.database.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close environment: %v", errs)
	}
	return nil
}
