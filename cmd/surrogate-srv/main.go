package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-sod/surrogate/internal/buildinfo"
	"github.com/go-sod/surrogate/internal/collect"
	surrogate "github.com/go-sod/surrogate/internal/config"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/predict"
	"github.com/go-sod/surrogate/internal/server"
	"github.com/go-sod/surrogate/internal/setup"
	"github.com/go-sod/surrogate/internal/shutdown"
)

const healthService = "surrogate"

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stdout,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx, done); err != nil {
		done()
		logger.Fatal(err)
	}

	defer done()
}

func run(ctx context.Context, cancel func()) error {
	logger := logging.FromContext(ctx)
	// notifier and retrain manager
	shutdownCh := make(chan error, 2)
	config := surrogate.Config{}
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(context.Background())

	notifier, err := env.ProvideNotifier()(shutdownCh)
	if err != nil {
		return fmt.Errorf("notifier provider function error: %w", err)
	}
	manager, err := env.ProvideRetrain()(notifier, shutdownCh)
	if err != nil {
		return fmt.Errorf("retrain provider function error: %w", err)
	}
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("retrain.Run: %w", err)
	}

	srv, err := server.New(config.SrvAddr, config.MaxConnections)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	grpcSrv, err := server.New(config.GRPCAddr, 0)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	mux := http.NewServeMux()
	predictHandler, err := predict.NewHandler(&config.Predict, manager)
	if err != nil {
		return fmt.Errorf("predict.NewHandler: %w", err)
	}
	mux.Handle("/predict", predictHandler)
	collectHandler, err := collect.NewHandler(&config.Collect, manager.Schema(), env.Truth())
	if err != nil {
		return fmt.Errorf("collect.NewHandler: %w", err)
	}
	mux.Handle("/collect", collectHandler)
	mux.Handle("/health", server.HandleHealth(ctx, manager.Ready))
	if h := env.MetricsHandler(); h != nil {
		mux.Handle(config.Metrics.Path, h)
	}

	healthSrv, health := server.NewHealthServer(healthService)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			server.SetReady(health, healthService, manager.Ready())
			select {
			case <-ticker.C:
			case <-ctx.Done():
				health.Shutdown()
				return
			}
		}
	}()

	go func() {
		if err := srv.ServeHTTPHandler(ctx, mux); err != nil {
			logger.Errorf("http server: %v", err)
			cancel()
		}
	}()
	go func() {
		if err := grpcSrv.ServeGRPC(ctx, healthSrv); err != nil {
			logger.Errorf("grpc server: %v", err)
			cancel()
		}
	}()

	var shutdownErr error
	for i := 0; i < cap(shutdownCh); i++ {
		if err := <-shutdownCh; err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
