package server

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/go-sod/surrogate/internal/logging"
)

// ReadyFn reports whether the service can answer queries.
type ReadyFn func() bool

// HandleHealth answers 200 while ready reports true and 503 otherwise.
func HandleHealth(ctx context.Context, ready ReadyFn) http.Handler {
	logger := logging.FromContext(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			logger.Debugf("health: not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status": "NOT_SERVING"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status": "SERVING"}`)
	})
}

// NewHealthServer returns a grpc server exposing the standard health service for service.
// The returned health server is updated by the caller.
func NewHealthServer(service string) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// SetReady mirrors ready into the grpc health status of service.
func SetReady(hs *health.Server, service string, ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(service, status)
}
