package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gotest.tools/assert"
)

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name  string
		ready ReadyFn
		code  int
	}{
		{name: "no_probe", code: http.StatusOK},
		{name: "ready", ready: func() bool { return true }, code: http.StatusOK},
		{name: "not_ready", ready: func() bool { return false }, code: http.StatusServiceUnavailable},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleHealth(context.Background(), test.ready).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != test.code {
				t.Errorf("got: %d, expected: %d", rec.Code, test.code)
			}
		})
	}
}

func TestServeHTTPHandler(t *testing.T) {
	srv, err := New("127.0.0.1:0", 4)
	assert.NilError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeHTTPHandler(ctx, HandleHealth(ctx, nil))
	}()

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	cancel()
	select {
	case err := <-errCh:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("http server did not stop")
	}
}

func TestServeGRPCHealth(t *testing.T) {
	srv, err := New("127.0.0.1:0", 0)
	assert.NilError(t, err)
	grpcSrv, hs := NewHealthServer("surrogate")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeGRPC(ctx, grpcSrv)
	}()

	dialCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	conn, err := grpc.DialContext(dialCtx, srv.Addr().String(), grpc.WithInsecure(), grpc.WithBlock())
	assert.NilError(t, err)
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(dialCtx, &healthpb.HealthCheckRequest{Service: "surrogate"})
		assert.NilError(t, err)
		return resp.Status
	}
	assert.Equal(t, check(), healthpb.HealthCheckResponse_NOT_SERVING)
	SetReady(hs, "surrogate", true)
	assert.Equal(t, check(), healthpb.HealthCheckResponse_SERVING)

	assert.NilError(t, conn.Close())
	cancel()
	select {
	case err := <-errCh:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}
