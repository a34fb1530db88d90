package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
)

// Readiness reports whether the sentinel is armed on a present window.
type Readiness interface {
	Ready() bool
}

// Health serves the standard gRPC health protocol for HealthService.
// The overall ("") status is SERVING while the process is up; HealthService
// is SERVING only while Readiness reports ready.
type Health struct {
	srv   *health.Server
	ready Readiness
}

// NewGRPCServer creates a gRPC server with trace interceptors and the health service registered.
func NewGRPCServer(ready Readiness) (*grpc.Server, *Health) {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
	)
	h := &Health{srv: health.NewServer(), ready: ready}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, h.srv)
	return gs, h
}

// Update sets HealthService's status from the current readiness.
func (h *Health) Update() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if h.ready.Ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(HealthService, st)
	return st
}

// Run refreshes the status every interval until ctx is done, then marks
// every service NOT_SERVING.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := h.Update()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			if st := h.Update(); st != last {
				trace.Logger(ctx).Info("health status changed", "service", HealthService, "status", st.String())
				last = st
			}
		}
	}
}
