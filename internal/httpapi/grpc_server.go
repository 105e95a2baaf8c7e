package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hrportal.org/internal/obs"
)

// ServiceName is the gRPC health service name of the portal.
const ServiceName = "hrportal.Portal"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer serves the standard gRPC health protocol. Status follows the
// same readiness check as /readyz: SERVING only with usable backend settings
// and a reachable database.
type GRPCServer struct {
	*health.Server
	readiness readinessChecker
	log       *obs.Logger
}

// NewGRPCServer creates the health service; the initial status is NOT_SERVING
// until the first refresh.
func NewGRPCServer(r readinessChecker, log *obs.Logger) *GRPCServer {
	if log == nil {
		log = obs.Discard()
	}
	s := &GRPCServer{Server: health.NewServer(), readiness: r, log: log}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to g.
func (s *GRPCServer) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s)
}

// Check re-evaluates readiness before answering.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.Refresh(ctx)
	return s.Server.Check(ctx, req)
}

// Refresh evaluates readiness and publishes the result to Check and Watch
// callers.
func (s *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			s.log.Warn(ctx, "grpc health not serving", obs.Fields{"error": err})
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	obs.SetReady(st == healthpb.HealthCheckResponse_SERVING)
	s.set(st)
	return st
}

// Run refreshes the status every interval until ctx ends, then marks the
// server as shutting down.
func (s *GRPCServer) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

func (s *GRPCServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.SetServingStatus("", st)
	s.SetServingStatus(ServiceName, st)
}
