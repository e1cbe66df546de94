package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service so orchestrators that probe
// over gRPC see the same readiness as /ready.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	checks   map[string]HealthCheckFunc
	logger   zerolog.Logger
}

// NewGRPCHealthServer listens on addr. The overall service ("") and serviceName are
// reported SERVING only while every check passes.
func NewGRPCHealthServer(addr string, checks map[string]HealthCheckFunc, logger zerolog.Logger) (*GRPCHealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for grpc health on %s: %w", addr, err)
	}

	s := &GRPCHealthServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		listener: lis,
		checks:   checks,
		logger:   logger.With().Str("component", "grpc_health").Logger(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.Refresh(context.Background())

	return s, nil
}

// Addr returns the listening address
func (s *GRPCHealthServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks serving requests and refreshing the status every interval until ctx is done
func (s *GRPCHealthServer) Serve(ctx context.Context, interval time.Duration) error {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("gRPC health server started")
	return s.server.Serve(s.listener)
}

// Refresh runs the checks once and publishes the result
func (s *GRPCHealthServer) Refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	deps, ok := RunChecks(checkCtx, s.checks)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn().Interface("dependencies", deps).Msg("Readiness checks failing")
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
}

// Stop marks every service NOT_SERVING and stops the server
func (s *GRPCHealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
