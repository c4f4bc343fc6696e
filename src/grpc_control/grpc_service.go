package grpc_control

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"market-terminal/src/config"
	"market-terminal/src/gateway"
	"market-terminal/src/logger"
)

// -----------------------------------------------------------------------------
// GRPCService exposes liveness over gRPC. The health status tracks the
// gateway connection: SERVING while connected, NOT_SERVING otherwise, so
// orchestrators can restart or drain the terminal on link loss.
// -----------------------------------------------------------------------------

type GRPCService struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	config   *config.Config
	logger   *logger.Logger

	supervisor *gateway.ConnectionSupervisor
	running    atomic.Bool
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService instance
func NewGRPCService(cfg *config.Config, log *logger.Logger, supervisor *gateway.ConnectionSupervisor) (*GRPCService, error) {
	address := fmt.Sprintf("%s:%d", cfg.GrpcHost, cfg.GrpcPort)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	serverOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(10 * 1024 * 1024), // 10MB
		grpc.MaxSendMsgSize(10 * 1024 * 1024), // 10MB
	}

	return &GRPCService{
		server:     grpc.NewServer(serverOptions...),
		listener:   listener,
		health:     health.NewServer(),
		config:     cfg,
		logger:     log,
		supervisor: supervisor,
	}, nil
}

// -----------------------------------------------------------------------------

// Start registers the health service and serves until the context ends.
func (g *GRPCService) Start(ctx context.Context) error {
	g.logger.Info("Starting gRPC service on %s", g.listener.Addr().String())

	grpc_health_v1.RegisterHealthServer(g.server, g.health)
	g.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	go g.trackConnection(ctx)

	go func() {
		g.running.Store(true)
		if err := g.server.Serve(g.listener); err != nil && err != grpc.ErrServerStopped {
			g.logger.Error("gRPC server failed: %v", err)
		}
		g.running.Store(false)
	}()

	g.logger.Info("gRPC service started successfully on %s", g.listener.Addr().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return g.Stop(stopCtx)
}

// -----------------------------------------------------------------------------

// trackConnection mirrors the supervisor's connection state into the health
// service once a second.
func (g *GRPCService) trackConnection(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
			if g.supervisor.State() == gateway.StateConnected {
				status = grpc_health_v1.HealthCheckResponse_SERVING
			}
			if status != last {
				g.health.SetServingStatus("", status)
				last = status
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server
func (g *GRPCService) Stop(ctx context.Context) error {
	g.logger.Info("Stopping gRPC service...")

	if g.server != nil {
		done := make(chan struct{})
		go func() {
			g.server.GracefulStop()
			close(done)
		}()

		select {
		case <-ctx.Done():
			g.logger.Warning("gRPC graceful shutdown timeout, forcing stop...")
			g.server.Stop()
		case <-done:
			g.logger.Info("gRPC service stopped gracefully")
		}
	}

	if g.listener != nil {
		g.listener.Close()
	}

	g.running.Store(false)
	return nil
}

// -----------------------------------------------------------------------------

// IsRunning returns whether the gRPC server is running
func (g *GRPCService) IsRunning() bool {
	return g.running.Load()
}
