// Package grpcapi serves the standard gRPC health service. Serving status
// follows a periodic ping of the attendance store.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-check service key alongside the overall "".
const ServiceName = "prezens.Attendance"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      Pinger
	interval   time.Duration
	logger     *slog.Logger
}

// New listens on addr.
func New(addr string, store Pinger, interval time.Duration, logger *slog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewWithListener(lis, store, interval, logger), nil
}

func NewWithListener(lis net.Listener, store Pinger, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{
		listener:   lis,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		interval:   interval,
		logger:     logger,
	}
}

func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Probe pings the store once and publishes the result.
func (s *Server) Probe(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if s.store != nil {
		pctx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.store.Ping(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("store ping failed", "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve runs the probe loop and the gRPC server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("grpc health server listening", "addr", s.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	s.Probe(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpcServer.GracefulStop()
			err := <-serveErr
			if err == nil || errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case err := <-serveErr:
			return fmt.Errorf("serve grpc: %w", err)
		case <-t.C:
			s.Probe(ctx)
		}
	}
}
