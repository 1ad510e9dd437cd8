package grpcapi_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/prezens/server/internal/grpcapi"
)

type flakyStore struct{ down atomic.Bool }

func (f *flakyStore) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("database is locked")
	}
	return nil
}

func startServer(t *testing.T, st grpcapi.Pinger, interval time.Duration) (*grpcapi.Server, grpc_health_v1.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpcapi.NewWithListener(lis, st, interval, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return srv, grpc_health_v1.NewHealthClient(conn)
}

func waitStatus(t *testing.T, c grpc_health_v1.HealthClient, service string, want grpc_health_v1.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := c.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("service %q: want %s, last resp=%v err=%v", service, want, resp.GetStatus(), err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth_ServingWhenStoreUp(t *testing.T) {
	_, client := startServer(t, &flakyStore{}, time.Hour)
	waitStatus(t, client, "", grpc_health_v1.HealthCheckResponse_SERVING)
	waitStatus(t, client, grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

func TestHealth_FollowsStorePing(t *testing.T) {
	st := &flakyStore{}
	_, client := startServer(t, st, 20*time.Millisecond)
	waitStatus(t, client, "", grpc_health_v1.HealthCheckResponse_SERVING)

	st.down.Store(true)
	waitStatus(t, client, "", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	st.down.Store(false)
	waitStatus(t, client, "", grpc_health_v1.HealthCheckResponse_SERVING)
}

func TestProbe_ReportsStatus(t *testing.T) {
	st := &flakyStore{}
	st.down.Store(true)
	srv, _ := startServer(t, st, time.Hour)

	if got := srv.Probe(context.Background()); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}
}
