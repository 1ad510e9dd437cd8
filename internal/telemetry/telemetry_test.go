package telemetry_test

import (
	"context"
	"testing"

	"github.com/BrandonDHaskell/prezens/server/internal/config"
	"github.com/BrandonDHaskell/prezens/server/internal/telemetry"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	for _, cfg := range []config.OTelConfig{
		{Enabled: false, Endpoint: "http://collector:4318"},
		{Enabled: true, Endpoint: ""},
	} {
		shutdown, err := telemetry.Setup(context.Background(), cfg, "prezens-test")
		if err != nil {
			t.Fatalf("setup %+v: %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
}

func TestSetup_EnabledReturnsShutdown(t *testing.T) {
	cfg := config.OTelConfig{Enabled: true, Endpoint: "http://127.0.0.1:4318"}
	shutdown, err := telemetry.Setup(context.Background(), cfg, "prezens-test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	// Nothing was exported, so flushing does not touch the collector.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
