package service

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BrandonDHaskell/prezens/server/internal/prezens/service"

// Options carries the collaborators shared by every service. Zero values
// fall back to wall-clock UTC, a discarding logger and the global tracer.
type Options struct {
	Clock          func() time.Time
	Logger         *slog.Logger
	Tracer         trace.Tracer
	ReadRetryDelay time.Duration
	// Location decides which calendar day is "today".
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	if o.ReadRetryDelay <= 0 {
		o.ReadRetryDelay = DefaultReadRetryDelay
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}
