package runner

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/pacebench/internal/config"
	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/tracker"
	"github.com/torosent/pacebench/internal/transport"
)

// DialFunc opens a client connection.
type DialFunc func(ctx context.Context, ep transport.Endpoint) (transport.Conn, error)

// Options configure the Runner.
type Options struct {
	// RunID tags logs and reports; a fresh one is generated when empty.
	RunID    string
	Config   config.Config
	Logger   *slog.Logger
	Recorder *metrics.Recorder
	Tracer   trace.Tracer
	Clock    clock.Clock

	// Listeners replaces the listeners a server would open from Config. Servers close
	// them when the session ends.
	Listeners []transport.Listener
	// Dial replaces transport.Dial for clients.
	Dial DialFunc
	// OnTracker is called from the tracker's goroutine as each window reports.
	OnTracker func(tracker.Report)
}

func (o *Options) normalize() {
	if o.RunID == "" {
		o.RunID = NewRunID()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Recorder == nil {
		o.Recorder = metrics.NewRecorder()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Dial == nil {
		o.Dial = transport.Dial
	}
	if o.OnTracker == nil {
		o.OnTracker = func(tracker.Report) {}
	}
}
