package transport

import (
	"log/slog"

	"github.com/torosent/pacebench/internal/metrics"
)

const defaultPeerBacklog = 4096

type listenOptions struct {
	logger  *slog.Logger
	rec     *metrics.Recorder
	backlog int
}

// ListenOption customises a listener.
type ListenOption func(*listenOptions)

// WithLogger sets the logger used for listener diagnostics.
func WithLogger(l *slog.Logger) ListenOption {
	return func(o *listenOptions) {
		o.logger = l
	}
}

// WithRecorder counts datagrams a UDP listener discards.
func WithRecorder(r *metrics.Recorder) ListenOption {
	return func(o *listenOptions) {
		o.rec = r
	}
}

// WithPeerBacklog bounds how many datagrams a UDP listener queues per peer before it
// starts dropping them.
func WithPeerBacklog(n int) ListenOption {
	return func(o *listenOptions) {
		if n > 0 {
			o.backlog = n
		}
	}
}
