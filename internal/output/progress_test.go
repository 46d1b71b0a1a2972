package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/wire"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLine(t *testing.T) {
	tests := []struct {
		name    string
		counts  metrics.Counts
		elapsed time.Duration
		want    string
	}{
		{
			name:    "plain",
			counts:  metrics.Counts{Sent: 100},
			elapsed: 2 * time.Second,
			want:    "\rSent: 100 | Received: 0 | Msg/s: 50.0",
		},
		{
			name:    "problems",
			counts:  metrics.Counts{Received: 10, OutOfOrder: 2, Restarts: 1, Timeouts: 1},
			elapsed: time.Second,
			want:    "\rSent: 0 | Received: 10 | Msg/s: 10.0 | Out of order: 2 | Restarts: 1 | Timeouts: 1",
		},
		{
			name: "no elapsed time",
			want: "\rSent: 0 | Received: 0 | Msg/s: 0.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressLine(tt.counts, tt.elapsed); got != tt.want {
				t.Errorf("ProgressLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressReporterBasic(t *testing.T) {
	var buf syncBuffer
	reporter := NewProgressReporter(metrics.NewRecorder(), 100*time.Millisecond, &buf)

	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}

	// Stop without Start is a no-op.
	reporter.Stop()
	if buf.String() != "" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestProgressReporterFormatting(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.Sent(wire.TagUDP, 10)

	var buf syncBuffer
	reporter := NewProgressReporter(rec, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	out := buf.String()
	if !strings.Contains(out, "Sent: 1") {
		t.Errorf("Expected 'Sent: 1' in progress output, got %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Expected progress output to end with a newline")
	}
}
