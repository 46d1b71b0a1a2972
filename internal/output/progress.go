package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/pacebench/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	recorder *metrics.Recorder
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(recorder *metrics.Recorder, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		recorder: recorder,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, ProgressLine(p.recorder.Snapshot(), time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

// ProgressLine formats one carriage-return-prefixed progress update.
func ProgressLine(c metrics.Counts, elapsed time.Duration) string {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(c.Sent+c.Received) / secs
	}
	line := fmt.Sprintf("\rSent: %d | Received: %d | Msg/s: %.1f", c.Sent, c.Received, rate)
	if c.OutOfOrder > 0 {
		line += fmt.Sprintf(" | Out of order: %d", c.OutOfOrder)
	}
	if c.Restarts > 0 {
		line += fmt.Sprintf(" | Restarts: %d", c.Restarts)
	}
	if c.Timeouts > 0 {
		line += fmt.Sprintf(" | Timeouts: %d", c.Timeouts)
	}
	return line
}
