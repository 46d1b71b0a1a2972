// Package tracker implements the server side of the stream benchmark: it records the
// order, count and timing of inbound stream messages and reports when the client signals
// the end of the run or goes quiet.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/torosent/pacebench/internal/deadline"
	"github.com/torosent/pacebench/internal/logging"
	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/wire"
)

// DefaultGrace is how long a tracking window waits for the next message.
const DefaultGrace = 5 * time.Second

const inboxSize = 4096

// State is the lifecycle position of a Tracker.
type State int

const (
	Uninitialized State = iota
	Tracking
	Finalized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Tracking:
		return "tracking"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Window is the receipt log of one run.
type Window struct {
	Start      time.Time
	End        time.Time
	Sizes      []int
	LastIndex  uint64
	OutOfOrder int
	Bytes      int64
}

// Config configures a Tracker. Zero values select defaults.
type Config struct {
	Grace    time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	Recorder *metrics.Recorder
	Tag      wire.Tag
	Peer     string
}

// Tracker is a single-run receiver state machine. It is driven either by Run, which
// consumes messages queued with Deliver, or directly through HandleMessage and
// HandleInactivity from a caller that owns the event loop.
type Tracker struct {
	cfg Config
	clk clock.Clock
	log *slog.Logger
	rec *metrics.Recorder

	state       State
	window      Window
	lastArrival time.Time
	inactivity  *deadline.Deadline

	report   Report
	reported bool

	inbox chan wire.Message
	done  chan struct{}
}

// handlers maps each state to its event handlers. A nil entry ignores the event.
var handlers = [...]struct {
	stream    func(*Tracker, wire.Message)
	terminate func(*Tracker)
	inactive  func(*Tracker)
}{
	Uninitialized: {
		stream:    (*Tracker).start,
		terminate: (*Tracker).terminateBeforeStart,
	},
	Tracking: {
		stream:    (*Tracker).track,
		terminate: (*Tracker).finish,
		inactive:  (*Tracker).timeout,
	},
	Finalized: {},
}

// New creates a Tracker in the Uninitialized state.
func New(cfg Config) *Tracker {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	log := logging.Role(cfg.Logger, "tracker")
	if cfg.Peer != "" {
		log = log.With("peer", cfg.Peer)
	}
	return &Tracker{
		cfg:        cfg,
		clk:        cfg.Clock,
		log:        log,
		rec:        cfg.Recorder,
		inactivity: deadline.New(cfg.Clock, "inactivity"),
		inbox:      make(chan wire.Message, inboxSize),
		done:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// Window returns the receipt log.
func (t *Tracker) Window() Window {
	return t.window
}

// Report returns the run report once the tracker has finalized with one.
func (t *Tracker) Report() (Report, bool) {
	return t.report, t.reported
}

// Inactivity exposes the inactivity deadline to callers driving the tracker directly.
func (t *Tracker) Inactivity() *deadline.Deadline {
	return t.inactivity
}

// Done is closed when Run returns.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Deliver queues a received message for Run.
func (t *Tracker) Deliver(ctx context.Context, m wire.Message) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	case <-t.done:
		return false
	}
}

// Run processes events until the tracker finalizes or ctx is cancelled. The returned
// report is only meaningful when ok is true.
func (t *Tracker) Run(ctx context.Context) (report Report, ok bool, err error) {
	defer close(t.done)
	defer t.inactivity.Close()

	for t.state != Finalized {
		select {
		case <-ctx.Done():
			return t.report, t.reported, ctx.Err()
		case m := <-t.inbox:
			t.HandleMessage(m)
		case f := <-t.inactivity.C():
			if t.inactivity.Fired(f) {
				t.HandleInactivity()
			}
		}
	}
	return t.report, t.reported, nil
}

// HandleMessage processes one received message.
func (t *Tracker) HandleMessage(m wire.Message) {
	h := handlers[t.state]
	switch m.Kind {
	case wire.KindStream:
		if h.stream != nil {
			h.stream(t, m)
		}
	case wire.KindTermination:
		if h.terminate != nil {
			h.terminate(t)
		}
	default:
		t.log.Debug("ignoring message", "kind", m.Kind.String())
	}
}

// HandleInactivity processes a firing of the inactivity deadline.
func (t *Tracker) HandleInactivity() {
	if h := handlers[t.state]; h.inactive != nil {
		h.inactive(t)
	}
}

func (t *Tracker) start(m wire.Message) {
	now := t.clk.Now()
	t.window.Start = now
	t.lastArrival = now
	t.window.LastIndex = m.Index
	t.append(m)
	t.state = Tracking
	t.inactivity.Arm(t.cfg.Grace)
	t.log.Debug("tracking started", "index", m.Index)
}

func (t *Tracker) track(m wire.Message) {
	now := t.clk.Now()
	t.rec.Gap(now.Sub(t.lastArrival))
	t.lastArrival = now

	t.append(m)
	if t.window.LastIndex+1 != m.Index {
		t.window.OutOfOrder++
		t.rec.OutOfOrder()
		t.log.Warn("Out of order message", "expected", t.window.LastIndex+1, "received", m.Index)
	}
	t.window.LastIndex = m.Index
	t.inactivity.Arm(t.cfg.Grace)
}

func (t *Tracker) append(m wire.Message) {
	t.window.Sizes = append(t.window.Sizes, len(m.Payload))
	t.window.Bytes += int64(len(m.Payload))
	t.rec.Received(t.cfg.Tag, len(m.Payload))
}

func (t *Tracker) finish() {
	t.window.End = t.clk.Now()
	t.finalize(false)
}

func (t *Tracker) timeout() {
	t.rec.Timeout()
	t.log.Warn("[TIMEOUT] Received messages", "count", len(t.window.Sizes))
	t.finalize(true)
}

func (t *Tracker) terminateBeforeStart() {
	t.log.Warn("termination received before any stream message; this should not happen")
	t.inactivity.Disarm()
	t.state = Finalized
}

func (t *Tracker) finalize(timedOut bool) {
	t.inactivity.Disarm()
	t.state = Finalized
	t.report = newReport(t.cfg, t.window, timedOut)
	t.reported = true
}
