// Package pacer implements the client side of the benchmark: it emits sequence-numbered
// messages on a fixed cadence, either as a one-way stream or as request/response echo
// exchanges guarded by a liveness timeout.
package pacer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/torosent/pacebench/internal/deadline"
	"github.com/torosent/pacebench/internal/logging"
	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/wire"
)

// LivenessFactor scales the echo interval into the restart timeout.
const LivenessFactor = 5

// MinLiveness is the shortest restart timeout. A zero interval still has to leave the
// peer time to answer.
const MinLiveness = 10 * time.Millisecond

const inboxSize = 1024

// Mode selects the traffic pattern.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeEcho   Mode = "echo"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStream, ModeEcho:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want stream or echo)", s)
	}
}

// State is the lifecycle position of a Pacer.
type State int

const (
	Idle State = iota
	Armed
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config configures a Pacer.
type Config struct {
	Mode        Mode
	Limit       uint64
	Interval    time.Duration
	PayloadSize int
	// Tag is carried in echo requests so the responder can label its logs.
	Tag wire.Tag

	Clock    clock.Clock
	Logger   *slog.Logger
	Recorder *metrics.Recorder
}

// Sender is the outbound half of a connection.
type Sender interface {
	Send(wire.Message) error
}

// Pacer is a single-run client state machine. Run drives it from its own event loop;
// tests and embedders may instead call Start and the Handle methods directly.
type Pacer struct {
	cfg  Config
	clk  clock.Clock
	log  *slog.Logger
	rec  *metrics.Recorder
	peer Sender

	state    State
	next     uint64
	payload  []byte
	tick     *deadline.Deadline
	liveness *deadline.Deadline

	started  time.Time
	sentAt   time.Time
	awaiting bool
	summary  Summary

	inbox chan wire.Message
	done  chan struct{}
}

// New creates an idle Pacer sending to peer.
func New(cfg Config, peer Sender) *Pacer {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	p := &Pacer{
		cfg:      cfg,
		clk:      cfg.Clock,
		log:      logging.Role(cfg.Logger, "pacer").With("mode", string(cfg.Mode)),
		rec:      cfg.Recorder,
		peer:     peer,
		tick:     deadline.New(cfg.Clock, "tick"),
		liveness: deadline.New(cfg.Clock, "liveness"),
		inbox:    make(chan wire.Message, inboxSize),
		done:     make(chan struct{}),
	}
	if cfg.Mode == ModeStream {
		p.payload = Payload(cfg.PayloadSize)
	}
	p.summary = Summary{Mode: cfg.Mode, Limit: cfg.Limit, PayloadSize: cfg.PayloadSize}
	return p
}

// Payload returns the stream payload of the given size: bytes counting up from zero.
func Payload(size int) []byte {
	if size <= 0 {
		return nil
	}
	b := make([]byte, size)
	for k := range b {
		b[k] = byte(k)
	}
	return b
}

// State returns the current lifecycle state.
func (p *Pacer) State() State {
	return p.state
}

// Summary returns the run summary so far.
func (p *Pacer) Summary() Summary {
	return p.summary
}

// Tick is the deadline that schedules the next send.
func (p *Pacer) Tick() *deadline.Deadline {
	return p.tick
}

// Liveness is the echo restart deadline.
func (p *Pacer) Liveness() *deadline.Deadline {
	return p.liveness
}

// Done is closed when Run returns.
func (p *Pacer) Done() <-chan struct{} {
	return p.done
}

// Deliver queues a received message for Run.
func (p *Pacer) Deliver(ctx context.Context, m wire.Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	}
}

// Run starts the pacer and processes events until it terminates, fails, or ctx is
// cancelled.
func (p *Pacer) Run(ctx context.Context) (Summary, error) {
	defer close(p.done)
	defer p.tick.Close()
	defer p.liveness.Close()

	if err := p.Start(); err != nil {
		p.stamp()
		return p.summary, err
	}
	for p.state != Terminated {
		select {
		case <-ctx.Done():
			p.stamp()
			return p.summary, ctx.Err()
		case m := <-p.inbox:
			p.HandleMessage(m)
		case f := <-p.tick.C():
			if p.tick.Fired(f) {
				if err := p.HandleTick(); err != nil {
					p.stamp()
					return p.summary, err
				}
			}
		case f := <-p.liveness.C():
			if p.liveness.Fired(f) {
				p.HandleLiveness()
			}
		}
	}
	return p.summary, nil
}

// Start sends index zero. It must be called once, on an idle pacer.
func (p *Pacer) Start() error {
	if p.state != Idle {
		return fmt.Errorf("pacer already started (state %s)", p.state)
	}
	p.started = p.clk.Now()
	p.state = Armed
	p.next = 0
	return p.HandleTick()
}

// HandleTick sends the message for the pending index.
func (p *Pacer) HandleTick() error {
	if p.state != Armed {
		return nil
	}
	if p.cfg.Mode == ModeEcho {
		p.echoTick()
		return nil
	}
	return p.streamTick()
}

// HandleMessage processes a message from the peer. Only echo responses matter.
func (p *Pacer) HandleMessage(m wire.Message) {
	if p.state != Armed || p.cfg.Mode != ModeEcho {
		return
	}
	if m.Kind != wire.KindEchoResponse {
		p.log.Debug("ignoring message", "kind", m.Kind.String())
		return
	}

	now := p.clk.Now()
	if p.awaiting {
		p.awaiting = false
		p.rec.RoundTrip(now.Sub(p.sentAt))
		p.summary.RoundTrips++
	}
	p.rec.Received(p.cfg.Tag, 0)

	if m.Index >= p.cfg.Limit {
		p.log.Info("DONE", "index", m.Index)
		p.terminate()
		return
	}
	p.next = m.Index
	p.tick.Arm(p.cfg.Interval)
	p.liveness.Arm(p.livenessTimeout())
}

// HandleLiveness restarts an echo run whose peer went quiet.
func (p *Pacer) HandleLiveness() {
	if p.state != Armed || p.cfg.Mode != ModeEcho {
		return
	}
	p.log.Warn("RESTARTING", "last_index", p.next)
	p.summary.Restarts++
	p.rec.Restart()
	p.tick.Disarm()
	p.next = 0
	p.echoTick()
}

func (p *Pacer) streamTick() error {
	i := p.next
	if i >= p.cfg.Limit {
		if err := p.peer.Send(wire.Terminate()); err != nil {
			return fmt.Errorf("send termination: %w", err)
		}
		p.log.Info(fmt.Sprintf("Sent %d messages of size %d.", p.summary.Sent, p.cfg.PayloadSize))
		p.terminate()
		return nil
	}
	if err := p.peer.Send(wire.Stream(i, p.payload)); err != nil {
		return fmt.Errorf("send message %d: %w", i, err)
	}
	p.rec.Sent(p.cfg.Tag, len(p.payload))
	p.summary.Sent++
	p.next = i + 1
	p.tick.Arm(p.cfg.Interval)
	return nil
}

func (p *Pacer) echoTick() {
	i := p.next
	p.sentAt = p.clk.Now()
	p.awaiting = true
	if err := p.peer.Send(wire.EchoRequest(p.cfg.Tag, i)); err != nil {
		p.log.Warn("echo request failed", "index", i, "err", err)
	} else {
		p.rec.Sent(p.cfg.Tag, 0)
		p.summary.Sent++
	}
	p.liveness.Arm(p.livenessTimeout())
}

func (p *Pacer) livenessTimeout() time.Duration {
	return max(LivenessFactor*p.cfg.Interval, MinLiveness)
}

func (p *Pacer) terminate() {
	p.tick.Disarm()
	p.liveness.Disarm()
	p.state = Terminated
	p.stamp()
}

func (p *Pacer) stamp() {
	p.summary.Elapsed = p.clk.Now().Sub(p.started)
	p.summary.ElapsedMs = float64(p.summary.Elapsed) / float64(time.Millisecond)
}
