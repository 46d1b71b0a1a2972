// Package echo implements the stateless round-trip responder used by the echo benchmark.
package echo

import (
	"context"
	"log/slog"

	"github.com/torosent/pacebench/internal/logging"
	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/wire"
)

// progressEvery controls how often a progress line is logged.
const progressEvery = 1000

const inboxSize = 1024

// Peer is where a response is sent.
type Peer interface {
	Send(m wire.Message) error
	RemoteAddr() string
}

type request struct {
	from Peer
	msg  wire.Message
}

// Responder answers every echo request with the incremented index. It keeps no state
// between requests, so one instance can serve any number of pacers over any transport.
type Responder struct {
	log   *slog.Logger
	rec   *metrics.Recorder
	inbox chan request
	done  chan struct{}
}

// New creates a Responder. Both arguments may be nil.
func New(log *slog.Logger, rec *metrics.Recorder) *Responder {
	return &Responder{
		log:   logging.Role(log, "echo"),
		rec:   rec,
		inbox: make(chan request, inboxSize),
		done:  make(chan struct{}),
	}
}

// Respond computes the reply to req and emits the diagnostic lines for it. It returns
// false when req is not an echo request.
func Respond(log *slog.Logger, req wire.Message) (wire.Message, bool) {
	if req.Kind != wire.KindEchoRequest {
		return wire.Message{}, false
	}
	switch {
	case req.Index == 0:
		log.Info("From zero ...", "tag", req.Tag.String())
	case req.Index%progressEvery == 0:
		log.Info("Incrementing", "tag", req.Tag.String(), "index", req.Index)
	}
	return wire.EchoResponse(req.Index + 1), true
}

// Deliver queues a message received from peer. It blocks while the inbox is full and
// gives up when ctx is done or the responder has stopped.
func (r *Responder) Deliver(ctx context.Context, from Peer, m wire.Message) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- request{from: from, msg: m}:
		return true
	case <-ctx.Done():
		return false
	case <-r.done:
		return false
	}
}

// Run processes requests one at a time until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-r.inbox:
			r.handle(req)
		}
	}
}

// Done is closed once Run has returned.
func (r *Responder) Done() <-chan struct{} {
	return r.done
}

func (r *Responder) handle(req request) {
	tag := req.msg.Tag
	r.rec.Received(tag, 0)

	resp, ok := Respond(r.log, req.msg)
	if !ok {
		r.log.Debug("ignoring non-echo message", "peer", req.from.RemoteAddr(), "kind", req.msg.Kind.String())
		return
	}
	if err := req.from.Send(resp); err != nil {
		r.log.Debug("reply failed", "peer", req.from.RemoteAddr(), "error", err)
		return
	}
	r.rec.Sent(tag, 0)
}
