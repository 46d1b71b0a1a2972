package transport

import (
	"context"
	"net"
	"sync"

	"github.com/torosent/pacebench/internal/wire"
)

const pipeBacklog = 1024

// Pipe returns two connected in-memory Conns. Delivery is ordered and lossless; each
// direction buffers a bounded number of messages before Send blocks.
func Pipe() (Conn, Conn) {
	ab := make(chan wire.Message, pipeBacklog)
	ba := make(chan wire.Message, pipeBacklog)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &pipeConn{name: "pipe-a", peerName: "pipe-b", in: ba, out: ab, done: aDone, peerDone: bDone}
	b := &pipeConn{name: "pipe-b", peerName: "pipe-a", in: ab, out: ba, done: bDone, peerDone: aDone}
	return a, b
}

type pipeConn struct {
	name, peerName string
	in             <-chan wire.Message
	out            chan<- wire.Message
	done           chan struct{}
	peerDone       <-chan struct{}
	closeOnce      sync.Once
}

func (p *pipeConn) Send(m wire.Message) error {
	select {
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	}
}

func (p *pipeConn) Receive() (wire.Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.done:
		return wire.Message{}, ErrClosed
	case <-p.peerDone:
		// Drain what the peer sent before closing.
		select {
		case m := <-p.in:
			return m, nil
		default:
			return wire.Message{}, ErrClosed
		}
	}
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *pipeConn) RemoteAddr() string { return p.peerName }

func (p *pipeConn) Tag() wire.Tag { return wire.TagTCP }

// PipeListener hands out the server ends of pipes created by Dial. It lets the runner
// exercise a full client/server session in one process.
type PipeListener struct {
	accept    chan Conn
	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipeListener creates an in-memory listener.
func NewPipeListener() *PipeListener {
	return &PipeListener{accept: make(chan Conn, 16), closed: make(chan struct{})}
}

// Dial creates a pipe and queues its server end for Accept.
func (l *PipeListener) Dial() (Conn, error) {
	client, server := Pipe()
	select {
	case l.accept <- server:
		return client, nil
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-ctx.Done():
		return nil, ErrClosed
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Addr() net.Addr { return pipeAddr{} }

func (l *PipeListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *PipeListener) Tag() wire.Tag { return wire.TagTCP }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
