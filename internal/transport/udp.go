package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/pacebench/internal/metrics"
	"github.com/torosent/pacebench/internal/wire"
)

// maxDatagram is the largest UDP payload that fits an IPv4 datagram.
const maxDatagram = 65507

// acceptBacklog bounds new peers waiting for Accept.
const acceptBacklog = 64

// udpConn is the client side of a connected UDP socket.
type udpConn struct {
	uc        *net.UDPConn
	buf       []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func dialUDP(ctx context.Context, ep Endpoint) (Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "udp", ep.Address())
	if err != nil {
		return nil, err
	}
	return &udpConn{
		uc:     nc.(*net.UDPConn),
		buf:    make([]byte, maxDatagram+1),
		closed: make(chan struct{}),
	}, nil
}

func (c *udpConn) Send(m wire.Message) error {
	b, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	if len(b) > maxDatagram {
		return wire.ErrFrameTooLarge
	}
	if _, err := c.uc.Write(b); err != nil {
		return c.mapErr(err)
	}
	return nil
}

func (c *udpConn) Receive() (wire.Message, error) {
	for {
		n, err := c.uc.Read(c.buf)
		if err != nil {
			return wire.Message{}, c.mapErr(err)
		}
		m, err := wire.Unmarshal(append([]byte(nil), c.buf[:n]...))
		if err != nil {
			continue
		}
		return m, nil
	}
}

func (c *udpConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.uc.Close()
	})
	return err
}

func (c *udpConn) RemoteAddr() string { return c.uc.RemoteAddr().String() }

func (c *udpConn) Tag() wire.Tag { return wire.TagUDP }

func (c *udpConn) mapErr(err error) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

// udpListener demultiplexes datagrams on one socket into a Conn per remote address.
type udpListener struct {
	uc      *net.UDPConn
	log     *slog.Logger
	rec     *metrics.Recorder
	backlog int
	bad     rate.Sometimes
	lossy   rate.Sometimes
	accept  chan *udpPeer

	mu    sync.Mutex
	peers map[string]*udpPeer

	closeOnce sync.Once
	closed    chan struct{}
}

func listenUDP(ctx context.Context, ep Endpoint, o listenOptions) (Listener, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", ep.Address())
	if err != nil {
		return nil, err
	}
	log := o.logger
	if log == nil {
		log = slog.Default()
	}
	l := &udpListener{
		uc:      pc.(*net.UDPConn),
		log:     log.With("transport", "udp"),
		rec:     o.rec,
		backlog: o.backlog,
		bad:     rate.Sometimes{Interval: time.Second},
		lossy:   rate.Sometimes{Interval: time.Second},
		accept:  make(chan *udpPeer, acceptBacklog),
		peers:   make(map[string]*udpPeer),
		closed:  make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

func (l *udpListener) readLoop() {
	buf := make([]byte, maxDatagram+1)
	for {
		n, addr, err := l.uc.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.bad.Do(func() { l.log.Warn("udp read failed", "error", err) })
			continue
		}
		m, err := wire.Unmarshal(append([]byte(nil), buf[:n]...))
		if err != nil {
			l.bad.Do(func() { l.log.Warn("dropping malformed datagram", "from", addr.String(), "error", err) })
			continue
		}

		// Never block the socket on one peer: a slow reader loses its own datagrams.
		p, fresh := l.peer(addr)
		if fresh {
			select {
			case l.accept <- p:
			default:
				l.forget(p)
				l.drop(addr, "accept backlog full")
				continue
			}
		}
		select {
		case p.inbox <- m:
		case <-p.done:
		default:
			l.drop(addr, "peer backlog full")
		}
	}
}

func (l *udpListener) drop(addr *net.UDPAddr, reason string) {
	l.rec.Dropped(wire.TagUDP)
	l.lossy.Do(func() { l.log.Debug("dropping datagram", "from", addr.String(), "reason", reason) })
}

func (l *udpListener) peer(addr *net.UDPAddr) (*udpPeer, bool) {
	key := addr.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.peers[key]; ok {
		return p, false
	}
	p := &udpPeer{
		l:     l,
		addr:  addr,
		key:   key,
		inbox: make(chan wire.Message, l.backlog),
		done:  make(chan struct{}),
	}
	l.peers[key] = p
	return p, true
}

func (l *udpListener) forget(p *udpPeer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peers[p.key] == p {
		delete(l.peers, p.key)
	}
}

func (l *udpListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case p := <-l.accept:
		return p, nil
	case <-ctx.Done():
		return nil, ErrClosed
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *udpListener) Addr() net.Addr { return l.uc.LocalAddr() }

func (l *udpListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.uc.Close()
	})
	return err
}

func (l *udpListener) Tag() wire.Tag { return wire.TagUDP }

// udpPeer is the server-side view of one remote UDP address.
type udpPeer struct {
	l         *udpListener
	addr      *net.UDPAddr
	key       string
	inbox     chan wire.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (p *udpPeer) Send(m wire.Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	b, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := p.l.uc.WriteToUDP(b, p.addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (p *udpPeer) Receive() (wire.Message, error) {
	select {
	case m := <-p.inbox:
		return m, nil
	case <-p.done:
		return wire.Message{}, ErrClosed
	case <-p.l.closed:
		return wire.Message{}, ErrClosed
	}
}

func (p *udpPeer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.l.forget(p)
	})
	return nil
}

func (p *udpPeer) RemoteAddr() string { return p.key }

func (p *udpPeer) Tag() wire.Tag { return wire.TagUDP }
