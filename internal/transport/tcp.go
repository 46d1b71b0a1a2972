package transport

import (
	"context"
	"errors"
	"net"

	"github.com/torosent/pacebench/internal/wire"
)

func dialTCP(ctx context.Context, ep Endpoint) (Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, err
	}
	return newStreamConn(wire.TagTCP, nc, nc.RemoteAddr().String(), nc.Close), nil
}

type tcpListener struct {
	ln net.Listener
}

func listenTCP(ctx context.Context, ep Endpoint) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}
	return newStreamConn(wire.TagTCP, nc, nc.RemoteAddr().String(), nc.Close), nil
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

func (l *tcpListener) Close() error {
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (l *tcpListener) Tag() wire.Tag { return wire.TagTCP }
