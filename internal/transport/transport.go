// Package transport carries benchmark messages between a client and a server endpoint.
//
// Every transport exposes the same two primitives to the roles: Send a message to the
// peer, and Receive the next message from it. Reliability and ordering are whatever the
// underlying protocol provides: tcp, ws and quic deliver in order without loss, udp may
// drop and reorder.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/torosent/pacebench/internal/wire"
)

// ErrClosed is returned by Send and Receive once either side has closed the connection.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one side of a point-to-point message channel.
type Conn interface {
	Send(m wire.Message) error
	Receive() (wire.Message, error)
	Close() error
	RemoteAddr() string
	Tag() wire.Tag
}

// Listener accepts inbound connections for one transport.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
	Tag() wire.Tag
}

// ConnectionError reports that a peer could not be reached or its address is invalid.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to contact server on '%s': %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Endpoint is a transport plus a network address.
type Endpoint struct {
	Tag  wire.Tag
	Host string
	Port int
}

// NewEndpoint builds an endpoint from a protocol name, host and port.
func NewEndpoint(protocol, host string, port int) (Endpoint, error) {
	tag, err := wire.ParseTag(protocol)
	if err != nil {
		return Endpoint{}, err
	}
	if port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("port %d out of range", port)
	}
	return Endpoint{Tag: tag, Host: host, Port: port}, nil
}

// ParseEndpoint parses a scheme://host:port URI.
func ParseEndpoint(uri string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid uri %q: expected scheme://host:port", uri)
	}
	portStr := u.Port()
	if portStr == "" {
		return Endpoint{}, fmt.Errorf("invalid uri %q: missing port", uri)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	return NewEndpoint(u.Scheme, u.Hostname(), port)
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Tag.String() + "://" + e.Address()
}

// Dial connects to the endpoint. Failures are returned as *ConnectionError.
func Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	var (
		c   Conn
		err error
	)
	switch ep.Tag {
	case wire.TagTCP:
		c, err = dialTCP(ctx, ep)
	case wire.TagUDP:
		c, err = dialUDP(ctx, ep)
	case wire.TagWebSocket:
		c, err = dialWebSocket(ctx, ep)
	case wire.TagQUIC:
		c, err = dialQUIC(ctx, ep)
	default:
		err = fmt.Errorf("unsupported transport %s", ep.Tag)
	}
	if err != nil {
		return nil, &ConnectionError{Endpoint: ep.String(), Err: err}
	}
	return c, nil
}

// Listen opens a listener on the endpoint. The listener is closed when ctx is done.
func Listen(ctx context.Context, ep Endpoint, opts ...ListenOption) (Listener, error) {
	o := listenOptions{backlog: defaultPeerBacklog}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		l   Listener
		err error
	)
	switch ep.Tag {
	case wire.TagTCP:
		l, err = listenTCP(ctx, ep)
	case wire.TagUDP:
		l, err = listenUDP(ctx, ep, o)
	case wire.TagWebSocket:
		l, err = listenWebSocket(ctx, ep, o)
	case wire.TagQUIC:
		l, err = listenQUIC(ctx, ep)
	default:
		err = fmt.Errorf("unsupported transport %s", ep.Tag)
	}
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", ep, err)
	}
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	return l, nil
}
