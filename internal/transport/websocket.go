package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/pacebench/internal/wire"
)

// WebSocketPath is the HTTP path benchmark connections upgrade on.
const WebSocketPath = "/bench"

const wsHandshakeTimeout = 10 * time.Second

// wsConn sends one frame per binary WebSocket message.
type wsConn struct {
	conn      *websocket.Conn
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, closed: make(chan struct{})}
}

func dialWebSocket(ctx context.Context, ep Endpoint) (Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	url := fmt.Sprintf("ws://%s%s", ep.Address(), WebSocketPath)
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return newWSConn(conn), nil
}

func (c *wsConn) Send(m wire.Message) error {
	b, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return c.mapErr(err)
	}
	return nil
}

func (c *wsConn) Receive() (wire.Message, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return wire.Message{}, c.mapErr(err)
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return wire.Unmarshal(data)
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *wsConn) Tag() wire.Tag { return wire.TagWebSocket }

func (c *wsConn) mapErr(err error) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}
	return err
}

type wsListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	log      *slog.Logger
	accept   chan *wsConn

	closeOnce sync.Once
	closed    chan struct{}
}

func listenWebSocket(ctx context.Context, ep Endpoint, o listenOptions) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, err
	}
	log := o.logger
	if log == nil {
		log = slog.Default()
	}
	l := &wsListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: wsHandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		log:    log.With("transport", "ws"),
		accept: make(chan *wsConn),
		closed: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: wsHandshakeTimeout}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Warn("websocket server stopped", "error", err)
		}
	}()
	return l, nil
}

func (l *wsListener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Warn("websocket upgrade failed", "from", r.RemoteAddr, "error", err)
		return
	}
	c := newWSConn(conn)
	select {
	case l.accept <- c:
	case <-l.closed:
		_ = c.Close()
	}
}

func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-ctx.Done():
		return nil, ErrClosed
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *wsListener) Addr() net.Addr { return l.ln.Addr() }

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Tag() wire.Tag { return wire.TagWebSocket }
