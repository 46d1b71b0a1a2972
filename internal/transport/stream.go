package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/torosent/pacebench/internal/wire"
)

// streamConn carries length-prefixed frames over a reliable byte stream.
type streamConn struct {
	tag    wire.Tag
	w      io.Writer
	r      *bufio.Reader
	remote string

	wmu       sync.Mutex
	closeFn   func() error
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newStreamConn(tag wire.Tag, rw io.ReadWriter, remote string, closeFn func() error) *streamConn {
	return &streamConn{
		tag:     tag,
		w:       rw,
		r:       bufio.NewReaderSize(rw, 64<<10),
		remote:  remote,
		closeFn: closeFn,
		closed:  make(chan struct{}),
	}
}

func (c *streamConn) Send(m wire.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if err := wire.WriteFrame(c.w, m); err != nil {
		return c.mapErr(err)
	}
	return nil
}

func (c *streamConn) Receive() (wire.Message, error) {
	m, err := wire.ReadFrame(c.r)
	if err != nil {
		return wire.Message{}, c.mapErr(err)
	}
	return m, nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.closeFn()
	})
	return c.closeErr
}

func (c *streamConn) RemoteAddr() string { return c.remote }

func (c *streamConn) Tag() wire.Tag { return c.tag }

func (c *streamConn) mapErr(err error) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
