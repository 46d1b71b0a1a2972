package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/pacebench/internal/transport"
	"github.com/torosent/pacebench/internal/wire"
)

// deliverFunc hands a received message to a role; false means the role has stopped.
type deliverFunc func(context.Context, wire.Message) bool

// pump moves inbound messages from conn into a role until the connection closes, the
// role finishes, or ctx is cancelled. Closing conn is left to the caller, except that
// ctx cancellation closes it to unblock Receive.
func pump(ctx context.Context, log *slog.Logger, conn transport.Conn, deliver deliverFunc) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// A connected UDP socket reports ICMP errors (peer not listening yet) on Receive;
	// the socket stays usable, so keep reading.
	noisy := rate.Sometimes{Interval: time.Second}
	for {
		m, err := conn.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			if conn.Tag() == wire.TagUDP {
				noisy.Do(func() { log.Debug("receive failed", "peer", conn.RemoteAddr(), "err", err) })
				continue
			}
			log.Debug("connection lost", "peer", conn.RemoteAddr(), "err", err)
			return nil
		}
		if !deliver(ctx, m) {
			return nil
		}
	}
}
