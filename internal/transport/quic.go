package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/torosent/pacebench/internal/wire"
)

const quicALPN = "pacebench"

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

func dialQUIC(ctx context.Context, ep Endpoint) (Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // the server presents a throwaway self-signed certificate
		NextProtos:         []string{quicALPN},
	}
	qc, err := quic.DialAddr(ctx, ep.Address(), tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	st, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, err
	}
	return newQUICConn(qc, st), nil
}

func newQUICConn(qc quic.Connection, st quic.Stream) Conn {
	return newStreamConn(wire.TagQUIC, st, qc.RemoteAddr().String(), func() error {
		return multierr.Append(st.Close(), qc.CloseWithError(0, "done"))
	})
}

type quicListener struct {
	ln     *quic.Listener
	accept chan Conn

	closeOnce sync.Once
	closed    chan struct{}
}

func listenQUIC(ctx context.Context, ep Endpoint) (Listener, error) {
	cert, err := selfSignedCertificate()
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
	}
	ln, err := quic.ListenAddr(ep.Address(), tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	l := &quicListener{
		ln:     ln,
		accept: make(chan Conn),
		closed: make(chan struct{}),
	}
	go l.acceptLoop(ctx)
	return l, nil
}

// acceptLoop accepts connections and waits for each one's benchmark stream in its own
// goroutine, since a stream only becomes visible once the client writes to it.
func (l *quicListener) acceptLoop(ctx context.Context) {
	for {
		qc, err := l.ln.Accept(ctx)
		if err != nil {
			return
		}
		go func() {
			st, err := qc.AcceptStream(ctx)
			if err != nil {
				_ = qc.CloseWithError(0, "")
				return
			}
			c := newQUICConn(qc, st)
			select {
			case l.accept <- c:
			case <-l.closed:
				_ = c.Close()
			}
		}()
	}
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-ctx.Done():
		return nil, ErrClosed
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (l *quicListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.ln.Close()
	})
	return err
}

func (l *quicListener) Tag() wire.Tag { return wire.TagQUIC }

func selfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: quicALPN},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
