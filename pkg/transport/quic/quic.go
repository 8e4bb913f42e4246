// Package quic is a QUIC transport. Each connection carries one
// bidirectional stream with u32-LE length-prefixed frames; the dialer opens
// the stream, the listener accepts it.
package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"reqflow/pkg/transport"
)

const alpn = "reqflow"

type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

// New builds a QUIC transport with an ephemeral self-signed server
// certificate. Clients skip verification; this transport authenticates the
// link, not the peer.
func New() (*Transport, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
	return &Transport{tlsConf: tlsConf, quicConf: &quicgo.Config{}}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan transport.Conn, 8), closeCh: make(chan struct{})}
	go ql.acceptLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = ql.Close()
	}()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true, // link-level only; requests carry no peer identity
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	st, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "open stream")
		return nil, err
	}
	return newConn(c, st), nil
}

type listener struct {
	l       *quicgo.Listener
	newCh   chan transport.Conn
	closeCh chan struct{}
	once    sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("quic: listener closed")
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return l.l.Close()
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		go func() {
			// The dialer opens the stream; bound the wait.
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			st, err := c.AcceptStream(sctx)
			if err != nil {
				_ = c.CloseWithError(0, "accept stream")
				return
			}
			select {
			case l.newCh <- newConn(c, st):
			case <-l.closeCh:
				_ = c.CloseWithError(0, "listener closed")
			}
		}()
	}
}

// conn frames one QUIC stream and closes the whole connection on Close.
type conn struct {
	*transport.FrameConn
	qc quicgo.Connection
}

func newConn(qc quicgo.Connection, st quicgo.Stream) *conn {
	return &conn{
		FrameConn: transport.NewFrameStream(st, qc.LocalAddr(), qc.RemoteAddr()),
		qc:        qc,
	}
}

func (c *conn) Close() error {
	_ = c.FrameConn.Close()
	return c.qc.CloseWithError(0, "closed")
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "reqflow"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
