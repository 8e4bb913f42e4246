// Package tcp is a TCP transport with u32-LE length-prefixed frames.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"

	"reqflow/pkg/transport"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, newCh: make(chan transport.Conn, 8), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() {
		<-ctx.Done()
		_ = tl.Close()
	}()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return transport.NewFrameConn(c), nil
}

type listener struct {
	l       net.Listener
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
		return nil, errors.New("tcp: listener closed")
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return l.l.Close()
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		fc := transport.NewFrameConn(c)
		select {
		case l.newCh <- fc:
		case <-l.closeCh:
			_ = fc.Close()
			return
		}
	}
}
