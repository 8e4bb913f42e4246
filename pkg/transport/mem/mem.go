// Package mem is an in-process transport backed by net.Pipe. Useful for
// tests and single-binary deployments.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"reqflow/pkg/transport"
)

type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan transport.Conn, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
		t.mu.Lock()
		delete(t.listeners, name)
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener")
	}
	c1, c2 := net.Pipe()
	srv := transport.NewFrameConn(c1)
	cli := transport.NewFrameConn(c2)
	select {
	case l.newCh <- srv:
	case <-l.closeCh:
		_ = srv.Close()
		return nil, errors.New("mem: listener closed")
	case <-ctx.Done():
		_ = srv.Close()
		return nil, ctx.Err()
	}
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan transport.Conn
	closeCh chan struct{}
	once    sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("mem: listener closed")
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.closeCh) })
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
