// Package client is the caller-facing entry point: it owns a scheduler over
// a wire-protocol adapter, hands out deferred handles for submitted
// operations, and demultiplexes correlated responses from the connection.
package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"reqflow/pkg/api"
	"reqflow/pkg/codec"
	"reqflow/pkg/future"
	"reqflow/pkg/sched"
	"reqflow/pkg/transport"
	"reqflow/pkg/wire"
)

// RemoteError is an operation failure reported by the server.
type RemoteError struct {
	Op  string
	Msg string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("remote: %s: %s", e.Op, e.Msg) }

// Client multiplexes scheduled requests over one transport connection.
type Client struct {
	codecs *codec.Registry
	sched  *sched.Scheduler
	conn   transport.Conn

	mu      sync.Mutex
	waiters map[string]chan wire.Response
	closed  bool
	connErr error

	closeCh   chan struct{} // closed when the demux loop exits
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// Dial connects over the given transport and starts the response demux.
func Dial(ctx context.Context, tr transport.Transport, addr string) (*Client, error) {
	conn, err := tr.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s %s: %w", tr.Kind(), addr, err)
	}
	demuxCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		codecs:  codec.NewRegistry(),
		conn:    conn,
		waiters: make(map[string]chan wire.Response),
		closeCh: make(chan struct{}),
		cancel:  cancel,
	}
	c.sched = sched.New(adapter{c})
	go c.demux(demuxCtx)
	return c, nil
}

// Scheduler exposes the underlying scheduler (counts, limit, reset, run).
func (c *Client) Scheduler() *sched.Scheduler { return c.sched }

// SetConcurrencyLimit forwards to the scheduler.
func (c *Client) SetConcurrencyLimit(n int) error { return c.sched.SetConcurrencyLimit(n) }

// QueryOption adjusts a single submission.
type QueryOption func(*api.Request)

// WithID submits under an explicit request id.
func WithID(id string) QueryOption { return func(r *api.Request) { r.ID = id } }

// WithFormat selects the payload serialization (default JSON).
func WithFormat(f api.Format) QueryOption { return func(r *api.Request) { r.Format = f } }

// WithMeta attaches one metadata header.
func WithMeta(k, v string) QueryOption {
	return func(r *api.Request) {
		if r.Meta == nil {
			r.Meta = make(map[string]string)
		}
		r.Meta[k] = v
	}
}

// Query encodes args, submits the operation and returns its deferred handle.
// Nothing is sent until the scheduler's Run admits the request.
func (c *Client) Query(op string, args any, opts ...QueryOption) (*future.Handle, error) {
	req := api.Request{Op: op, Format: api.FormatJSON}
	for _, opt := range opts {
		opt(&req)
	}
	if args != nil {
		b, err := c.codecs.Encode(req.Format, args)
		if err != nil {
			return nil, fmt.Errorf("client: encode args for %s: %w", op, err)
		}
		req.Payload = b
	}
	id, err := c.sched.Submit(req)
	if err != nil {
		return nil, err
	}
	return future.NewHandle(c.sched, c.codecs, id), nil
}

// Handle binds a new handle to a previously submitted request id.
func (c *Client) Handle(id string) *future.Handle {
	return future.NewHandle(c.sched, c.codecs, id)
}

// Run drives all pending requests to completion.
func (c *Client) Run(ctx context.Context) error { return c.sched.Run(ctx) }

// Close tears down the connection and demux. Published results stay
// readable through existing handles; unresolved in-flight requests fail.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close()
	<-c.closeCh
	return err
}

func (c *Client) demux(ctx context.Context) {
	defer c.closeOnce.Do(func() { close(c.closeCh) })
	go func() {
		<-ctx.Done()
		_ = c.conn.Close() // unblocks Recv
	}()
	for {
		b, err := c.conn.Recv()
		if err != nil {
			c.shutdown(err)
			return
		}
		resp, err := wire.DecodeResponse(b)
		if err != nil {
			zap.L().Warn("bad response frame", zap.Error(err))
			c.shutdown(err)
			return
		}
		c.mu.Lock()
		ch := c.waiters[resp.ID]
		delete(c.waiters, resp.ID)
		c.mu.Unlock()
		if ch == nil {
			zap.L().Debug("uncorrelated response", zap.String("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

// shutdown marks the connection dead and wakes every waiter.
func (c *Client) shutdown(err error) {
	c.mu.Lock()
	c.closed = true
	c.connErr = err
	c.waiters = make(map[string]chan wire.Response)
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// adapter implements api.Adapter over the client's connection: it sends the
// request envelope and blocks on the correlated response channel (or ctx),
// which is the readiness-driven wait the scheduler core requires.
type adapter struct{ c *Client }

func (a adapter) Execute(ctx context.Context, req api.Request) (api.Result, error) {
	c := a.c

	ch := make(chan wire.Response, 1)
	c.mu.Lock()
	if c.closed {
		err := c.connErr
		c.mu.Unlock()
		return api.Result{}, fmt.Errorf("client: connection closed: %w", err)
	}
	c.waiters[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, req.ID)
		c.mu.Unlock()
	}()

	b, err := wire.FromAPI(req).Encode()
	if err != nil {
		return api.Result{}, err
	}
	if err := c.conn.Send(b); err != nil {
		return api.Result{}, fmt.Errorf("client: send %s: %w", req.Op, err)
	}

	select {
	case <-ctx.Done():
		return api.Result{}, ctx.Err()
	case <-c.closeCh:
		c.mu.Lock()
		err := c.connErr
		c.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("client closed")
		}
		return api.Result{}, fmt.Errorf("client: connection lost: %w", err)
	case resp := <-ch:
		if resp.Err != "" {
			return api.Result{}, &RemoteError{Op: req.Op, Msg: resp.Err}
		}
		return resp.Result(), nil
	}
}
