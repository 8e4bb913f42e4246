package api

import "context"

// Adapter performs the actual network operation for one request. The
// scheduler invokes it from a task goroutine; implementations must block on
// readiness (channel receive, netpoller-backed I/O), honor ctx cancellation,
// and never spin-wait.
type Adapter interface {
	// Execute dispatches the request and returns its result once available.
	Execute(ctx context.Context, req Request) (Result, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, req Request) (Result, error)

func (f AdapterFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
