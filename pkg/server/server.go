// Package server hosts executors behind the wire protocol: it accepts
// transport connections, decodes request envelopes, dispatches them to the
// matching executor and sends correlated responses back.
package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"reqflow/pkg/api"
	"reqflow/pkg/transport"
	"reqflow/pkg/wire"
)

// Server dispatches inbound requests to registered executors. Responses for
// one connection may be sent out of request order; correlation is by id.
type Server struct {
	execs []api.Executor
	sem   *semaphore.Weighted // nil = unlimited
}

// New builds a server. execLimit bounds concurrent executor invocations
// across all connections; 0 means unlimited.
func New(execLimit int, execs ...api.Executor) *Server {
	s := &Server{execs: execs}
	if execLimit > 0 {
		s.sem = semaphore.NewWeighted(int64(execLimit))
	}
	return s
}

// Register adds an executor. Not safe to call after Serve started.
func (s *Server) Register(e api.Executor) { s.execs = append(s.execs, e) }

// Serve runs an accept loop per listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listeners ...transport.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		g.Go(func() error { return s.acceptLoop(ctx, l) })
	}
	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, l transport.Listener) error {
	defer l.Close()
	zap.L().Info("serving", zap.String("addr", l.Addr().String()))
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

// handle reads request envelopes from one connection and executes each on
// its own goroutine, so a slow operation never blocks later ones behind it.
func (s *Server) handle(ctx context.Context, conn transport.Conn) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for {
		b, err := conn.Recv()
		if err != nil {
			return
		}
		req, err := wire.DecodeRequest(b)
		if err != nil {
			zap.L().Warn("bad request frame", zap.Error(err))
			return
		}
		go s.dispatch(connCtx, conn, req)
	}
}

func (s *Server) dispatch(ctx context.Context, conn transport.Conn, req wire.Request) {
	resp := wire.Response{ID: req.ID}
	res, err := s.execute(ctx, req.ToAPI())
	if err != nil {
		resp.Err = err.Error()
	} else {
		resp.Format = string(res.Format)
		resp.Payload = res.Payload
		resp.Meta = res.Meta
	}
	b, err := resp.Encode()
	if err != nil {
		zap.L().Error("encode response", zap.String("id", req.ID), zap.Error(err))
		return
	}
	if err := conn.Send(b); err != nil {
		zap.L().Warn("send response", zap.String("id", req.ID), zap.Error(err))
	}
}

func (s *Server) execute(ctx context.Context, req api.Request) (api.Result, error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return api.Result{}, err
		}
		defer s.sem.Release(1)
	}
	for _, e := range s.execs {
		if e.CanHandle(req.Op) {
			return e.Execute(ctx, req)
		}
	}
	return api.Result{}, fmt.Errorf("server: no executor for op %q", req.Op)
}
