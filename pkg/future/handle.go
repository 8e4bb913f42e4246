// Package future exposes a request's eventual outcome as a deferred handle:
// a non-blocking readiness check plus a blocking resolve-once accessor, with
// data accessors that always route through the resolve gate.
package future

import (
	"context"
	"fmt"

	"reqflow/pkg/api"
	"reqflow/pkg/codec"
	"reqflow/pkg/sched"
)

// Handle is the caller-facing view of one submitted request. It references
// the owning scheduler and never mutates it; many handles may share one
// scheduler. The zero value is not usable; create handles with NewHandle.
type Handle struct {
	sched *sched.Scheduler
	id    string

	raw     *Value[api.Result]
	decoded *Value[api.ResultSet]
}

// NewHandle binds a handle to a scheduler and a request id. The codec
// registry is used to decode tabular payloads for the data accessors.
func NewHandle(s *sched.Scheduler, codecs *codec.Registry, id string) *Handle {
	h := &Handle{sched: s, id: id}
	h.raw = NewValue(func(ctx context.Context) (api.Result, error) {
		return s.Wait(ctx, id)
	})
	h.decoded = NewValue(func(ctx context.Context) (api.ResultSet, error) {
		res, err := h.raw.Resolve(ctx)
		if err != nil {
			return api.ResultSet{}, err
		}
		if len(res.Payload) == 0 {
			return api.ResultSet{}, nil
		}
		var rs api.ResultSet
		if err := codecs.Decode(res.Format, res.Payload, &rs); err != nil {
			return api.ResultSet{}, fmt.Errorf("future: decode result for %s: %w", id, err)
		}
		return rs, nil
	})
	return h
}

// RequestID returns the bound request id.
func (h *Handle) RequestID() string { return h.id }

// Ready reports, without blocking, whether the outcome has been published.
func (h *Handle) Ready() bool { return h.sched.IsCompleted(h.id) }

// Await blocks until the request's outcome is resolved into the handle's
// local cache. If the outcome is a failure, Await returns the wrapping
// *sched.TaskError instead of succeeding with a broken state; the data
// accessors therefore never observe a failed result. Await is idempotent.
func (h *Handle) Await(ctx context.Context) error {
	_, err := h.raw.Resolve(ctx)
	return err
}

// Result resolves the handle and returns the raw result.
func (h *Handle) Result(ctx context.Context) (api.Result, error) {
	return h.raw.Resolve(ctx)
}

// ResultSet resolves the handle and returns the decoded tabular view.
func (h *Handle) ResultSet(ctx context.Context) (api.ResultSet, error) {
	return h.decoded.Resolve(ctx)
}

// Rows resolves the handle and returns all result rows.
func (h *Handle) Rows(ctx context.Context) ([][]any, error) {
	rs, err := h.decoded.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return rs.Rows, nil
}

// Row resolves the handle and returns the first row, or nil if the result
// is empty.
func (h *Handle) Row(ctx context.Context) ([]any, error) {
	rs, err := h.decoded.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 {
		return nil, nil
	}
	return rs.Rows[0], nil
}

// Scalar resolves the handle and returns the first column of the first row.
func (h *Handle) Scalar(ctx context.Context) (any, error) {
	row, err := h.Row(ctx)
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("future: empty result for %s", h.id)
	}
	return row[0], nil
}

// Meta resolves the handle and returns the result metadata.
func (h *Handle) Meta(ctx context.Context) (map[string]string, error) {
	res, err := h.raw.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return res.Meta, nil
}
