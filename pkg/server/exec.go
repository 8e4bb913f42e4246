package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reqflow/pkg/api"
	"reqflow/pkg/codec"
	"reqflow/pkg/resultcache"
)

// Func adapts a function to api.Executor for a single op name.
type Func struct {
	Op string
	Fn func(ctx context.Context, req api.Request) (api.Result, error)
}

func (f Func) CanHandle(op string) bool { return op == f.Op }

func (f Func) Execute(ctx context.Context, req api.Request) (api.Result, error) {
	return f.Fn(ctx, req)
}

// Echo returns an executor that reflects the request payload back.
func Echo() api.Executor {
	return Func{Op: "echo", Fn: func(_ context.Context, req api.Request) (api.Result, error) {
		return api.Result{Format: req.Format, Payload: req.Payload, Meta: req.Meta}, nil
	}}
}

// Sleep returns an executor that waits the requested duration before
// answering; the wait is a timer, cancellable through ctx. Payload:
// {"ms": <int>}.
func Sleep(codecs *codec.Registry) api.Executor {
	return Func{Op: "sleep", Fn: func(ctx context.Context, req api.Request) (api.Result, error) {
		var arg struct {
			MS int64 `json:"ms" cbor:"ms"`
		}
		if err := codecs.Decode(req.Format, req.Payload, &arg); err != nil {
			return api.Result{}, fmt.Errorf("sleep: %w", err)
		}
		select {
		case <-ctx.Done():
			return api.Result{}, ctx.Err()
		case <-time.After(time.Duration(arg.MS) * time.Millisecond):
		}
		payload, err := codecs.Encode(req.Format, api.ResultSet{
			Columns: []string{"slept_ms"},
			Rows:    [][]any{{arg.MS}},
		})
		if err != nil {
			return api.Result{}, err
		}
		return api.Result{Format: req.Format, Payload: payload}, nil
	}}
}

// Fail returns an executor that always fails, for exercising failure paths.
func Fail() api.Executor {
	return Func{Op: "fail", Fn: func(_ context.Context, req api.Request) (api.Result, error) {
		return api.Result{}, errors.New("fail: simulated operation failure")
	}}
}

// KV returns an executor family over a result cache store: kv.set, kv.get
// and kv.del. Keys travel in Meta["key"]; values are the raw payload.
type KV struct {
	Store *resultcache.Store
	TTL   time.Duration
}

func (k KV) CanHandle(op string) bool {
	return op == "kv.set" || op == "kv.get" || op == "kv.del"
}

func (k KV) Execute(_ context.Context, req api.Request) (api.Result, error) {
	key := req.Meta["key"]
	if key == "" {
		return api.Result{}, errors.New("kv: missing meta key")
	}
	switch req.Op {
	case "kv.set":
		if !k.Store.Set(key, req.Payload, k.TTL) {
			return api.Result{}, errors.New("kv: store full")
		}
		return api.Result{Meta: map[string]string{"key": key}}, nil
	case "kv.get":
		v, ok := k.Store.Get(key)
		if !ok {
			return api.Result{}, fmt.Errorf("kv: key %q not found", key)
		}
		return api.Result{Format: req.Format, Payload: v, Meta: map[string]string{"key": key}}, nil
	case "kv.del":
		k.Store.Delete(key)
		return api.Result{Meta: map[string]string{"key": key}}, nil
	default:
		return api.Result{}, fmt.Errorf("kv: unknown op %q", req.Op)
	}
}
