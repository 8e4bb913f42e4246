package sched

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"reqflow/pkg/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoAdapter resolves immediately with the request payload.
func echoAdapter() api.Adapter {
	return api.AdapterFunc(func(_ context.Context, req api.Request) (api.Result, error) {
		return api.Result{Format: req.Format, Payload: req.Payload, Meta: req.Meta}, nil
	})
}

// latencyAdapter waits d before answering and tracks peak concurrency.
type latencyAdapter struct {
	d      time.Duration
	cur    atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
	failOp string
}

func (a *latencyAdapter) Execute(ctx context.Context, req api.Request) (api.Result, error) {
	a.calls.Add(1)
	cur := a.cur.Add(1)
	defer a.cur.Add(-1)
	for {
		p := a.peak.Load()
		if cur <= p || a.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if a.d > 0 {
		select {
		case <-ctx.Done():
			return api.Result{}, ctx.Err()
		case <-time.After(a.d):
		}
	}
	if a.failOp != "" && req.Op == a.failOp {
		return api.Result{}, errors.New("simulated failure")
	}
	return api.Result{Payload: req.Payload}, nil
}

func submitN(t *testing.T, s *Scheduler, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := s.Submit(api.Request{ID: id, Op: "echo", Payload: []byte(id)}); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
}

func TestRunCompletesAllPending(t *testing.T) {
	s := New(echoAdapter())
	submitN(t, s, "r1", "r2", "r3")

	if s.CountPending() != 3 || s.CountCompleted() != 0 {
		t.Fatalf("counts before run: pending=%d completed=%d", s.CountPending(), s.CountCompleted())
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		if s.IsCompleted(id) {
			t.Fatalf("%s completed before run", id)
		}
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if s.CountPending() != 0 || s.CountActive() != 0 || s.CountCompleted() != 3 {
		t.Fatalf("counts after run: pending=%d active=%d completed=%d",
			s.CountPending(), s.CountActive(), s.CountCompleted())
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		res, err := s.GetResult(id)
		if err != nil {
			t.Fatalf("result %s: %v", id, err)
		}
		if string(res.Payload) != id {
			t.Fatalf("result %s: got %q", id, res.Payload)
		}
	}
}

func TestSubmitGeneratesUniqueIDs(t *testing.T) {
	s := New(echoAdapter())
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := s.Submit(api.Request{Op: "echo"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if id == "" || seen[id] {
			t.Fatalf("bad generated id %q", id)
		}
		seen[id] = true
	}
}

func TestSubmitDuplicateID(t *testing.T) {
	s := New(echoAdapter())
	submitN(t, s, "dup")
	if _, err := s.Submit(api.Request{ID: "dup"}); !errors.Is(err, ErrDuplicateRequestID) {
		t.Fatalf("expected ErrDuplicateRequestID, got %v", err)
	}

	// Completed ids stay taken until reset.
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := s.Submit(api.Request{ID: "dup"}); !errors.Is(err, ErrDuplicateRequestID) {
		t.Fatalf("expected ErrDuplicateRequestID after completion, got %v", err)
	}
}

func TestRunReentrancyGuard(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	s := New(api.AdapterFunc(func(ctx context.Context, _ api.Request) (api.Result, error) {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return api.Result{}, nil
	}))
	submitN(t, s, "r1")

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	<-entered

	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	close(gate)
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	// The flag clears once the cycle ends.
	submitN(t, s, "r2")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestConcurrencyLimitRespectedAndUseful(t *testing.T) {
	const (
		limit   = 2
		n       = 4
		latency = 100 * time.Millisecond
	)
	ad := &latencyAdapter{d: latency}
	s := New(ad)
	if err := s.SetConcurrencyLimit(limit); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := s.Submit(api.Request{Op: "echo"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	elapsed := time.Since(start)

	if got := ad.peak.Load(); got > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", got, limit)
	}
	if elapsed < 2*latency {
		t.Fatalf("run finished in %v, limit not enforced", elapsed)
	}
	if elapsed >= time.Duration(n)*latency {
		t.Fatalf("run took %v, no overlap between requests", elapsed)
	}
}

func TestAdmissionOrderIsFIFO(t *testing.T) {
	var mu []string
	done := make(chan string, 3)
	s := New(api.AdapterFunc(func(_ context.Context, req api.Request) (api.Result, error) {
		done <- req.ID
		return api.Result{}, nil
	}))
	if err := s.SetConcurrencyLimit(1); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	submitN(t, s, "a", "b", "c")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	close(done)
	for id := range done {
		mu = append(mu, id)
	}
	if strings.Join(mu, ",") != "a,b,c" {
		t.Fatalf("admission order %v, want a,b,c", mu)
	}
}

func TestTaskFailureIsIsolated(t *testing.T) {
	ad := &latencyAdapter{failOp: "fail"}
	s := New(ad)
	submitN(t, s, "ok1")
	if _, err := s.Submit(api.Request{ID: "bad", Op: "fail"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	submitN(t, s, "ok2")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run must not fail for a task error, got %v", err)
	}

	if _, err := s.GetResult("bad"); err == nil {
		t.Fatalf("expected failure for bad")
	} else {
		var te *TaskError
		if !errors.As(err, &te) || te.ID != "bad" {
			t.Fatalf("expected TaskError for bad, got %v", err)
		}
	}
	for _, id := range []string{"ok1", "ok2"} {
		if _, err := s.GetResult(id); err != nil {
			t.Fatalf("sibling %s: %v", id, err)
		}
	}
	if st, ok := s.State("bad"); !ok || st != StateFailed {
		t.Fatalf("state of bad: %v %v", st, ok)
	}
}

func TestAdapterPanicBecomesFailure(t *testing.T) {
	s := New(api.AdapterFunc(func(_ context.Context, req api.Request) (api.Result, error) {
		if req.Op == "boom" {
			panic("kaput")
		}
		return api.Result{}, nil
	}))
	if _, err := s.Submit(api.Request{ID: "p", Op: "boom"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	submitN(t, s, "q")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := s.GetResult("p"); err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Fatalf("expected panic failure, got %v", err)
	}
	if _, err := s.GetResult("q"); err != nil {
		t.Fatalf("sibling q: %v", err)
	}
}

func TestGetResultUnknownID(t *testing.T) {
	s := New(echoAdapter())
	if _, err := s.GetResult("nope"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestResetClearsStateAndWakesWaiters(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	entered := make(chan struct{}, 4)
	s := New(api.AdapterFunc(func(ctx context.Context, _ api.Request) (api.Result, error) {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return api.Result{}, ctx.Err()
		}
		return api.Result{}, nil
	}))
	if err := s.SetConcurrencyLimit(1); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	submitN(t, s, "inflight", "queued")

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()
	<-entered

	waitErr := make(chan error, 1)
	go func() {
		_, err := s.Wait(context.Background(), "queued")
		waitErr <- err
	}()

	s.Reset()

	select {
	case err := <-waitErr:
		if !errors.Is(err, ErrRequestNotFound) {
			t.Fatalf("waiter after reset: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter hung after reset")
	}
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("run after reset: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run hung after reset")
	}

	if s.CountPending() != 0 || s.CountActive() != 0 || s.CountCompleted() != 0 {
		t.Fatalf("counts after reset: %d/%d/%d", s.CountPending(), s.CountActive(), s.CountCompleted())
	}
	if _, err := s.Wait(context.Background(), "inflight"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("discarded id after reset: %v", err)
	}

	// The id space is clean again.
	submitN(t, s, "inflight")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run after reset: %v", err)
	}
}

func TestSubmitDuringRunIsAdmitted(t *testing.T) {
	first := make(chan struct{})
	s := New(api.AdapterFunc(func(ctx context.Context, req api.Request) (api.Result, error) {
		if req.ID == "first" {
			<-first
		}
		return api.Result{Payload: []byte(req.ID)}, nil
	}))
	submitN(t, s, "first")

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	submitN(t, s, "second")
	close(first)

	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !s.IsCompleted("second") {
		t.Fatalf("mid-cycle submission not processed")
	}
}

func TestRunContextCancellation(t *testing.T) {
	ad := &latencyAdapter{d: time.Hour}
	s := New(ad)
	if err := s.SetConcurrencyLimit(1); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	submitN(t, s, "slow", "never")

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	for s.CountActive() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancellation")
	}
	// The admitted task failed; the unadmitted one stays pending.
	if s.CountPending() != 1 {
		t.Fatalf("pending after cancel: %d", s.CountPending())
	}
}

func TestSetConcurrencyLimitValidation(t *testing.T) {
	s := New(echoAdapter())
	if s.GetConcurrencyLimit() != DefaultConcurrencyLimit {
		t.Fatalf("default limit %d", s.GetConcurrencyLimit())
	}
	for _, n := range []int{0, -1} {
		if err := s.SetConcurrencyLimit(n); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("limit %d: expected ErrInvalidConfiguration, got %v", n, err)
		}
	}
	if err := s.SetConcurrencyLimit(3); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if s.GetConcurrencyLimit() != 3 {
		t.Fatalf("limit not applied")
	}
}

func TestTaskRestartFailsFast(t *testing.T) {
	tk := newTask(api.Request{ID: "x"}, echoAdapter(), 0)
	fin := make(chan *Task, 1)
	tk.start(context.Background(), fin)
	<-fin

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic on restarting terminated task")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInternalConsistency) {
			t.Fatalf("panic value %v", r)
		}
	}()
	tk.start(context.Background(), fin)
}
