package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reqflow/pkg/api"
)

// DefaultConcurrencyLimit bounds in-flight tasks when no limit is configured.
const DefaultConcurrencyLimit = 10

// Scheduler owns the pending queue, the bounded set of in-flight tasks and
// the completed-result table, and drives the run cycle that moves requests
// through them. All exported methods are safe for concurrent use; Submit may
// be called while a run cycle is in progress.
type Scheduler struct {
	adapter api.Adapter

	mu        sync.Mutex
	limit     int
	seq       uint64
	gen       uint64 // bumped by Reset; outcomes from older generations are discarded
	queue     []*entry
	pending   map[string]*entry
	active    map[string]*Task
	completed map[string]outcome
	done      map[string]chan struct{} // closed exactly once, on completion or Reset
	running   bool
	cancelRun context.CancelFunc

	kick chan struct{} // wakes the run loop when work arrives mid-cycle
}

// New builds a scheduler over the given transport adapter with the default
// concurrency limit.
func New(adapter api.Adapter) *Scheduler {
	return &Scheduler{
		adapter:   adapter,
		limit:     DefaultConcurrencyLimit,
		pending:   make(map[string]*entry),
		active:    make(map[string]*Task),
		completed: make(map[string]outcome),
		done:      make(map[string]chan struct{}),
		kick:      make(chan struct{}, 1),
	}
}

// Submit registers a request in the pending queue and returns its id. When
// req.ID is empty a fresh unique id is generated. No network activity happens
// here; the request waits for admission by Run. Submitting an id that is
// already pending, active or completed fails with ErrDuplicateRequestID.
func (s *Scheduler) Submit(req api.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if s.knownLocked(req.ID) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateRequestID, req.ID)
	}

	e := &entry{req: req, seq: s.seq}
	s.seq++
	s.queue = append(s.queue, e)
	s.pending[req.ID] = e
	s.done[req.ID] = make(chan struct{})
	if s.running {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return req.ID, nil
}

func (s *Scheduler) knownLocked(id string) bool {
	if _, ok := s.pending[id]; ok {
		return true
	}
	if _, ok := s.active[id]; ok {
		return true
	}
	_, ok := s.completed[id]
	return ok
}

// Run drives all pending requests to completion: it admits requests from the
// queue into at most the configured number of in-flight tasks, publishes each
// outcome as its task terminates, and returns once the scheduler is
// quiescent. A second Run on the same instance while one is in progress fails
// with ErrAlreadyRunning. A failing task records its error and never aborts
// siblings or the cycle. Cancelling ctx stops admission, drains in-flight
// tasks and returns the context error; requests never admitted stay pending.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	startGen := s.gen
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.cancelRun = nil
		s.mu.Unlock()
	}()

	zap.L().Debug("run cycle started", zap.Int("pending", s.CountPending()))

	finished := make(chan *Task, 1)
	doneCh := runCtx.Done()
	inFlight := 0
	for {
		s.mu.Lock()
		if runCtx.Err() == nil {
			for inFlight < s.limit && len(s.queue) > 0 {
				e := s.queue[0]
				s.queue = s.queue[1:]
				delete(s.pending, e.req.ID)
				t := newTask(e.req, s.adapter, s.gen)
				s.active[e.req.ID] = t
				t.start(runCtx, finished)
				inFlight++
			}
		}
		queued := len(s.queue)
		reset := s.gen != startGen
		s.mu.Unlock()

		if inFlight == 0 {
			if reset {
				zap.L().Debug("run cycle ended by reset")
				return nil
			}
			if err := runCtx.Err(); err != nil {
				zap.L().Debug("run cycle cancelled", zap.Int("pending", queued))
				return err
			}
			if queued == 0 {
				zap.L().Debug("run cycle drained", zap.Int("completed", s.CountCompleted()))
				return nil
			}
		}

		select {
		case t := <-finished:
			inFlight--
			s.publish(t)
		case <-s.kick:
		case <-doneCh:
			doneCh = nil // drain remaining tasks, then exit above
		}
	}
}

// publish moves a terminated task's outcome into the completed table and
// wakes its waiters. Outcomes admitted before a Reset are discarded.
func (s *Scheduler) publish(t *Task) {
	if !t.terminated() {
		panic(fmt.Errorf("%w: publishing non-terminated task %s", ErrInternalConsistency, t.id))
	}
	s.mu.Lock()
	if t.gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.active, t.id)
	s.completed[t.id] = outcome{res: t.res, err: t.err}
	if ch := s.done[t.id]; ch != nil {
		close(ch)
		delete(s.done, t.id)
	}
	s.mu.Unlock()

	if t.err != nil {
		zap.L().Warn("request failed", zap.String("id", t.id), zap.String("op", t.req.Op), zap.Error(t.err))
	} else {
		zap.L().Debug("request completed", zap.String("id", t.id), zap.String("op", t.req.Op))
	}
}

// Wait blocks until the request's outcome is published, then returns it. The
// block is a channel receive on the request's completion signal, not a poll.
// Waiting on an id the scheduler does not know, or one discarded by Reset,
// fails with ErrRequestNotFound.
func (s *Scheduler) Wait(ctx context.Context, id string) (api.Result, error) {
	for {
		s.mu.Lock()
		if out, ok := s.completed[id]; ok {
			s.mu.Unlock()
			if out.err != nil {
				return api.Result{}, &TaskError{ID: id, Err: out.err}
			}
			return out.res, nil
		}
		ch, ok := s.done[id]
		s.mu.Unlock()
		if !ok {
			return api.Result{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
		}
		select {
		case <-ctx.Done():
			return api.Result{}, ctx.Err()
		case <-ch:
		}
	}
}

// IsCompleted reports whether the request's outcome has been published.
func (s *Scheduler) IsCompleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[id]
	return ok
}

// GetResult returns the published outcome for id without blocking. A failed
// request yields its TaskError; an unknown id fails with ErrRequestNotFound.
func (s *Scheduler) GetResult(id string) (api.Result, error) {
	s.mu.Lock()
	out, ok := s.completed[id]
	s.mu.Unlock()
	if !ok {
		return api.Result{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if out.err != nil {
		return api.Result{}, &TaskError{ID: id, Err: out.err}
	}
	return out.res, nil
}

// State reports the lifecycle state of a request id.
func (s *Scheduler) State(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return StatePending, true
	}
	if _, ok := s.active[id]; ok {
		return StateActive, true
	}
	if out, ok := s.completed[id]; ok {
		if out.err != nil {
			return StateFailed, true
		}
		return StateCompleted, true
	}
	return 0, false
}

func (s *Scheduler) CountPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) CountActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) CountCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// Reset discards all pending, in-flight and completed work. In-flight tasks
// are cancelled cooperatively and their late outcomes dropped. Waiters on
// discarded requests are woken and observe ErrRequestNotFound rather than
// hanging.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.gen++
	dropped := len(s.queue) + len(s.active) + len(s.completed)
	s.queue = nil
	s.pending = make(map[string]*entry)
	s.active = make(map[string]*Task)
	s.completed = make(map[string]outcome)
	for _, ch := range s.done {
		close(ch)
	}
	s.done = make(map[string]chan struct{})
	cancel := s.cancelRun
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	zap.L().Info("scheduler reset", zap.Int("dropped", dropped))
}

// SetConcurrencyLimit changes the admission bound. The new value applies at
// the next admission decision, not necessarily mid-cycle.
func (s *Scheduler) SetConcurrencyLimit(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidConfiguration, n)
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) GetConcurrencyLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}
