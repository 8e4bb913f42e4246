package sched

import "reqflow/pkg/api"

// State tracks where a request is in its lifecycle.
type State int

const (
	StatePending State = iota
	StateActive
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// entry is the scheduler's bookkeeping record for one pending request.
// Admission order follows seq, the submission sequence number.
type entry struct {
	req api.Request
	seq uint64
}

// outcome is the terminal record for one request. Exactly one of res/err is
// meaningful; err != nil means the request failed.
type outcome struct {
	res api.Result
	err error
}
