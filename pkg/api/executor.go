package api

import "context"

// Executor executes requests of a certain kind on the serving side.
type Executor interface {
	// CanHandle returns true if this executor can process the given op name.
	CanHandle(op string) bool

	// Execute runs the operation and returns its result.
	Execute(ctx context.Context, req Request) (Result, error)
}
