package core

import (
	"context"
	"slices"
)

// Sink defines the contract for a persistence backend that receives processed
// changes. Calls always happen in the order Open, SaveChange..., Close, from a
// single goroutine, so implementations need no internal locking.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Open acquires the sink's resources. A successful Open is always matched
	// by exactly one Close.
	Open(ctx context.Context) error

	// SaveChange persists a change and returns the number of changes stored:
	// 1 when it was written, 0 when it was skipped or the write failed. Write
	// failures are logged by the sink, not returned.
	SaveChange(ctx context.Context, change *Change) int

	// Close releases the sink's resources. It is safe to call more than once.
	Close() error
}

// StoreDecision decides whether a processed change should be handed to the
// sinks.
type StoreDecision interface {
	ShouldStore(change *Change) bool
}

// StoreDecisionFunc adapts a plain function to StoreDecision.
type StoreDecisionFunc func(change *Change) bool

// ShouldStore calls f(change).
func (f StoreDecisionFunc) ShouldStore(change *Change) bool { return f(change) }

var (
	// HasVotes stores changes with at least one non-zero Code-Review vote.
	HasVotes StoreDecision = StoreDecisionFunc(func(change *Change) bool {
		return change.PositiveReviewsCounts+change.NegativeReviewsCounts > 0
	})

	// StoreAll stores every change.
	StoreAll StoreDecision = StoreDecisionFunc(func(*Change) bool { return true })
)

// StatusIn stores changes whose status is one of statuses.
func StatusIn(statuses ...string) StoreDecision {
	return StoreDecisionFunc(func(change *Change) bool {
		return slices.Contains(statuses, change.Status)
	})
}
