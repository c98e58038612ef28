package admission

import (
	"context"
	"time"
)

// WindowResult reports the outcome of one atomic sliding-window admission.
// Count includes the request just recorded when Accepted is true.
type WindowResult struct {
	Accepted bool
	Count    int
	Oldest   time.Time
}

// CounterStore is the shared counter backend. Every method is a single
// atomic operation so concurrent callers never race a check against a write.
type CounterStore interface {
	// AdmitWindow prunes entries at or before now-window, then records now
	// only if fewer than limit entries remain.
	AdmitWindow(ctx context.Context, clientID string, now time.Time, window time.Duration, limit int) (WindowResult, error)
	// Concurrency returns the current in-flight count for the client.
	Concurrency(ctx context.Context, clientID string) (int, error)
	// AcquireSlot increments the counter only when it is below max.
	AcquireSlot(ctx context.Context, clientID string, max int) (current int, ok bool, err error)
	Increment(ctx context.Context, clientID string) (int, error)
	// Decrement never drops the counter below zero.
	Decrement(ctx context.Context, clientID string) (int, error)
}
