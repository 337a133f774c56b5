package notify

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned from PreCommit when writing the transaction's
// notifications would exceed the configured page ceiling. The owning
// transaction must abort; entries already written carry its id and are
// skipped by readers once the abort is recorded.
var ErrQueueFull = errors.New("notify: queue is full")

// ErrDirectoryCorrupted reports a channel directory record that should exist
// but does not. It indicates a prior invariant violation and is not
// recoverable.
var ErrDirectoryCorrupted = errors.New("notify: channel directory corrupted")

// ErrSessionClosed is returned from operations on a closed session.
var ErrSessionClosed = errors.New("notify: session closed")

// ValidationError rejects a malformed channel name or payload before it is
// buffered; it never reaches the queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("notify: invalid %s: %s", e.Field, e.Reason)
}

// DeliveryError wraps a failure of the client-facing delivery capability.
// It is fatal to the affected connection and deliberately never downgraded
// to skip-and-continue: skipping would silently drop a notification the
// application cannot detect as missing.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: delivering on %q: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
