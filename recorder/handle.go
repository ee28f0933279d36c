package recorder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/eventflow/types"
)

// handleCounter provides a monotonically increasing counter for unique handle IDs.
var handleCounter uint64

// writeOutcome bundles the result of one event write into a single value,
// eliminating the dual-channel select race between a result and an error
// channel.
type writeOutcome struct {
	sourceID string
	inserted bool
	err      error
}

// Handle tracks one accepted event through the asynchronous write pipeline.
// It resolves exactly once; waiting is idempotent and safe from any number
// of goroutines.
type Handle struct {
	id    string
	event *types.Event

	// mu protects outcome, which is written once before done is closed.
	mu      sync.RWMutex
	outcome writeOutcome

	done chan struct{}
}

func newHandle(event *types.Event) *Handle {
	return &Handle{
		id:    generateHandleID(),
		event: event,
		done:  make(chan struct{}),
	}
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Event returns the event this handle tracks. Events are immutable after
// submission.
func (h *Handle) Event() *types.Event { return h.event }

// Resolved reports whether the write outcome is available without blocking.
func (h *Handle) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// resolve publishes the outcome and releases all waiters. The recorder
// resolves each handle exactly once.
func (h *Handle) resolve(out writeOutcome) {
	h.mu.Lock()
	h.outcome = out
	h.mu.Unlock()
	close(h.done)
}

// await returns the outcome once resolved. The resolved fast path runs
// first, so a handle that resolved before the shared deadline expired never
// reports a timeout no matter how late await runs. With block=false an
// unresolved handle reports WaitTimeout immediately.
func (h *Handle) await(ctx context.Context, block bool) writeOutcome {
	select {
	case <-h.done:
		return h.loadOutcome()
	default:
	}

	if !block {
		return writeOutcome{sourceID: h.event.SourceID, err: h.timeoutError(nil)}
	}

	select {
	case <-h.done:
		return h.loadOutcome()
	case <-ctx.Done():
		return writeOutcome{sourceID: h.event.SourceID, err: h.timeoutError(ctx.Err())}
	}
}

func (h *Handle) loadOutcome() writeOutcome {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.outcome
}

// timeoutError reports the handle as unresolved at the wait deadline. The
// write may still land: the outcome is unknown, not failed, and resubmitting
// the event is safe because sourceIds dedupe at the store.
func (h *Handle) timeoutError(cause error) error {
	err := types.NewError(types.ErrWaitTimeout,
		fmt.Sprintf("event %s unresolved at wait deadline", h.event.SourceID)).
		WithRetryable(true)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}

// generateHandleID creates a unique handle ID.
// Uses an atomic counter combined with timestamp to prevent collisions under concurrency.
func generateHandleID() string {
	id := atomic.AddUint64(&handleCounter, 1)
	return fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), id)
}
