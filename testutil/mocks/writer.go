// Package mocks provides mock collaborators for eventflow tests.
//
// Mocks follow a builder style: construct, chain WithX configuration, then
// hand the mock to the code under test. All mocks are safe for concurrent
// use.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/types"
)

// EventWriter is a mock recorder.EventWriter with call recording and error
// injection. By default every write succeeds and repeated sourceIds report
// Inserted=false, mirroring insert-if-absent semantics.
type EventWriter struct {
	mu sync.Mutex

	batchErr  error           // fail every call outright
	poisonID  string          // fail multi-event batches containing this sourceId
	rowErrs   map[string]bool // fail these sourceIds per row
	delay     time.Duration
	failAfter int // fail calls after the nth

	seen      map[string]bool
	written   []string
	calls     [][]*types.Event
	callCount int
}

// NewEventWriter creates a mock writer that accepts everything.
func NewEventWriter() *EventWriter {
	return &EventWriter{
		rowErrs: make(map[string]bool),
		seen:    make(map[string]bool),
	}
}

// WithBatchError makes every WriteEvents call fail with err.
func (m *EventWriter) WithBatchError(err error) *EventWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchErr = err
	return m
}

// WithPoisonSourceID makes any multi-event batch containing sourceID fail
// with a batch-level error, while a single-event call for it reports a
// per-row failure. This mirrors how one bad row poisons a multi-row insert.
func (m *EventWriter) WithPoisonSourceID(sourceID string) *EventWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poisonID = sourceID
	return m
}

// WithFailSourceID makes rows with sourceID report a per-row write failure.
func (m *EventWriter) WithFailSourceID(sourceID string) *EventWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowErrs[sourceID] = true
	return m
}

// WithDelay makes every call sleep for d before responding.
func (m *EventWriter) WithDelay(d time.Duration) *EventWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter makes calls after the nth fail at batch level.
func (m *EventWriter) WithFailAfter(n int) *EventWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WriteEvents implements recorder.EventWriter.
func (m *EventWriter) WriteEvents(ctx context.Context, events []*types.Event) ([]recorder.WriteResult, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	m.calls = append(m.calls, append([]*types.Event(nil), events...))
	batchErr := m.batchErr
	poisonID := m.poisonID
	delay := m.delay
	failAfter := m.failAfter
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if batchErr != nil {
		return nil, batchErr
	}
	if failAfter > 0 && count > failAfter {
		return nil, fmt.Errorf("mock writer: failing call %d", count)
	}
	if poisonID != "" && len(events) > 1 {
		for _, ev := range events {
			if ev.SourceID == poisonID {
				return nil, fmt.Errorf("mock writer: batch poisoned by %s", poisonID)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]recorder.WriteResult, len(events))
	for i, ev := range events {
		res := recorder.WriteResult{SourceID: ev.SourceID}
		switch {
		case m.rowErrs[ev.SourceID] || ev.SourceID == poisonID:
			res.Err = types.NewError(types.ErrRecordWriteFailure, "mock writer: rejected "+ev.SourceID)
		case m.seen[ev.SourceID]:
			// already present, success without insert
		default:
			m.seen[ev.SourceID] = true
			m.written = append(m.written, ev.SourceID)
			res.Inserted = true
		}
		results[i] = res
	}
	return results, nil
}

// Written returns the sourceIds inserted so far, in write order.
func (m *EventWriter) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

// Calls returns a copy of every batch passed to WriteEvents.
func (m *EventWriter) Calls() [][]*types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*types.Event, len(m.calls))
	for i, c := range m.calls {
		out[i] = append([]*types.Event(nil), c...)
	}
	return out
}

// CallCount returns how many times WriteEvents ran.
func (m *EventWriter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
