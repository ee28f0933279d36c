package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/types"
)

var (
	// ErrRecorderClosed rejects records submitted after Close.
	ErrRecorderClosed = types.NewError(types.ErrRecorderClosed, "event recorder is closed")
	// ErrQueueFull resolves handles that could not be enqueued. Resubmission
	// is safe: sourceId dedupe makes the retry idempotent.
	ErrQueueFull = types.NewError(types.ErrRecordWriteFailure, "event queue is full").WithRetryable(true)
)

// WriteResult reports the outcome of committing one event.
type WriteResult struct {
	SourceID string
	Inserted bool // false when an event with the same sourceId already existed
	Err      error
}

// EventWriter commits event batches durably. Implementations must be safe
// for concurrent use. A nil error promises one result per input event; a
// non-nil error reports a batch-level failure, after which the recorder
// retries each event of the batch individually.
type EventWriter interface {
	WriteEvents(ctx context.Context, events []*types.Event) ([]WriteResult, error)
}

// WriterFunc adapts a function to the EventWriter interface.
type WriterFunc func(ctx context.Context, events []*types.Event) ([]WriteResult, error)

// WriteEvents implements EventWriter.
func (f WriterFunc) WriteEvents(ctx context.Context, events []*types.Event) ([]WriteResult, error) {
	return f(ctx, events)
}

// Config controls batching for the event recorder.
type Config struct {
	MaxBatchSize  int           `json:"max_batch_size" yaml:"max_batch_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
	QueueSize     int           `json:"queue_size" yaml:"queue_size"`
	Workers       int           `json:"workers" yaml:"workers"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  50,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     1000,
		Workers:       2,
	}
}

// pendingEvent pairs a handle with its submission context so batch writes
// inherit a live deadline.
type pendingEvent struct {
	handle *Handle
	ctx    context.Context
}

// EventRecorder accepts events, batches them, and commits them through an
// EventWriter. Every accepted event gets a Handle resolving to its committed
// sourceId or to a write failure.
type EventRecorder struct {
	cfg    Config
	writer EventWriter
	logger *zap.Logger

	queue  chan *pendingEvent
	closed atomic.Bool
	wg     sync.WaitGroup

	// unwaited tracks handles not yet claimed by Wait or WaitAll.
	mu       sync.Mutex
	unwaited map[string]*Handle

	recorded  atomic.Int64
	batches   atomic.Int64
	committed atomic.Int64
	failed    atomic.Int64
}

// NewEventRecorder starts cfg.Workers workers draining the event queue.
// Zero config fields fall back to DefaultConfig values.
func NewEventRecorder(cfg Config, writer EventWriter, logger *zap.Logger) *EventRecorder {
	def := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	r := &EventRecorder{
		cfg:      cfg,
		writer:   writer,
		logger:   logger.With(zap.String("component", "event_recorder")),
		queue:    make(chan *pendingEvent, cfg.QueueSize),
		unwaited: make(map[string]*Handle),
	}

	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

// Record validates the event shape, enqueues the event for asynchronous
// commit, and returns a tracking handle without blocking. A full queue or a
// cancelled context resolves the handle with a retryable failure instead of
// dropping it silently.
func (r *EventRecorder) Record(ctx context.Context, event *types.Event) (*Handle, error) {
	if r.closed.Load() {
		return nil, ErrRecorderClosed
	}
	if event == nil {
		return nil, types.NewError(types.ErrInvalidEvent, "nil event")
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	r.recorded.Add(1)

	h := newHandle(event)
	r.track(h)

	pending := &pendingEvent{handle: h, ctx: ctx}

	select {
	case r.queue <- pending:
	case <-ctx.Done():
		r.failed.Add(1)
		h.resolve(writeOutcome{sourceID: event.SourceID, err: types.
			NewError(types.ErrRecordWriteFailure, "event submission cancelled").
			WithCause(ctx.Err()).WithRetryable(true)})
	default:
		r.failed.Add(1)
		h.resolve(writeOutcome{sourceID: event.SourceID, err: ErrQueueFull})
	}

	return h, nil
}

// Wait resolves every given handle within timeoutMs milliseconds,
// partitioning committed sourceIds from failures. A handle unresolved at
// the deadline is reported as a WaitTimeout failure, never dropped.
// timeoutMs == 0 checks without blocking. Wait is idempotent: resolved
// handles report the same outcome on every call.
func (r *EventRecorder) Wait(ctx context.Context, handles []*Handle, timeoutMs int64) types.AsyncResults[string] {
	results := types.EmptyResults[string]()
	if len(handles) == 0 {
		return results
	}

	r.claim(handles)

	// One shared deadline bounds the whole set. Cancellation broadcasts
	// through ctx.Done, so every handle past the first still observes it.
	waitCtx := ctx
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	for _, h := range handles {
		if h == nil {
			continue
		}
		out := h.await(waitCtx, timeoutMs > 0)
		if out.err != nil {
			results.AddError(out.err)
		} else {
			results.AddSuccess(out.sourceID)
		}
	}

	return results
}

// WaitAll resolves every handle issued by this recorder that no Wait call
// has claimed yet.
func (r *EventRecorder) WaitAll(ctx context.Context, timeoutMs int64) types.AsyncResults[string] {
	return r.Wait(ctx, r.claimAll(), timeoutMs)
}

// Close stops intake, flushes queued events, and waits for workers to exit.
func (r *EventRecorder) Close() {
	if r.closed.Swap(true) {
		return
	}
	close(r.queue)
	r.wg.Wait()
}

func (r *EventRecorder) track(h *Handle) {
	r.mu.Lock()
	r.unwaited[h.id] = h
	r.mu.Unlock()
}

// claim removes handles from the unwaited set so WaitAll does not resolve
// them a second time.
func (r *EventRecorder) claim(handles []*Handle) {
	r.mu.Lock()
	for _, h := range handles {
		if h != nil {
			delete(r.unwaited, h.id)
		}
	}
	r.mu.Unlock()
}

func (r *EventRecorder) claimAll() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]*Handle, 0, len(r.unwaited))
	for _, h := range r.unwaited {
		handles = append(handles, h)
	}
	r.unwaited = make(map[string]*Handle)
	return handles
}

func (r *EventRecorder) worker() {
	defer r.wg.Done()

	batch := make([]*pendingEvent, 0, r.cfg.MaxBatchSize)
	timer := time.NewTimer(r.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case pending, ok := <-r.queue:
			if !ok {
				// drain what is left before exiting
				if len(batch) > 0 {
					r.flush(batch)
				}
				return
			}

			batch = append(batch, pending)

			if len(batch) >= r.cfg.MaxBatchSize {
				r.flush(batch)
				batch = batch[:0]
				timer.Reset(r.cfg.FlushInterval)
			}

		case <-timer.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(r.cfg.FlushInterval)
		}
	}
}

// flush commits one batch. A batch-level writer error triggers per-event
// fallback writes so a single bad row cannot fail its siblings.
func (r *EventRecorder) flush(batch []*pendingEvent) {
	if len(batch) == 0 {
		return
	}

	r.batches.Add(1)

	events := make([]*types.Event, len(batch))
	for i, p := range batch {
		events[i] = p.handle.event
	}

	// The batch inherits the first submission's context.
	ctx := batch[0].ctx

	results, err := r.writer.WriteEvents(ctx, events)
	if err != nil {
		r.logger.Warn("batch write failed, falling back to per-event writes",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		for _, p := range batch {
			r.writeOne(ctx, p)
		}
		return
	}

	outcomes := make(map[string]WriteResult, len(results))
	for _, res := range results {
		outcomes[res.SourceID] = res
	}

	for _, p := range batch {
		res, ok := outcomes[p.handle.event.SourceID]
		if !ok {
			res = WriteResult{
				SourceID: p.handle.event.SourceID,
				Err: types.NewError(types.ErrRecordWriteFailure,
					"writer returned no result for event"),
			}
		}
		r.deliver(p.handle, res)
	}
}

// writeOne commits a single event, isolating its outcome from the batch.
func (r *EventRecorder) writeOne(ctx context.Context, p *pendingEvent) {
	sourceID := p.handle.event.SourceID

	results, err := r.writer.WriteEvents(ctx, []*types.Event{p.handle.event})
	switch {
	case err != nil:
		r.deliver(p.handle, WriteResult{
			SourceID: sourceID,
			Err: types.NewError(types.ErrRecordWriteFailure, "event write failed").
				WithCause(err).WithRetryable(true),
		})
	case len(results) == 0:
		r.deliver(p.handle, WriteResult{
			SourceID: sourceID,
			Err:      types.NewError(types.ErrRecordWriteFailure, "writer returned no result for event"),
		})
	default:
		r.deliver(p.handle, results[0])
	}
}

// deliver resolves the handle and maintains the counters.
func (r *EventRecorder) deliver(h *Handle, res WriteResult) {
	if res.Err != nil {
		r.failed.Add(1)
		h.resolve(writeOutcome{sourceID: res.SourceID, err: res.Err})
		return
	}
	r.committed.Add(1)
	h.resolve(writeOutcome{sourceID: res.SourceID, inserted: res.Inserted})
}

// Stats is a point-in-time snapshot of recorder counters.
type Stats struct {
	Recorded  int64 `json:"recorded"`
	Batches   int64 `json:"batches"`
	Committed int64 `json:"committed"`
	Failed    int64 `json:"failed"`
	Queued    int   `json:"queued"`
}

// Stats returns current recorder counters.
func (r *EventRecorder) Stats() Stats {
	return Stats{
		Recorded:  r.recorded.Load(),
		Batches:   r.batches.Load(),
		Committed: r.committed.Load(),
		Failed:    r.failed.Load(),
		Queued:    len(r.queue),
	}
}

// BatchEfficiency returns the average number of events per flushed batch.
func (s Stats) BatchEfficiency() float64 {
	if s.Batches == 0 {
		return 0
	}
	return float64(s.Committed+s.Failed) / float64(s.Batches)
}
