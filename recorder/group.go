package recorder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/types"
)

// DefaultWaitTimeout bounds group waits when the caller does not configure
// one.
const DefaultWaitTimeout = 60 * time.Second

// GroupRecorder tracks the handles recorded during one collection run so a
// scheduler can wait on meaningful slices of the work: a single artifact's
// events, one event type across all artifacts, or everything at once.
type GroupRecorder struct {
	rec         *EventRecorder
	waitTimeout time.Duration
	logger      *zap.Logger

	mu         sync.RWMutex
	byArtifact map[string][]*Handle
	byType     map[types.EventType][]*Handle
	all        []*Handle
}

// NewGroupRecorder wraps rec. waitTimeout <= 0 selects DefaultWaitTimeout.
func NewGroupRecorder(rec *EventRecorder, waitTimeout time.Duration, logger *zap.Logger) *GroupRecorder {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &GroupRecorder{
		rec:         rec,
		waitTimeout: waitTimeout,
		logger:      logger.With(zap.String("component", "group_recorder")),
		byArtifact:  make(map[string][]*Handle),
		byType:      make(map[types.EventType][]*Handle),
	}
}

// Record delegates to the event recorder, then indexes the handle under the
// event's target identity, its source identity when present, and its type.
func (g *GroupRecorder) Record(ctx context.Context, event *types.Event) (*Handle, error) {
	h, err := g.rec.Record(ctx, event)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.byArtifact[event.To.Key()] = append(g.byArtifact[event.To.Key()], h)
	if event.From != nil {
		g.byArtifact[event.From.Key()] = append(g.byArtifact[event.From.Key()], h)
	}
	g.byType[event.Type] = append(g.byType[event.Type], h)
	g.all = append(g.all, h)
	g.mu.Unlock()

	return h, nil
}

// WaitArtifact resolves the handles recorded against artifact. An artifact
// with no recorded handles resolves immediately with empty results: absence
// of activity is not an error, and schedulers call this speculatively.
func (g *GroupRecorder) WaitArtifact(ctx context.Context, artifact types.Artifact) types.AsyncResults[string] {
	g.mu.RLock()
	handles := append([]*Handle(nil), g.byArtifact[artifact.Key()]...)
	g.mu.RUnlock()

	if len(handles) == 0 {
		g.logger.Debug("no handles recorded for artifact", zap.String("artifact", artifact.Key()))
		return types.EmptyResults[string]()
	}
	return g.rec.Wait(ctx, handles, g.waitTimeout.Milliseconds())
}

// WaitEventType resolves the handles recorded for one event type. A type
// with no recorded handles resolves immediately with empty results.
func (g *GroupRecorder) WaitEventType(ctx context.Context, eventType types.EventType) types.AsyncResults[string] {
	g.mu.RLock()
	handles := append([]*Handle(nil), g.byType[eventType]...)
	g.mu.RUnlock()

	if len(handles) == 0 {
		g.logger.Debug("no handles recorded for event type", zap.String("event_type", string(eventType)))
		return types.EmptyResults[string]()
	}
	return g.rec.Wait(ctx, handles, g.waitTimeout.Milliseconds())
}

// WaitAll resolves every handle tracked by this group.
func (g *GroupRecorder) WaitAll(ctx context.Context) types.AsyncResults[string] {
	g.mu.RLock()
	handles := append([]*Handle(nil), g.all...)
	g.mu.RUnlock()

	if len(handles) == 0 {
		return types.EmptyResults[string]()
	}
	return g.rec.Wait(ctx, handles, g.waitTimeout.Milliseconds())
}

// Tracked returns the number of handles recorded through this group.
func (g *GroupRecorder) Tracked() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.all)
}
