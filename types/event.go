package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the typed kind of an activity event. Types are versioned
// separately (see Event.TypeVersion) so a payload change does not require
// renaming the type.
type EventType string

const (
	EventStarred               EventType = "STARRED"
	EventForked                EventType = "FORKED"
	EventStarAggregateStats    EventType = "STAR_AGGREGATE_STATS"
	EventForkAggregateStats    EventType = "FORK_AGGREGATE_STATS"
	EventWatcherAggregateStats EventType = "WATCHER_AGGREGATE_STATS"
	EventCommitCode            EventType = "COMMIT_CODE"
)

// DefaultTypeVersion is the current version stamped on newly built events.
const DefaultTypeVersion = 1

// Event is one time-stamped activity record targeting an artifact.
// SourceID is the idempotency key: recomputing it from the same logical
// occurrence always yields the same string, so re-delivery is a safe no-op
// at the store layer. Events are never mutated after submission.
type Event struct {
	Time        time.Time       `json:"time"`
	Type        EventType       `json:"type"`
	TypeVersion int             `json:"typeVersion"`
	To          Artifact        `json:"to"`
	From        *Artifact       `json:"from,omitempty"`
	Amount      float64         `json:"amount"`
	SourceID    string          `json:"sourceId"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// Validate checks the shape a recorder requires before accepting an event:
// a non-empty SourceID and a valid target artifact.
func (e *Event) Validate() error {
	if e.SourceID == "" {
		return NewError(ErrInvalidEvent, "event has empty sourceId")
	}
	if err := e.To.Validate(); err != nil {
		return NewError(ErrInvalidEvent, "event target invalid").WithCause(err)
	}
	if e.Type == "" {
		return NewError(ErrInvalidEvent, "event has empty type")
	}
	return nil
}

// DeriveSourceID computes the deterministic idempotency key for an event
// occurrence from its identifying parts (type, timestamp, owner, actor).
// The parts are joined canonically and hashed, so the same occurrence always
// maps to the same key and distinct occurrences virtually never collide.
func DeriveSourceID(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "::")))
	return hex.EncodeToString(h[:])
}

// NewStarredEvent builds a STARRED event for actor starring repo at ts.
func NewStarredEvent(ts time.Time, repo Artifact, actor Artifact) Event {
	from := actor
	return Event{
		Time:        ts,
		Type:        EventStarred,
		TypeVersion: DefaultTypeVersion,
		To:          repo,
		From:        &from,
		Amount:      1,
		SourceID: DeriveSourceID(string(EventStarred), ts.UTC().Format(time.RFC3339),
			repo.Key(), actor.Key()),
	}
}

// NewForkedEvent builds a FORKED event for actor forking repo at ts.
func NewForkedEvent(ts time.Time, repo Artifact, actor Artifact) Event {
	from := actor
	return Event{
		Time:        ts,
		Type:        EventForked,
		TypeVersion: DefaultTypeVersion,
		To:          repo,
		From:        &from,
		Amount:      1,
		SourceID: DeriveSourceID(string(EventForked), ts.UTC().Format(time.RFC3339),
			repo.Key(), actor.Key()),
	}
}

// NewAggregateStatsEvent builds a point-in-time total snapshot event of the
// given type. The event is stamped with the day of ts (UTC, truncated), and
// the key is derived from that day, so at most one snapshot per artifact,
// type and day is ever stored.
func NewAggregateStatsEvent(typ EventType, ts time.Time, repo Artifact, amount float64) Event {
	day := ts.UTC().Truncate(24 * time.Hour)
	return Event{
		Time:        day,
		Type:        typ,
		TypeVersion: DefaultTypeVersion,
		To:          repo,
		Amount:      amount,
		SourceID:    DeriveSourceID(string(typ), day.Format("2006-01-02"), repo.Key()),
	}
}

// String implements fmt.Stringer for log lines.
func (e *Event) String() string {
	return fmt.Sprintf("%s %s to=%s amount=%g", e.Type, e.Time.UTC().Format(time.RFC3339), e.To.Key(), e.Amount)
}
