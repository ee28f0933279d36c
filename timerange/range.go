// Package timerange implements the closed-interval algebra the collection
// engine uses to reason about already-covered time windows: intersection
// under an inclusive-boundary policy, union, and construction from
// timestamp strings.
package timerange

import (
	"fmt"
	"time"

	"github.com/BaSui01/eventflow/types"
)

// Range is a closed interval [Start, End] over timestamps. Start <= End
// always holds for ranges built through the package constructors.
type Range struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// New constructs a Range, rejecting inverted bounds.
func New(start, end time.Time) (Range, error) {
	if start.After(end) {
		return Range{}, types.NewError(types.ErrMalformedTimestamp,
			fmt.Sprintf("range start %s after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}
	return Range{Start: start, End: end}, nil
}

// FromISO constructs a Range from two RFC 3339 timestamp strings. It fails
// with a MALFORMED_TIMESTAMP error when either string cannot be parsed or
// when start > end.
func FromISO(startISO, endISO string) (Range, error) {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		return Range{}, types.NewError(types.ErrMalformedTimestamp,
			fmt.Sprintf("unparseable range start %q", startISO)).WithCause(err)
	}
	end, err := time.Parse(time.RFC3339, endISO)
	if err != nil {
		return Range{}, types.NewError(types.ErrMalformedTimestamp,
			fmt.Sprintf("unparseable range end %q", endISO)).WithCause(err)
	}
	return New(start, end)
}

// Intersects reports whether a and b overlap. With inclusive=true, intervals
// sharing exactly one boundary timestamp count as intersecting, so a window
// collected up to T absorbs a request starting exactly at T and adjacent
// fetch windows stitch without gaps.
func Intersects(a, b Range, inclusive bool) bool {
	if inclusive {
		return !a.End.Before(b.Start) && !b.End.Before(a.Start)
	}
	return a.End.After(b.Start) && b.End.After(a.Start)
}

// Union returns the smallest Range covering both a and b: min of starts,
// max of ends. It is defined for disjoint pairs too; whether the hull of
// disjoint ranges is meaningful is the caller's concern.
func Union(a, b Range) Range {
	u := a
	if b.Start.Before(u.Start) {
		u.Start = b.Start
	}
	if b.End.After(u.End) {
		u.End = b.End
	}
	return u
}

// Contains reports whether t lies within the closed interval.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Covers reports whether r fully covers other, boundaries included.
func (r Range) Covers(other Range) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// IsZero reports whether the range is the zero value.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// String implements fmt.Stringer for log lines.
func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
}
