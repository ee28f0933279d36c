package types

// AsyncResults aggregates the outcomes of independently resolved
// asynchronous operations: an ordered sequence of succeeded values and an
// ordered sequence of failures. Every input maps to exactly one outcome in
// one of the two sequences; no ordering relationship beyond that is implied.
type AsyncResults[T any] struct {
	Success []T     `json:"success"`
	Errors  []error `json:"errors"`
}

// EmptyResults returns results with zero successes and zero errors, the
// value a vacuous wait resolves to.
func EmptyResults[T any]() AsyncResults[T] {
	return AsyncResults[T]{Success: []T{}, Errors: []error{}}
}

// AddSuccess appends a succeeded value.
func (r *AsyncResults[T]) AddSuccess(v T) {
	r.Success = append(r.Success, v)
}

// AddError appends a failure.
func (r *AsyncResults[T]) AddError(err error) {
	r.Errors = append(r.Errors, err)
}

// Merge folds other into r, preserving order within each sequence.
func (r *AsyncResults[T]) Merge(other AsyncResults[T]) {
	r.Success = append(r.Success, other.Success...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Failed reports whether any outcome was a failure.
func (r *AsyncResults[T]) Failed() bool {
	return len(r.Errors) > 0
}

// Len returns the total number of resolved outcomes.
func (r *AsyncResults[T]) Len() int {
	return len(r.Success) + len(r.Errors)
}
