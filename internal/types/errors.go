package types

import (
	"errors"
	"fmt"
)

// BusUnavailableError is returned when the event bus cannot accept or hand
// out events within its timeout. Always retryable.
type BusUnavailableError struct {
	Topic  string
	Reason string
}

func (e *BusUnavailableError) Error() string {
	return fmt.Sprintf("bus unavailable for topic %s: %s", e.Topic, e.Reason)
}

func NewBusUnavailableError(topic, reason string) *BusUnavailableError {
	return &BusUnavailableError{Topic: topic, Reason: reason}
}

func IsBusUnavailable(err error) bool {
	var target *BusUnavailableError
	return errors.As(err, &target)
}

// StaleLeaseError is returned when a lease token no longer matches the
// country's current lease. Callers treat it as a no-op.
type StaleLeaseError struct {
	Country string
	Token   string
}

func (e *StaleLeaseError) Error() string {
	return fmt.Sprintf("stale lease token for country %s", e.Country)
}

func NewStaleLeaseError(country, token string) *StaleLeaseError {
	return &StaleLeaseError{Country: country, Token: token}
}

func IsStaleLease(err error) bool {
	var target *StaleLeaseError
	return errors.As(err, &target)
}

// StageConflictError marks a duplicate delivery: the post is already at or
// past the stage the handler wanted to apply. Not a failure.
type StageConflictError struct {
	PostID  string
	Current string
	Wanted  string
}

func (e *StageConflictError) Error() string {
	return fmt.Sprintf("post %s already at %s, wanted %s", e.PostID, e.Current, e.Wanted)
}

func NewStageConflictError(postID, current, wanted string) *StageConflictError {
	return &StageConflictError{PostID: postID, Current: current, Wanted: wanted}
}

func IsStageConflict(err error) bool {
	var target *StageConflictError
	return errors.As(err, &target)
}

// StageFailureError wraps a handler error for one stage invocation. The
// coordinator retries it with backoff until the attempt ceiling.
type StageFailureError struct {
	PostID  string
	Stage   string
	Attempt int
	Err     error
}

func (e *StageFailureError) Error() string {
	return fmt.Sprintf("stage %s failed for post %s (attempt %d): %v", e.Stage, e.PostID, e.Attempt, e.Err)
}

func (e *StageFailureError) Unwrap() error {
	return e.Err
}

func NewStageFailureError(postID, stage string, attempt int, err error) *StageFailureError {
	return &StageFailureError{PostID: postID, Stage: stage, Attempt: attempt, Err: err}
}

func IsStageFailure(err error) bool {
	var target *StageFailureError
	return errors.As(err, &target)
}

// AggregateInconsistencyError reports a broken aggregate invariant
// (distribution sum, post count and dedupe set disagree). It triggers a
// recompute from the durable classification log instead of crashing.
type AggregateInconsistencyError struct {
	Country string
	Detail  string
}

func (e *AggregateInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent aggregate state for %s: %s", e.Country, e.Detail)
}

func NewAggregateInconsistencyError(country, detail string) *AggregateInconsistencyError {
	return &AggregateInconsistencyError{Country: country, Detail: detail}
}

func IsAggregateInconsistency(err error) bool {
	var target *AggregateInconsistencyError
	return errors.As(err, &target)
}
