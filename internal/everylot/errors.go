package everylot

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound signals that the requested lot does not exist in the
	// dataset, regardless of posted state.
	ErrNotFound = errors.New("lot not found")

	// ErrExhausted signals that every lot has been posted. It is a normal
	// terminal condition, not a failure.
	ErrExhausted = errors.New("no unposted lots remain")

	// ErrAlreadyPosted signals that the compare-and-set commit lost a race:
	// the lot was already marked posted by another invocation.
	ErrAlreadyPosted = errors.New("lot already posted")
)

// PublishKind classifies feed-service failures into the retry taxonomy.
type PublishKind string

// Publish failure classes.
const (
	// PublishAuth is fatal: credentials are wrong, the run aborts and the
	// store is left untouched.
	PublishAuth PublishKind = "auth"
	// PublishTransient covers network errors, timeouts, rate limits and
	// server errors; the caller may retry a bounded number of times.
	PublishTransient PublishKind = "transient"
	// PublishRejected means the service refused the content. The run
	// aborts without marking the lot, so the next invocation retries it.
	PublishRejected PublishKind = "rejected"
)

// PublishError wraps a feed-service failure with its retry class.
type PublishError struct {
	Kind PublishKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish %s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("publish %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewPublishError builds a classified publish failure.
func NewPublishError(kind PublishKind, op string, err error) *PublishError {
	return &PublishError{Kind: kind, Op: op, Err: err}
}

// PublishKindOf extracts the failure class from an error chain.
// Errors that are not PublishErrors classify as transient, matching how
// raw transport errors are treated.
func PublishKindOf(err error) PublishKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return PublishTransient
}

// IsAuthFailure reports whether the error chain contains a fatal
// authentication failure.
func IsAuthFailure(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == PublishAuth
}

// IsTransient reports whether the error chain is retryable.
func IsTransient(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == PublishTransient
}

// IsRejected reports whether the feed service permanently refused the
// content of this post.
func IsRejected(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == PublishRejected
}
