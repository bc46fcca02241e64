// Package poster delivers rendered announcements to the outside world.
//
// A Poster returns a *SendError (possibly wrapped) so callers can tell a
// retryable failure from a permanent rejection without knowing the platform.
package poster

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Result struct {
	ExternalID string
	URL        string
	SentAt     time.Time
}

type Poster interface {
	Name() string
	Send(ctx context.Context, content string) (Result, error)
	HealthCheck(ctx context.Context) error
}

type ErrorKind int

const (
	// Transient covers network failures, timeouts and 5xx responses.
	Transient ErrorKind = iota
	// RateLimited is retryable; RetryAfter carries the platform hint when known.
	RateLimited
	// Rejected is permanent (content policy, bad chat, revoked permissions).
	Rejected
)

func (k ErrorKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Rejected:
		return "rejected"
	default:
		return "transient"
	}
}

type SendError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("send %s (retry after %s): %v", e.Kind, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("send %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func transient(err error) error { return &SendError{Kind: Transient, Err: err} }
func rejected(err error) error  { return &SendError{Kind: Rejected, Err: err} }
func rateLimited(err error, after time.Duration) error {
	return &SendError{Kind: RateLimited, RetryAfter: after, Err: err}
}

// KindOf classifies err; unknown errors are Transient.
func KindOf(err error) ErrorKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Transient
}

func IsRejected(err error) bool { return err != nil && KindOf(err) == Rejected }

var ErrEmptyContent = errors.New("empty content")
