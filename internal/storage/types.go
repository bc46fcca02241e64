package storage

import (
	"context"
	"errors"
	"time"

	"announcebot/internal/model"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": JSON document files next to Path (<prefix>.tracked.json, ...)
//
// With Fallback set, a failed sqlite open falls back to the file driver
// using the same path prefix.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Fallback    bool
}

// Backend is the persistence capability used by State. Two variants exist
// (sqlite, file); callers never depend on which one is active.
//
// Every method reports I/O failures as errors; fail-soft policy lives in State.
type Backend interface {
	Driver() string

	TrackedExists(ctx context.Context, name, url string) (bool, error)
	// InsertTracked is insert-or-ignore on (name, source_url).
	InsertTracked(ctx context.Context, it model.TrackedItem) (inserted bool, err error)
	CountTracked(ctx context.Context) (int, error)
	// TrackedSince returns items first seen at or after cutoff, ascending.
	TrackedSince(ctx context.Context, cutoff time.Time) ([]model.TrackedItem, error)

	UpsertQueued(ctx context.Context, p model.QueuedPost) error
	DeleteQueued(ctx context.Context, id string) error
	ListQueued(ctx context.Context) ([]model.QueuedPost, error)
	CountQueued(ctx context.Context) (int, error)

	// InsertPosted ignores a second record for the same queued post id.
	InsertPosted(ctx context.Context, r model.PostedRecord) error
	// PostedSince returns records with PostedAt >= cutoff, ascending by PostedAt.
	PostedSince(ctx context.Context, cutoff time.Time) ([]model.PostedRecord, error)
	CountPosted(ctx context.Context) (int, error)
	DeletePostedBefore(ctx context.Context, cutoff time.Time) (int, error)

	InsertFailed(ctx context.Context, r model.FailedRecord) error
	CountFailed(ctx context.Context) (int, error)

	GetScalar(ctx context.Context, key string) (model.ScalarValue, bool, error)
	SetScalar(ctx context.Context, key, value string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// Scalar keys of the process state mapping.
const (
	KeyLastCheck = "last_check_timestamp"
	KeyLastPost  = "last_post_timestamp"
)
