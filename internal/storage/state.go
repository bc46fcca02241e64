package storage

import (
	"context"
	"time"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

// State is the fail-soft State Store used by the queue and the orchestrator.
//
// Every operation is isolated: a failure is logged with the operation and key,
// reported to the error hook, and degrades to a safe default (false, 0, empty).
// Re-processing a duplicate is preferred over crashing the pipeline.
type State struct {
	b      Backend
	log    logx.Logger
	now    func() time.Time
	onFail func(op string)
}

type StateOption func(*State)

// WithClock overrides the time source used for first-seen and updated-at stamps.
func WithClock(now func() time.Time) StateOption {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// WithErrorHook installs a callback invoked once per absorbed failure.
func WithErrorHook(fn func(op string)) StateOption {
	return func(s *State) { s.onFail = fn }
}

func NewState(b Backend, log logx.Logger, opts ...StateOption) *State {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &State{b: b, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *State) Driver() string { return s.b.Driver() }

func (s *State) Close() error { return s.b.Close() }

func (s *State) fail(op string, err error, fields ...logx.Field) {
	s.log.Error("storage operation failed", append([]logx.Field{logx.String("op", op), logx.Err(err)}, fields...)...)
	if s.onFail != nil {
		s.onFail(op)
	}
}

// Exists reports whether (name, url) was already tracked. On I/O failure it
// returns false so the item is re-detected rather than silently lost.
func (s *State) Exists(ctx context.Context, name, url string) bool {
	ok, err := s.b.TrackedExists(ctx, name, url)
	if err != nil {
		s.fail("exists", err, logx.String("name", name), logx.String("url", url))
		return false
	}
	return ok
}

// Record inserts a tracked item; a duplicate (name, url) is a no-op.
func (s *State) Record(ctx context.Context, it model.TrackedItem) error {
	if it.FirstSeenAt.IsZero() {
		it.FirstSeenAt = s.now().UTC()
	}
	inserted, err := s.b.InsertTracked(ctx, it)
	if err != nil {
		s.fail("record", err, logx.String("name", it.Name), logx.String("url", it.SourceURL))
		return err
	}
	if inserted {
		s.log.Debug("tracked item recorded", logx.String("name", it.Name))
	}
	return nil
}

// RecentTracked returns items first seen at or after cutoff, ascending.
func (s *State) RecentTracked(ctx context.Context, cutoff time.Time) []model.TrackedItem {
	out, err := s.b.TrackedSince(ctx, cutoff)
	if err != nil {
		s.fail("recent_tracked", err, logx.Time("cutoff", cutoff))
		return nil
	}
	return out
}

func (s *State) GetScalar(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.b.GetScalar(ctx, key)
	if err != nil {
		s.fail("get_scalar", err, logx.String("key", key))
		return "", false
	}
	return v.Value, ok
}

func (s *State) SetScalar(ctx context.Context, key, value string) error {
	if err := s.b.SetScalar(ctx, key, value, s.now().UTC()); err != nil {
		s.fail("set_scalar", err, logx.String("key", key))
		return err
	}
	return nil
}

func (s *State) getTime(ctx context.Context, key string) (time.Time, bool) {
	raw, ok := s.GetScalar(ctx, key)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.fail("parse_scalar", err, logx.String("key", key), logx.String("value", raw))
		return time.Time{}, false
	}
	return t, true
}

func (s *State) LastCheck(ctx context.Context) (time.Time, bool) { return s.getTime(ctx, KeyLastCheck) }
func (s *State) LastPost(ctx context.Context) (time.Time, bool)  { return s.getTime(ctx, KeyLastPost) }

func (s *State) SetLastCheck(ctx context.Context, t time.Time) error {
	return s.SetScalar(ctx, KeyLastCheck, t.UTC().Format(time.RFC3339Nano))
}

func (s *State) SetLastPost(ctx context.Context, t time.Time) error {
	return s.SetScalar(ctx, KeyLastPost, t.UTC().Format(time.RFC3339Nano))
}

func (s *State) AppendPosted(ctx context.Context, r model.PostedRecord) error {
	if err := s.b.InsertPosted(ctx, r); err != nil {
		s.fail("append_posted", err, logx.String("id", r.QueuedPostID))
		return err
	}
	return nil
}

func (s *State) AppendFailed(ctx context.Context, r model.FailedRecord) error {
	if err := s.b.InsertFailed(ctx, r); err != nil {
		s.fail("append_failed", err, logx.String("id", r.QueuedPostID))
		return err
	}
	return nil
}

func (s *State) PersistQueued(ctx context.Context, p model.QueuedPost) error {
	if err := s.b.UpsertQueued(ctx, p); err != nil {
		s.fail("persist_queued", err, logx.String("id", p.ID))
		return err
	}
	return nil
}

func (s *State) RemoveQueued(ctx context.Context, id string) error {
	if err := s.b.DeleteQueued(ctx, id); err != nil {
		s.fail("remove_queued", err, logx.String("id", id))
		return err
	}
	return nil
}

// LoadQueue returns the persisted pending posts (unordered).
func (s *State) LoadQueue(ctx context.Context) []model.QueuedPost {
	out, err := s.b.ListQueued(ctx)
	if err != nil {
		s.fail("load_queue", err)
		return nil
	}
	return out
}

// RecentPostedSince returns delivered posts at or after cutoff, ascending by PostedAt.
func (s *State) RecentPostedSince(ctx context.Context, cutoff time.Time) []model.PostedRecord {
	out, err := s.b.PostedSince(ctx, cutoff)
	if err != nil {
		s.fail("recent_posted", err, logx.Time("cutoff", cutoff))
		return nil
	}
	return out
}

// PrunePosted deletes history older than the retention window.
func (s *State) PrunePosted(ctx context.Context, retention time.Duration) int {
	cutoff := s.now().Add(-retention)
	n, err := s.b.DeletePostedBefore(ctx, cutoff)
	if err != nil {
		s.fail("prune_posted", err, logx.Time("cutoff", cutoff))
		return 0
	}
	if n > 0 {
		s.log.Info("pruned posted history", logx.Int("removed", n), logx.Duration("retention", retention))
	}
	return n
}

func (s *State) CountTracked(ctx context.Context) int {
	return s.count(ctx, "count_tracked", s.b.CountTracked)
}

func (s *State) CountQueued(ctx context.Context) int {
	return s.count(ctx, "count_queued", s.b.CountQueued)
}

func (s *State) CountPosted(ctx context.Context) int {
	return s.count(ctx, "count_posted", s.b.CountPosted)
}

func (s *State) CountFailed(ctx context.Context) int {
	return s.count(ctx, "count_failed", s.b.CountFailed)
}

func (s *State) count(ctx context.Context, op string, fn func(context.Context) (int, error)) int {
	n, err := fn(ctx)
	if err != nil {
		s.fail(op, err)
		return 0
	}
	return n
}

// HealthCheck is a lightweight liveness probe against the backing storage.
func (s *State) HealthCheck(ctx context.Context) bool {
	if err := s.b.Ping(ctx); err != nil {
		s.fail("health_check", err)
		return false
	}
	return true
}
