package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Files (one JSON document per logical table):
//   - <prefix>.tracked.json
//   - <prefix>.posted.json
//   - <prefix>.queue.json
//   - <prefix>.failed.json
//   - <prefix>.state.json
//
// All documents are held in memory and rewritten atomically (tmp + rename)
// on every mutation of that table.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	closed bool
	prefix string

	tracked []model.TrackedItem
	posted  []model.PostedRecord
	queue   map[string]model.QueuedPost
	failed  []model.FailedRecord
	state   map[string]model.ScalarValue
}

const (
	fileTracked = "tracked"
	filePosted  = "posted"
	fileQueue   = "queue"
	fileFailed  = "failed"
	fileState   = "state"
)

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:    log,
		prefix: filepath.Join(dir, base),
		queue:  map[string]model.QueuedPost{},
		state:  map[string]model.ScalarValue{},
	}

	var queued []model.QueuedPost
	loads := []struct {
		name string
		dst  any
	}{
		{fileTracked, &s.tracked},
		{filePosted, &s.posted},
		{fileQueue, &queued},
		{fileFailed, &s.failed},
		{fileState, &s.state},
	}
	for _, l := range loads {
		if err := s.load(l.name, l.dst); err != nil {
			return nil, err
		}
	}
	for _, p := range queued {
		s.queue[p.ID] = p
	}
	if s.state == nil {
		s.state = map[string]model.ScalarValue{}
	}

	// Make sure every document exists so Ping can check them.
	for _, name := range []string{fileTracked, filePosted, fileQueue, fileFailed, fileState} {
		if _, err := os.Stat(s.path(name)); errors.Is(err, os.ErrNotExist) {
			if err := s.saveLocked(name); err != nil {
				return nil, err
			}
		}
	}
	log.Debug("file storage opened", logx.String("prefix", s.prefix))
	return s, nil
}

func (s *fileStore) path(name string) string { return s.prefix + "." + name + ".json" }

func (s *fileStore) load(name string, dst any) error {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func (s *fileStore) saveLocked(name string) error {
	var v any
	switch name {
	case fileTracked:
		v = s.tracked
	case filePosted:
		v = s.posted
	case fileQueue:
		v = s.queuedSortedLocked()
	case fileFailed:
		v = s.failed
	case fileState:
		v = s.state
	}

	final := s.path(name)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func (s *fileStore) queuedSortedLocked() []model.QueuedPost {
	out := make([]model.QueuedPost, 0, len(s.queue))
	for _, p := range s.queue {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *fileStore) Driver() string { return "file" }

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *fileStore) Ping(ctx context.Context) error {
	_ = ctx
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, name := range []string{fileTracked, filePosted, fileQueue, fileFailed, fileState} {
		if _, err := os.Stat(s.path(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) TrackedExists(ctx context.Context, name, url string) (bool, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.trackedIndexLocked(name, url) >= 0, nil
}

func (s *fileStore) trackedIndexLocked(name, url string) int {
	for i, it := range s.tracked {
		if it.Name == name && it.SourceURL == url {
			return i
		}
	}
	return -1
}

func (s *fileStore) InsertTracked(ctx context.Context, it model.TrackedItem) (bool, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	if s.trackedIndexLocked(it.Name, it.SourceURL) >= 0 {
		return false, nil
	}
	s.tracked = append(s.tracked, it)
	if err := s.saveLocked(fileTracked); err != nil {
		s.tracked = s.tracked[:len(s.tracked)-1]
		return false, err
	}
	return true, nil
}

func (s *fileStore) CountTracked(ctx context.Context) (int, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.tracked), nil
}

func (s *fileStore) TrackedSince(ctx context.Context, cutoff time.Time) ([]model.TrackedItem, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []model.TrackedItem
	for _, it := range s.tracked {
		if !it.FirstSeenAt.Before(cutoff) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out, nil
}

func (s *fileStore) UpsertQueued(ctx context.Context, p model.QueuedPost) error {
	_ = ctx
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	prev, had := s.queue[p.ID]
	s.queue[p.ID] = p.Clone()
	if err := s.saveLocked(fileQueue); err != nil {
		if had {
			s.queue[p.ID] = prev
		} else {
			delete(s.queue, p.ID)
		}
		return err
	}
	return nil
}

func (s *fileStore) DeleteQueued(ctx context.Context, id string) error {
	_ = ctx
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	prev, had := s.queue[id]
	if !had {
		return nil
	}
	delete(s.queue, id)
	if err := s.saveLocked(fileQueue); err != nil {
		s.queue[id] = prev
		return err
	}
	return nil
}

func (s *fileStore) ListQueued(ctx context.Context) ([]model.QueuedPost, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.queuedSortedLocked(), nil
}

func (s *fileStore) CountQueued(ctx context.Context) (int, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.queue), nil
}

func (s *fileStore) InsertPosted(ctx context.Context, r model.PostedRecord) error {
	_ = ctx
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, p := range s.posted {
		if p.QueuedPostID == r.QueuedPostID {
			return nil
		}
	}
	s.posted = append(s.posted, r)
	if err := s.saveLocked(filePosted); err != nil {
		s.posted = s.posted[:len(s.posted)-1]
		return err
	}
	return nil
}

func (s *fileStore) PostedSince(ctx context.Context, cutoff time.Time) ([]model.PostedRecord, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []model.PostedRecord
	for _, r := range s.posted {
		if !r.PostedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

func (s *fileStore) CountPosted(ctx context.Context) (int, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.posted), nil
}

func (s *fileStore) DeletePostedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	prev := s.posted
	kept := make([]model.PostedRecord, 0, len(prev))
	for _, r := range prev {
		if !r.PostedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(prev) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.posted = kept
	if err := s.saveLocked(filePosted); err != nil {
		s.posted = prev
		return 0, err
	}
	return removed, nil
}

func (s *fileStore) InsertFailed(ctx context.Context, r model.FailedRecord) error {
	_ = ctx
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.failed = append(s.failed, r)
	if err := s.saveLocked(fileFailed); err != nil {
		s.failed = s.failed[:len(s.failed)-1]
		return err
	}
	return nil
}

func (s *fileStore) CountFailed(ctx context.Context) (int, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.failed), nil
}

func (s *fileStore) GetScalar(ctx context.Context, key string) (model.ScalarValue, bool, error) {
	_ = ctx
	if err := s.lock(); err != nil {
		return model.ScalarValue{}, false, err
	}
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok, nil
}

func (s *fileStore) SetScalar(ctx context.Context, key, value string, at time.Time) error {
	_ = ctx
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	prev, had := s.state[key]
	s.state[key] = model.ScalarValue{Value: value, UpdatedAt: at}
	if err := s.saveLocked(fileState); err != nil {
		if had {
			s.state[key] = prev
		} else {
			delete(s.state, key)
		}
		return err
	}
	return nil
}
