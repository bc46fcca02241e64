package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"announcebot/internal/compose"
	"announcebot/internal/model"
	"announcebot/internal/poster"
	"announcebot/internal/queue"
	"announcebot/internal/schedule"
	"announcebot/internal/storage"
	logx "announcebot/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type stubSource struct {
	mu     sync.Mutex
	items  []model.Item
	err    error
	health error
	since  []*time.Time
	called chan struct{}
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) ListNewItems(ctx context.Context, since *time.Time) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = append(s.since, since)
	if s.called != nil {
		select {
		case s.called <- struct{}{}:
		default:
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]model.Item(nil), s.items...), nil
}

func (s *stubSource) HealthCheck(context.Context) error { return s.health }

func (s *stubSource) Since() []*time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*time.Time(nil), s.since...)
}

type countingMetrics struct {
	mu       sync.Mutex
	detected map[string]int
	failed   int
	cycles   map[string]int
}

func (m *countingMetrics) Detected(src string, n int) {
	m.mu.Lock()
	m.detected[src] += n
	m.mu.Unlock()
}

func (m *countingMetrics) DetectFailed(string) {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *countingMetrics) Cycle(kind string) {
	m.mu.Lock()
	m.cycles[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) Checked(time.Time) {}

type fixture struct {
	ctx     context.Context
	clock   *fakeClock
	state   *storage.State
	source  *stubSource
	poster  *poster.DryRun
	metrics *countingMetrics
	bot     *Bot
}

func newFixture(t *testing.T, start time.Time, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		clock:   &fakeClock{t: start},
		source:  &stubSource{},
		poster:  poster.NewDryRun(logx.Nop()),
		metrics: &countingMetrics{detected: map[string]int{}, cycles: map[string]int{}},
	}
	b, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	f.state = storage.NewState(b, logx.Nop(), storage.WithClock(f.clock.Now))
	t.Cleanup(func() { _ = f.state.Close() })

	q := queue.New(f.state, f.poster, schedule.Default(), logx.Nop(), queue.WithClock(f.clock.Now))
	c, err := compose.New(compose.Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("compose.New: %v", err)
	}
	f.bot, err = New(cfg, Deps{State: f.state, Queue: q, Source: f.source, Poster: f.poster, Composer: c},
		logx.Nop(), WithClock(f.clock.Now), WithMetrics(f.metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func at(day, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC)
}

func items() []model.Item {
	return []model.Item{
		{Name: "kubectx", URL: "https://github.com/ahmetb/kubectx", Description: "Switch contexts", Category: "cluster", Popularity: 300},
		{Name: "k9s", URL: "https://github.com/derailed/k9s", Description: "Terminal UI for clusters", Category: "cluster", Popularity: 25000},
	}
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, Deps{}, logx.Nop()); err == nil {
		t.Fatal("New with no deps should fail")
	}
}

func TestRunOnceQueuesNewItemsOnce(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{})
	f.source.items = items()

	res, err := f.bot.RunOnce(f.ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Detected != 2 || res.Enqueued != 2 || res.Posted {
		t.Fatalf("first cycle = %+v", res)
	}
	snap := f.bot.Queue().Snapshot()
	if len(snap) != 2 {
		t.Fatalf("queued %d, want 2", len(snap))
	}
	if snap[0].Payload.Item.Name != "k9s" || snap[0].Priority != model.PriorityHigh {
		t.Fatalf("popular item should lead at high priority: %+v", snap[0])
	}
	if snap[1].Priority != model.PriorityNormal {
		t.Fatalf("second item priority = %d", snap[1].Priority)
	}
	if last, ok := f.state.LastCheck(f.ctx); !ok || !last.Equal(at(10, 8)) {
		t.Fatalf("last check = %v %v", last, ok)
	}
	if f.metrics.detected["stub"] != 2 {
		t.Fatalf("detected metric = %v", f.metrics.detected)
	}

	f.clock.Set(at(10, 8).Add(time.Minute))
	res, err = f.bot.RunOnce(f.ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Enqueued != 0 {
		t.Fatalf("known items queued again: %+v", res)
	}
	since := f.source.Since()
	if len(since) != 2 || since[0] != nil || since[1] == nil || !since[1].Equal(at(10, 8)) {
		t.Fatalf("since passed to source = %v", since)
	}
	if got := f.state.CountTracked(f.ctx); got != 2 {
		t.Fatalf("tracked = %d", got)
	}
}

func TestRunOnceDeliversDueHead(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{})
	f.source.items = items()
	if _, err := f.bot.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	head := f.bot.Queue().Snapshot()[0]

	f.clock.Set(*head.ScheduledFor)
	res, err := f.bot.RunOnce(f.ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Posted {
		t.Fatal("due head was not posted")
	}
	sent := f.poster.Sent()
	if len(sent) != 1 || sent[0] != head.Payload.Content {
		t.Fatalf("sent = %q", sent)
	}
	if f.bot.Queue().Len() != 1 {
		t.Fatalf("queue len = %d", f.bot.Queue().Len())
	}
	if _, ok := f.state.LastPost(f.ctx); !ok {
		t.Fatal("last post not recorded")
	}
}

func TestDetectionFailureKeepsLastCheck(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{})
	f.source.err = errors.New("api down")

	res, err := f.bot.RunOnce(f.ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Detected != 0 || res.Enqueued != 0 {
		t.Fatalf("res = %+v", res)
	}
	if _, ok := f.state.LastCheck(f.ctx); ok {
		t.Fatal("last check advanced after a failed detection")
	}
	if f.metrics.failed != 1 {
		t.Fatalf("failures = %d", f.metrics.failed)
	}
}

func TestTrendingThresholdDisabled(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{TrendingStars: -1})
	f.source.items = items()
	if _, err := f.bot.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	for _, p := range f.bot.Queue().Snapshot() {
		if p.Priority != model.PriorityNormal {
			t.Fatalf("%s priority = %d", p.Payload.Item.Name, p.Priority)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{})

	h := f.bot.HealthCheck(f.ctx)
	if !h.Healthy || len(h.Components) != 3 {
		t.Fatalf("health = %+v", h)
	}

	f.source.health = errors.New("401 bad credentials")
	h = f.bot.HealthCheck(f.ctx)
	if h.Healthy {
		t.Fatal("expected unhealthy")
	}
	src := h.Components["source"]
	if src.Status != StatusUnhealthy || !strings.Contains(src.Error, "bad credentials") {
		t.Fatalf("source = %+v", src)
	}
	if h.Components["storage"].Status != StatusHealthy {
		t.Fatalf("storage = %+v", h.Components["storage"])
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{})
	f.source.items = items()
	if _, err := f.bot.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	st := f.bot.Stats(f.ctx)
	if st.TrackedItems != 2 || st.QueuedPosts != 2 || st.PostedPosts != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if st.Storage != "file" || st.Poster != "dryrun" || st.Source != "stub" {
		t.Fatalf("names = %+v", st)
	}
	if st.LastCheck == nil || st.LastPost != nil {
		t.Fatalf("timestamps = %v %v", st.LastCheck, st.LastPost)
	}
	if st.Queue.TotalQueued != 2 || st.Queue.DailyLimit != schedule.DefaultDailyQuota {
		t.Fatalf("queue status = %+v", st.Queue)
	}
}

func TestSummaryQueuesRecap(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{SummaryLink: "https://collabnix.github.io/kubetools/"})

	if id := f.bot.Summary(f.ctx); id != "" {
		t.Fatalf("summary with nothing tracked queued %q", id)
	}

	f.source.items = items()
	if _, err := f.bot.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	id := f.bot.Summary(f.ctx)
	if id == "" {
		t.Fatal("summary not queued")
	}
	var found bool
	for _, p := range f.bot.Queue().Snapshot() {
		if p.ID == id {
			found = true
			if !strings.Contains(p.Payload.Content, "2 new tools") {
				t.Fatalf("summary content = %q", p.Payload.Content)
			}
		}
	}
	if !found {
		t.Fatalf("summary %s missing from queue", id)
	}
}

func TestPruneRespectsRetention(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{Retention: 24 * time.Hour})
	old := model.PostedRecord{QueuedPostID: "old", Content: "x", PostedAt: at(1, 9)}
	fresh := model.PostedRecord{QueuedPostID: "fresh", Content: "y", PostedAt: at(10, 7)}
	for _, r := range []model.PostedRecord{old, fresh} {
		if err := f.state.AppendPosted(f.ctx, r); err != nil {
			t.Fatalf("AppendPosted: %v", err)
		}
	}
	if n := f.bot.Prune(f.ctx); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if got := f.state.CountPosted(f.ctx); got != 1 {
		t.Fatalf("posted left = %d", got)
	}
}

func TestUpdateScheduleAndContent(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{})
	p, err := schedule.New(2, []int{10, 20}, time.UTC)
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	f.bot.UpdateSchedule(f.ctx, p)
	if f.bot.Queue().Policy().DailyQuota != 2 {
		t.Fatalf("policy not applied")
	}

	c, err := compose.New(compose.Config{Topic: "DevOps"}, logx.Nop())
	if err != nil {
		t.Fatalf("compose.New: %v", err)
	}
	f.bot.SetContent(c, -1, "")
	f.bot.SetContent(nil, 5, "x")
	if f.bot.Composer() != c {
		t.Fatal("composer not swapped")
	}

	f.source.items = items()
	if _, err := f.bot.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	for _, p := range f.bot.Queue().Snapshot() {
		if p.Priority != model.PriorityNormal {
			t.Fatalf("trending disabled by SetContent, got priority %d for %s", p.Priority, p.Payload.Item.Name)
		}
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{CheckInterval: time.Hour, PostInterval: time.Hour})
	f.source.called = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.RunForever(ctx) }()

	select {
	case <-f.source.called:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate cycle did not run")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("RunForever = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("RunForever did not return")
	}
}

func TestRunForeverRejectsBadSpec(t *testing.T) {
	f := newFixture(t, at(10, 8), Config{PruneSpec: "not a cron"})
	if err := f.bot.RunForever(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
