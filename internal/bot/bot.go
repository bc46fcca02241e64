// Package bot ties detection, composition, queueing and delivery together.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"announcebot/internal/compose"
	"announcebot/internal/detect"
	"announcebot/internal/model"
	"announcebot/internal/poster"
	"announcebot/internal/queue"
	"announcebot/internal/schedule"
	"announcebot/internal/storage"
	logx "announcebot/pkg/logx"
)

const (
	DefaultCheckInterval = 2 * time.Hour
	DefaultPostInterval  = 5 * time.Minute
	DefaultDetectTimeout = 2 * time.Minute
	DefaultTrendingStars = 1000

	summaryWindow = 7 * 24 * time.Hour
	summaryName   = "weekly-summary"
)

// Config holds the orchestrator knobs. Zero values fall back to defaults,
// except PruneSpec and SummarySpec where "" disables the job.
type Config struct {
	CheckInterval time.Duration
	PostInterval  time.Duration
	DetectTimeout time.Duration

	// TrendingStars is the popularity at which an item is announced with the
	// trending templates at high priority. Negative disables it.
	TrendingStars int

	PruneSpec   string
	Retention   time.Duration
	SummarySpec string
	SummaryLink string

	Location *time.Location
}

// Metrics receives orchestrator events. *metrics.Collector implements it.
type Metrics interface {
	Detected(source string, n int)
	DetectFailed(source string)
	Cycle(kind string)
	Checked(at time.Time)
}

type nopMetrics struct{}

func (nopMetrics) Detected(string, int) {}
func (nopMetrics) DetectFailed(string)  {}
func (nopMetrics) Cycle(string)         {}
func (nopMetrics) Checked(time.Time)    {}

// Deps are the collaborators the bot drives. All are required.
type Deps struct {
	State    *storage.State
	Queue    *queue.Queue
	Source   detect.Source
	Poster   poster.Poster
	Composer *compose.Composer
}

type Option func(*Bot)

func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(b *Bot) {
		if m != nil {
			b.metrics = m
		}
	}
}

type Bot struct {
	cfg     Config
	log     logx.Logger
	now     func() time.Time
	metrics Metrics

	state  *storage.State
	queue  *queue.Queue
	source detect.Source
	poster poster.Poster

	// mu serializes cycles.
	mu sync.Mutex

	cmu      sync.RWMutex
	composer *compose.Composer
}

// CycleResult summarizes one RunOnce.
type CycleResult struct {
	Detected int  `json:"detected"`
	Enqueued int  `json:"enqueued"`
	Posted   bool `json:"posted"`
}

func New(cfg Config, deps Deps, log logx.Logger, opts ...Option) (*Bot, error) {
	switch {
	case deps.State == nil:
		return nil, errors.New("bot: state is required")
	case deps.Queue == nil:
		return nil, errors.New("bot: queue is required")
	case deps.Source == nil:
		return nil, errors.New("bot: source is required")
	case deps.Poster == nil:
		return nil, errors.New("bot: poster is required")
	case deps.Composer == nil:
		return nil, errors.New("bot: composer is required")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.PostInterval <= 0 {
		cfg.PostInterval = DefaultPostInterval
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = DefaultDetectTimeout
	}
	if cfg.TrendingStars == 0 {
		cfg.TrendingStars = DefaultTrendingStars
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		metrics:  nopMetrics{},
		state:    deps.State,
		queue:    deps.Queue,
		source:   deps.Source,
		poster:   deps.Poster,
		composer: deps.Composer,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Bot) Queue() *queue.Queue { return b.queue }

func (b *Bot) Composer() *compose.Composer {
	b.cmu.RLock()
	defer b.cmu.RUnlock()
	return b.composer
}

// SetContent swaps the composer and content knobs used by later cycles.
func (b *Bot) SetContent(c *compose.Composer, trendingStars int, summaryLink string) {
	if c == nil {
		return
	}
	if trendingStars == 0 {
		trendingStars = DefaultTrendingStars
	}
	b.cmu.Lock()
	b.composer = c
	b.cfg.TrendingStars = trendingStars
	b.cfg.SummaryLink = summaryLink
	b.cmu.Unlock()
}

// content returns the composer with the knobs that go with it.
func (b *Bot) content() (c *compose.Composer, trendingStars int, summaryLink string) {
	b.cmu.RLock()
	defer b.cmu.RUnlock()
	return b.composer, b.cfg.TrendingStars, b.cfg.SummaryLink
}

// UpdateSchedule applies a new posting policy and re-slots queued posts.
func (b *Bot) UpdateSchedule(ctx context.Context, p *schedule.Policy) {
	if p == nil {
		return
	}
	b.queue.UpdateSchedule(ctx, p)
	b.log.Info("posting schedule updated",
		logx.Int("posts_per_day", p.DailyQuota),
		logx.Any("preferred_hours", p.PreferredHours),
		logx.String("tz", p.Location.String()),
	)
}

// RunOnce runs a detection cycle followed by a post cycle. Steady-state
// failures are logged, not returned; only cancellation is an error.
func (b *Bot) RunOnce(ctx context.Context) (CycleResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res CycleResult
	res.Detected, res.Enqueued = b.detectLocked(ctx)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Posted = b.postLocked(ctx)

	st := b.queue.Status(ctx, b.now())
	b.log.Info("cycle complete",
		logx.Int("detected", res.Detected),
		logx.Int("enqueued", res.Enqueued),
		logx.Bool("posted", res.Posted),
		logx.Int("queued", st.TotalQueued),
		logx.Int("posts_today", st.DailyCount),
	)
	return res, ctx.Err()
}

// Check runs only the detection cycle.
func (b *Bot) Check(ctx context.Context) (detected, enqueued int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detectLocked(ctx)
}

// Post runs only the post cycle.
func (b *Bot) Post(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.postLocked(ctx)
}

func (b *Bot) detectLocked(ctx context.Context) (detected, enqueued int) {
	b.metrics.Cycle("check")
	started := b.now()

	var since *time.Time
	if t, ok := b.state.LastCheck(ctx); ok {
		since = &t
	}

	dctx, cancel := context.WithTimeout(ctx, b.cfg.DetectTimeout)
	items, err := b.source.ListNewItems(dctx, since)
	cancel()
	if err != nil {
		b.metrics.DetectFailed(b.source.Name())
		b.log.Warn("detection failed", logx.String("source", b.source.Name()), logx.Err(err))
		return 0, 0
	}

	perSource := map[string]int{}
	composer, trending, _ := b.content()
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		src := it.Source
		if src == "" {
			src = b.source.Name()
		}
		perSource[src]++

		if b.state.Exists(ctx, it.Name, it.URL) {
			continue
		}
		if err := b.state.Record(ctx, model.TrackedFrom(it, started)); err != nil {
			b.log.Warn("track item failed; announcing anyway", logx.String("name", it.Name), logx.Err(err))
		}
		content, priority := render(composer, trending, it)
		id := b.queue.Enqueue(ctx, model.Payload{Item: it, Content: content}, priority)
		enqueued++
		b.log.Debug("item queued", logx.String("id", id), logx.String("name", it.Name), logx.Int("priority", priority))
	}
	for src, n := range perSource {
		b.metrics.Detected(src, n)
	}

	if ctx.Err() == nil {
		if err := b.state.SetLastCheck(ctx, started); err == nil {
			b.metrics.Checked(started)
		}
	}
	if enqueued > 0 {
		b.log.Info("new items queued", logx.Int("detected", len(items)), logx.Int("enqueued", enqueued))
	}
	return len(items), enqueued
}

func render(c *compose.Composer, trendingStars int, it model.Item) (string, int) {
	if trendingStars > 0 && it.Popularity >= trendingStars {
		return c.RenderKind(it, compose.KindTrending), model.PriorityHigh
	}
	return c.Render(it), model.PriorityNormal
}

func (b *Bot) postLocked(ctx context.Context) bool {
	b.metrics.Cycle("post")
	if !b.queue.IsDue(ctx, b.now()) {
		return false
	}
	return b.queue.PostNext(ctx)
}

// Prune drops posted history older than the retention window.
func (b *Bot) Prune(ctx context.Context) int {
	b.metrics.Cycle("prune")
	if b.cfg.Retention <= 0 {
		return 0
	}
	return b.state.PrunePosted(ctx, b.cfg.Retention)
}

// Summary queues a recap of items first seen in the last seven days.
// It returns the queued id, or "" when nothing was tracked.
func (b *Bot) Summary(ctx context.Context) string {
	b.metrics.Cycle("summary")
	now := b.now()
	items := b.state.RecentTracked(ctx, now.Add(-summaryWindow))
	if len(items) == 0 {
		b.log.Debug("summary skipped; nothing tracked this week")
		return ""
	}
	composer, _, link := b.content()
	text := composer.Summary(items, link)
	id := b.queue.Enqueue(ctx, model.Payload{
		Item:    model.Item{Name: summaryName, URL: link, AddedAt: now},
		Content: text,
	}, model.PriorityNormal)
	b.log.Info("summary queued", logx.String("id", id), logx.Int("items", len(items)))
	return id
}
