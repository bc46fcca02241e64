// Package queue is the Delivery Queue: an ordered, write-through persisted
// list of pending posts.
//
// Every mutation re-sorts the working copy and mirrors the affected entries to
// the store, so Restore after a crash yields the same pending set. A single
// mutex serializes mutation and delivery, so at most one PostNext is in flight.
package queue

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"announcebot/internal/model"
	"announcebot/internal/poster"
	"announcebot/internal/schedule"
	logx "announcebot/pkg/logx"
)

const (
	DefaultSendTimeout = 30 * time.Second
	DefaultRetryDelay  = time.Hour
	historyWindow      = 24 * time.Hour
)

// Store is the slice of the State Store the queue writes through to.
type Store interface {
	PersistQueued(ctx context.Context, p model.QueuedPost) error
	RemoveQueued(ctx context.Context, id string) error
	LoadQueue(ctx context.Context) []model.QueuedPost
	AppendPosted(ctx context.Context, r model.PostedRecord) error
	AppendFailed(ctx context.Context, r model.FailedRecord) error
	RecentPostedSince(ctx context.Context, cutoff time.Time) []model.PostedRecord
	LastPost(ctx context.Context) (time.Time, bool)
	SetLastPost(ctx context.Context, t time.Time) error
}

// Observer receives delivery outcomes (metrics). All methods must be cheap.
type Observer interface {
	Enqueued(priority int)
	Delivered(latency time.Duration)
	Retried(kind string)
	Dropped(reason string)
	Depth(n int)
}

type nopObserver struct{}

func (nopObserver) Enqueued(int)            {}
func (nopObserver) Delivered(time.Duration) {}
func (nopObserver) Retried(string)          {}
func (nopObserver) Dropped(string)          {}
func (nopObserver) Depth(int)               {}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.sendTimeout = d
		}
	}
}

// WithRetryDelay sets the fixed delay applied after a failed attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retryDelay = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.obs = o
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

type Queue struct {
	mu sync.Mutex

	store  Store
	poster poster.Poster
	policy *schedule.Policy
	log    logx.Logger
	obs    Observer

	now         func() time.Time
	sendTimeout time.Duration
	retryDelay  time.Duration
	maxAttempts int

	items []model.QueuedPost
}

func New(store Store, p poster.Poster, policy *schedule.Policy, log logx.Logger, opts ...Option) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	if policy == nil {
		policy = schedule.Default()
	}
	q := &Queue{
		store:       store,
		poster:      p,
		policy:      policy,
		log:         log,
		obs:         nopObserver{},
		now:         time.Now,
		sendTimeout: DefaultSendTimeout,
		retryDelay:  DefaultRetryDelay,
		maxAttempts: model.DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Restore replaces the working copy with the persisted queue.
func (q *Queue) Restore(ctx context.Context) int {
	items := q.store.LoadQueue(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
	for _, p := range items {
		if p.MaxAttempts <= 0 {
			p.MaxAttempts = q.maxAttempts
		}
		if p.Priority < model.PriorityNormal {
			p.Priority = model.PriorityNormal
		}
		q.items = append(q.items, p)
	}
	q.sortLocked()
	q.obs.Depth(len(q.items))
	q.log.Info("queue restored", logx.Int("pending", len(q.items)))
	return len(q.items)
}

// Enqueue schedules payload at the policy's next slot after the last day's
// sends and persists it. A
// failed write-through keeps the post in memory; the store logs the failure.
func (q *Queue) Enqueue(ctx context.Context, payload model.Payload, priority int) string {
	if priority < model.PriorityNormal {
		priority = model.PriorityNormal
	}
	now := q.now().UTC()
	recent := q.postedTimes(ctx, now)

	q.mu.Lock()
	defer q.mu.Unlock()

	// Slots derive from send history only; pending posts do not push it out.
	slot := q.policy.NextSlot(now, recent).UTC()

	p := model.QueuedPost{
		ID:           newID(payload.Item.Name, now),
		Payload:      payload,
		CreatedAt:    now,
		ScheduledFor: &slot,
		Priority:     priority,
		MaxAttempts:  q.maxAttempts,
	}
	_ = q.store.PersistQueued(ctx, p)
	q.items = append(q.items, p)
	q.sortLocked()
	q.obs.Enqueued(priority)
	q.obs.Depth(len(q.items))

	q.log.Info("post queued",
		logx.String("id", p.ID),
		logx.String("item", payload.Item.Name),
		logx.Int("priority", priority),
		logx.Time("scheduled_for", slot),
	)
	return p.ID
}

// newID is unique within one clock tick thanks to the random suffix.
func newID(name string, at time.Time) string {
	u := uuid.New()
	return model.Slug(name) + "_" + at.UTC().Format("20060102T150405") + "_" + hex.EncodeToString(u[:4])
}

// IsDue reports whether the head is scheduled at or before now, or whether the
// last successful post is older than MinSpacing (progress fallback).
func (q *Queue) IsDue(ctx context.Context, now time.Time) bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	head := q.items[0]
	spacing := q.policy.MinSpacing()
	q.mu.Unlock()

	if head.ScheduledFor != nil && !head.ScheduledFor.After(now) {
		return true
	}
	last, ok := q.store.LastPost(ctx)
	return ok && now.Sub(last) > spacing
}

// PostNext attempts delivery of the head. It reports true only on success.
func (q *Queue) PostNext(ctx context.Context) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.log.Debug("no posts queued")
		return false
	}
	head := q.items[0]
	log := q.log.With(logx.String("id", head.ID), logx.String("item", head.Payload.Item.Name))

	// A dispatched send runs to completion or timeout, then its outcome is recorded.
	ctx = context.WithoutCancel(ctx)
	sendCtx, cancel := context.WithTimeout(ctx, q.sendTimeout)
	started := time.Now()
	res, err := q.poster.Send(sendCtx, head.Payload.Content)
	cancel()
	now := q.now().UTC()

	if err == nil {
		q.items = q.items[1:]
		postedAt := now
		_ = q.store.AppendPosted(ctx, model.PostedRecord{
			QueuedPostID:   head.ID,
			ExternalPostID: res.ExternalID,
			ItemName:       head.Payload.Item.Name,
			Content:        head.Payload.Content,
			PostedAt:       postedAt,
		})
		_ = q.store.RemoveQueued(ctx, head.ID)
		_ = q.store.SetLastPost(ctx, postedAt)
		q.obs.Delivered(time.Since(started))
		q.obs.Depth(len(q.items))
		log.Info("post delivered", logx.String("external_id", res.ExternalID), logx.String("url", res.URL))
		return true
	}

	head.Attempts++
	kind := poster.KindOf(err)
	if kind == poster.Rejected || head.Attempts >= head.MaxAttempts {
		reason := "max_attempts"
		if kind == poster.Rejected {
			reason = "rejected"
		}
		q.items = q.items[1:]
		_ = q.store.AppendFailed(ctx, model.FailedRecord{
			QueuedPostID: head.ID,
			ItemName:     head.Payload.Item.Name,
			Content:      head.Payload.Content,
			Attempts:     head.Attempts,
			Reason:       reason + ": " + err.Error(),
			FailedAt:     now,
		})
		_ = q.store.RemoveQueued(ctx, head.ID)
		q.obs.Dropped(reason)
		q.obs.Depth(len(q.items))
		log.Warn("post dropped", logx.String("reason", reason), logx.Int("attempts", head.Attempts), logx.Err(err))
		return false
	}

	delay := q.retryDelay
	var se *poster.SendError
	if errors.As(err, &se) && se.RetryAfter > delay {
		delay = se.RetryAfter
	}
	next := now.Add(delay)
	head.ScheduledFor = &next
	q.items[0] = head
	q.sortLocked()
	_ = q.store.PersistQueued(ctx, head)
	q.obs.Retried(kind.String())
	log.Warn("post attempt failed, rescheduled",
		logx.Int("attempts", head.Attempts),
		logx.String("kind", kind.String()),
		logx.Time("retry_at", next),
		logx.Err(err),
	)
	return false
}

// Snapshot returns a copy of the pending posts in delivery order.
func (q *Queue) Snapshot() []model.QueuedPost {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.QueuedPost, len(q.items))
	for i, p := range q.items {
		out[i] = p.Clone()
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Policy() *schedule.Policy {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.policy
}

func (q *Queue) postedTimes(ctx context.Context, now time.Time) []time.Time {
	recs := q.store.RecentPostedSince(ctx, now.Add(-historyWindow))
	out := make([]time.Time, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.PostedAt)
	}
	return out
}

func (q *Queue) sortLocked() { sortPosts(q.items) }

// sortPosts orders by priority desc, ScheduledFor asc (unscheduled last), CreatedAt asc.
func sortPosts(items []model.QueuedPost) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func less(a, b model.QueuedPost) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.ScheduledFor != nil && b.ScheduledFor == nil:
		return true
	case a.ScheduledFor == nil && b.ScheduledFor != nil:
		return false
	case a.ScheduledFor != nil && b.ScheduledFor != nil && !a.ScheduledFor.Equal(*b.ScheduledFor):
		return a.ScheduledFor.Before(*b.ScheduledFor)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
