package queue

import (
	"context"
	"math"
	"sort"
	"time"

	"announcebot/internal/schedule"
	logx "announcebot/pkg/logx"
)

// ClearAll passed to Clear removes every pending post.
const ClearAll = math.MaxInt

type Status struct {
	TotalQueued   int           `json:"total_queued"`
	ReadyCount    int           `json:"ready_to_post"`
	NextScheduled *time.Time    `json:"next_scheduled,omitempty"`
	DailyCount    int           `json:"posts_today"`
	WeeklyCount   int           `json:"posts_this_week"`
	DailyLimit    int           `json:"daily_limit"`
	MinSpacing    time.Duration `json:"min_spacing"`
}

// Status is a read-only snapshot. DailyCount covers now's calendar day in the
// policy zone; WeeklyCount the trailing seven days.
func (q *Queue) Status(ctx context.Context, now time.Time) Status {
	week := q.store.RecentPostedSince(ctx, now.Add(-7*24*time.Hour))

	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		TotalQueued: len(q.items),
		WeeklyCount: len(week),
		DailyLimit:  q.policy.DailyQuota,
		MinSpacing:  q.policy.MinSpacing(),
	}
	for _, p := range q.items {
		if p.ScheduledFor == nil {
			continue
		}
		if !p.ScheduledFor.After(now) {
			st.ReadyCount++
		}
		if st.NextScheduled == nil || p.ScheduledFor.Before(*st.NextScheduled) {
			t := *p.ScheduledFor
			st.NextScheduled = &t
		}
	}
	y, m, d := now.In(q.policy.Location).Date()
	for _, r := range week {
		ry, rm, rd := r.PostedAt.In(q.policy.Location).Date()
		if ry == y && rm == m && rd == d {
			st.DailyCount++
		}
	}
	return st
}

// Reschedule moves id to t. It returns false if id is not queued.
func (q *Queue) Reschedule(ctx context.Context, id string, t time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		q.log.Warn("post not found for rescheduling", logx.String("id", id))
		return false
	}
	t = t.UTC()
	q.items[i].ScheduledFor = &t
	p := q.items[i]
	q.sortLocked()
	_ = q.store.PersistQueued(ctx, p)
	q.log.Info("post rescheduled", logx.String("id", id), logx.Time("scheduled_for", t))
	return true
}

// Remove deletes id from the queue. It returns false if id is not queued.
func (q *Queue) Remove(ctx context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		q.log.Warn("post not found for removal", logx.String("id", id))
		return false
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	_ = q.store.RemoveQueued(ctx, id)
	q.obs.Depth(len(q.items))
	q.log.Info("post removed from queue", logx.String("id", id))
	return true
}

// Clear removes every post whose priority is <= keepAbove and returns how
// many were removed. Clear(ctx, model.PriorityNormal) keeps high and urgent posts.
func (q *Queue) Clear(ctx context.Context, keepAbove int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	var removed []string
	for _, p := range q.items {
		if p.Priority > keepAbove {
			kept = append(kept, p)
			continue
		}
		removed = append(removed, p.ID)
	}
	q.items = kept
	for _, id := range removed {
		_ = q.store.RemoveQueued(ctx, id)
	}
	q.obs.Depth(len(q.items))
	q.log.Info("queue cleared", logx.Int("removed", len(removed)), logx.Int("remaining", len(q.items)))
	return len(removed)
}

// UpdateSchedule swaps the policy and re-slots every scheduled post from the
// send history under the new policy.
func (q *Queue) UpdateSchedule(ctx context.Context, p *schedule.Policy) {
	if p == nil {
		return
	}
	now := q.now().UTC()
	recent := q.postedTimes(ctx, now)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.policy = p
	moved := 0
	for i := range q.items {
		if q.items[i].ScheduledFor == nil {
			continue
		}
		slot := p.NextSlot(now, recent).UTC()
		q.items[i].ScheduledFor = &slot
		moved++
		_ = q.store.PersistQueued(ctx, q.items[i])
	}
	q.sortLocked()
	q.log.Info("posting schedule updated",
		logx.Int("daily_quota", p.DailyQuota),
		logx.Any("preferred_hours", p.PreferredHours),
		logx.Duration("min_spacing", p.MinSpacing()),
		logx.Int("rescheduled", moved),
	)
}

type Analytics struct {
	PeriodDays    int            `json:"period_days"`
	TotalPosted   int            `json:"total_posted"`
	AveragePerDay float64        `json:"average_per_day"`
	DailyCounts   map[string]int `json:"daily_counts"`
	QueueSize     int            `json:"queue_size"`
}

// Analytics summarizes deliveries over the trailing days, bucketed by
// calendar date in the policy zone.
func (q *Queue) Analytics(ctx context.Context, days int) Analytics {
	if days <= 0 {
		days = 7
	}
	now := q.now().UTC()
	recs := q.store.RecentPostedSince(ctx, now.Add(-time.Duration(days)*24*time.Hour))

	a := Analytics{
		PeriodDays:  days,
		TotalPosted: len(recs),
		DailyCounts: map[string]int{},
		QueueSize:   q.Len(),
	}
	loc := q.Policy().Location
	for _, r := range recs {
		a.DailyCounts[r.PostedAt.In(loc).Format("2006-01-02")]++
	}
	a.AveragePerDay = math.Round(float64(a.TotalPosted)/float64(days)*10) / 10
	return a
}

// Days returns the analytics dates in ascending order.
func (a Analytics) Days() []string {
	out := make([]string, 0, len(a.DailyCounts))
	for d := range a.DailyCounts {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (q *Queue) indexLocked(id string) int {
	for i, p := range q.items {
		if p.ID == id {
			return i
		}
	}
	return -1
}
