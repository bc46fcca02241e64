package bot

import (
	"context"
	"errors"
	"time"

	"announcebot/internal/queue"
)

const healthTimeout = 10 * time.Second

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Health struct {
	Healthy    bool                       `json:"healthy"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthCheck probes storage, the poster and the detection source. Overall
// health requires every component to pass.
func (b *Bot) HealthCheck(ctx context.Context) Health {
	h := Health{Healthy: true, Components: map[string]ComponentHealth{}}
	probe := func(name string, fn func(context.Context) error) {
		pctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := fn(pctx); err != nil {
			h.Healthy = false
			h.Components[name] = ComponentHealth{Status: StatusUnhealthy, Error: err.Error()}
			return
		}
		h.Components[name] = ComponentHealth{Status: StatusHealthy}
	}

	probe("storage", func(ctx context.Context) error {
		if !b.state.HealthCheck(ctx) {
			return errors.New(b.state.Driver() + " store not reachable")
		}
		return nil
	})
	probe("poster", b.poster.HealthCheck)
	probe("source", b.source.HealthCheck)
	return h
}

type Stats struct {
	TrackedItems int          `json:"tracked_items"`
	QueuedPosts  int          `json:"queued_posts"`
	PostedPosts  int          `json:"posted_posts"`
	FailedPosts  int          `json:"failed_posts"`
	Storage      string       `json:"storage"`
	Source       string       `json:"source"`
	Poster       string       `json:"poster"`
	LastCheck    *time.Time   `json:"last_check,omitempty"`
	LastPost     *time.Time   `json:"last_post,omitempty"`
	Queue        queue.Status `json:"queue"`
}

func (b *Bot) Stats(ctx context.Context) Stats {
	st := Stats{
		TrackedItems: b.state.CountTracked(ctx),
		QueuedPosts:  b.state.CountQueued(ctx),
		PostedPosts:  b.state.CountPosted(ctx),
		FailedPosts:  b.state.CountFailed(ctx),
		Storage:      b.state.Driver(),
		Source:       b.source.Name(),
		Poster:       b.poster.Name(),
		Queue:        b.queue.Status(ctx, b.now()),
	}
	if t, ok := b.state.LastCheck(ctx); ok {
		st.LastCheck = &t
	}
	if t, ok := b.state.LastPost(ctx); ok {
		st.LastPost = &t
	}
	return st
}
