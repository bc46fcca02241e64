package bot

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	logx "announcebot/pkg/logx"
)

// RunForever runs one cycle immediately, then schedules detection every
// CheckInterval and delivery every PostInterval until ctx is done. Overlapping
// runs of the same job are skipped.
func (b *Bot) RunForever(ctx context.Context) error {
	cl := cronLogger{log: b.log.Component("cron")}
	c := cron.New(
		cron.WithLocation(b.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"check", "@every " + b.cfg.CheckInterval.String(), func() { b.Check(ctx) }},
		{"post", "@every " + b.cfg.PostInterval.String(), func() { b.Post(ctx) }},
		{"prune", b.cfg.PruneSpec, func() { b.Prune(ctx) }},
		{"summary", b.cfg.SummarySpec, func() { b.Summary(ctx) }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := c.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}

	b.log.Info("continuous mode started",
		logx.Duration("check_interval", b.cfg.CheckInterval),
		logx.Duration("post_interval", b.cfg.PostInterval),
		logx.String("prune", b.cfg.PruneSpec),
		logx.String("summary", b.cfg.SummarySpec),
		logx.String("tz", b.cfg.Location.String()),
	)

	if _, err := b.RunOnce(ctx); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	b.log.Info("continuous mode stopped")
	return ctx.Err()
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
