package app

import (
	"context"
	"slices"
	"strings"

	"announcebot/internal/config"
	logx "announcebot/pkg/logx"
)

// reloadLoop applies hot-reloadable sections of each published config until
// ctx is done. Sections that need a restart are only reported.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the newest config of a burst
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 && len(restart) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	if slices.Contains(sections, config.SectionLogging) {
		a.logs.Apply(mapLogging(newCfg, a.debug))
	}
	if slices.Contains(sections, config.SectionSchedule) {
		if p, err := mapPolicy(newCfg); err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
		} else {
			a.bot.UpdateSchedule(ctx, p)
		}
	}
	if slices.Contains(sections, config.SectionContent) {
		if c, err := mapComposer(newCfg, a.log.Component("compose")); err != nil {
			a.log.Warn("invalid content config; keeping previous", logx.Err(err))
		} else {
			a.bot.SetContent(c, newCfg.Content.TrendingStars, newCfg.Content.SummaryLink)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
