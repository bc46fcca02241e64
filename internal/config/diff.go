package config

import (
	"reflect"
	"sort"
	"strings"

	logx "announcebot/pkg/logx"
)

// Sections that can be applied without a restart.
const (
	SectionSchedule = "schedule"
	SectionLogging  = "logging"
	SectionContent  = "content"
)

// SummarizeConfigChange returns the changed section names and safe log
// attributes (never secrets). restart lists sections that only take effect
// after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Schedule.PostsPerDay != newCfg.Schedule.PostsPerDay ||
		!reflect.DeepEqual(oldCfg.Schedule.PreferredHours, newCfg.Schedule.PreferredHours) ||
		strings.TrimSpace(oldCfg.Schedule.Timezone) != strings.TrimSpace(newCfg.Schedule.Timezone) {
		changed = append(changed, SectionSchedule)
		attrs = append(attrs,
			logx.Int("schedule.posts_per_day", newCfg.Schedule.PostsPerDay),
			logx.Any("schedule.preferred_hours", newCfg.Schedule.PreferredHours),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Content != newCfg.Content {
		changed = append(changed, SectionContent)
		attrs = append(attrs,
			logx.Int("content.max_length", newCfg.Content.MaxLength),
			logx.String("content.topic", newCfg.Content.Topic),
		)
	}

	// Everything below is wired once at startup.
	if oldCfg.Queue != newCfg.Queue {
		changed = append(changed, "queue")
		restart = append(restart, "queue")
	}
	if oldCfg.Bot != newCfg.Bot {
		changed = append(changed, "bot")
		restart = append(restart, "bot")
	}
	if oldCfg.Poster != newCfg.Poster {
		changed = append(changed, "poster")
		restart = append(restart, "poster")
		attrs = append(attrs,
			logx.String("poster.driver", newCfg.Poster.Driver),
			logx.Bool("poster.telegram.token_set", newCfg.Poster.Telegram.Token != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Sources, newCfg.Sources) {
		changed = append(changed, "sources")
		restart = append(restart, "sources")
		attrs = append(attrs,
			logx.Bool("sources.github.enabled", newCfg.Sources.GitHub.IsEnabled()),
			logx.Int("sources.feeds", len(newCfg.Sources.Feeds)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
	}
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		restart = append(restart, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
