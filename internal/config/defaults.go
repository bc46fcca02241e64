package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultCheckInterval = 2 * time.Hour
	DefaultPostInterval  = 5 * time.Minute
	DefaultDetectTimeout = 2 * time.Minute
	DefaultPruneSchedule = "@daily"

	DefaultPostsPerDay = 4
	DefaultTimezone    = "UTC"

	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Hour
	DefaultSendTimeout = 30 * time.Second
	DefaultMinInterval = 3 * time.Second

	DefaultStorageDriver = "sqlite"
	DefaultStoragePath   = "./data/announcebot.db"
	DefaultRetention     = 30 * 24 * time.Hour

	DefaultTrendingStars = 1000
	DefaultOpsAddr       = "127.0.0.1:9090"
)

var DefaultPreferredHours = []int{9, 13, 17, 21}

// ApplyDefaults fills omitted fields. It never overwrites explicit values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Bot.CheckInterval) == "" {
		c.Bot.CheckInterval = DefaultCheckInterval.String()
	}
	if strings.TrimSpace(c.Bot.PostInterval) == "" {
		c.Bot.PostInterval = DefaultPostInterval.String()
	}
	if c.Schedule.PostsPerDay == 0 {
		c.Schedule.PostsPerDay = DefaultPostsPerDay
	}
	if len(c.Schedule.PreferredHours) == 0 {
		c.Schedule.PreferredHours = append([]int(nil), DefaultPreferredHours...)
	}
	if strings.TrimSpace(c.Schedule.Timezone) == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultMaxAttempts
	}
	if strings.TrimSpace(c.Poster.Driver) == "" {
		c.Poster.Driver = "telegram"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Content.TrendingStars == 0 {
		c.Content.TrendingStars = DefaultTrendingStars
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Ops.Enabled && strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseInterval("bot.check_interval", c.Bot.CheckInterval, DefaultCheckInterval)
	add(err)
	_, err = ParseInterval("bot.post_interval", c.Bot.PostInterval, DefaultPostInterval)
	add(err)
	_, err = ParseDurationField("bot.detect_timeout", c.Bot.DetectTimeout)
	add(err)
	for path, spec := range map[string]string{
		"bot.prune_schedule":   c.Bot.PruneSchedule,
		"bot.summary_schedule": c.Bot.SummarySchedule,
	} {
		switch strings.ToLower(strings.TrimSpace(spec)) {
		case "", "off", "none", "disabled":
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			add(fmt.Errorf("%s: %w", path, err))
		}
	}

	if c.Schedule.PostsPerDay < 1 {
		add(fmt.Errorf("schedule.posts_per_day must be >= 1 (got %d)", c.Schedule.PostsPerDay))
	}
	for _, h := range c.Schedule.PreferredHours {
		if h < 0 || h > 23 {
			add(fmt.Errorf("schedule.preferred_hours: %d out of range 0..23", h))
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		add(fmt.Errorf("schedule.timezone: %w", err))
	}

	if c.Queue.MaxAttempts < 1 {
		add(fmt.Errorf("queue.max_attempts must be >= 1"))
	}
	_, err = ParseDurationField("queue.retry_delay", c.Queue.RetryDelay)
	add(err)
	_, err = ParseDurationField("queue.send_timeout", c.Queue.SendTimeout)
	add(err)

	switch c.Poster.Driver {
	case "telegram":
		if strings.TrimSpace(c.Poster.Telegram.Token) == "" {
			add(fmt.Errorf("poster.telegram.token is required (set %s)", EnvTelegramToken))
		}
		if strings.TrimSpace(c.Poster.Telegram.Chat) == "" {
			add(fmt.Errorf("poster.telegram.chat is required (set %s)", EnvTelegramChat))
		}
	case "dryrun":
	default:
		add(fmt.Errorf("poster.driver: unknown %q (telegram|dryrun)", c.Poster.Driver))
	}
	_, err = ParseDurationField("poster.min_interval", c.Poster.MinInterval)
	add(err)
	_, err = ParseDurationField("poster.telegram.timeout", c.Poster.Telegram.Timeout)
	add(err)

	_, err = ParseDurationField("sources.github.timeout", c.Sources.GitHub.Timeout)
	add(err)
	for i, f := range c.Sources.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			add(fmt.Errorf("sources.feeds[%d].url is required", i))
		}
		_, err = ParseDurationField(fmt.Sprintf("sources.feeds[%d].timeout", i), f.Timeout)
		add(err)
	}
	if !c.Sources.GitHub.IsEnabled() && len(c.Sources.Feeds) == 0 {
		add(errors.New("sources: at least one source must be enabled"))
	}

	if c.Content.MaxLength < 0 {
		add(fmt.Errorf("content.max_length must be >= 0"))
	}

	switch c.Storage.Driver {
	case "sqlite", "file":
	default:
		add(fmt.Errorf("storage.driver: unknown %q (sqlite|file)", c.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)
	_, err = ParseDurationField("storage.retention", c.Storage.Retention)
	add(err)

	if c.Ops.Enabled {
		add(validateOpsAddr(c.Ops))
		for path, raw := range map[string]string{
			"ops.read_timeout":  c.Ops.ReadTimeout,
			"ops.write_timeout": c.Ops.WriteTimeout,
			"ops.idle_timeout":  c.Ops.IdleTimeout,
		} {
			_, err := ParseDurationField(path, raw)
			add(err)
		}
	}
	return errors.Join(errs...)
}

func validateOpsAddr(o OpsConfig) error {
	host, _, err := net.SplitHostPort(o.Addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if isLoopback(host) || o.Token != "" || o.AllowInsecure {
		return nil
	}
	return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", o.Addr)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Typed accessors. They assume Validate passed and fall back to defaults.

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b BotConfig) CheckEvery() time.Duration {
	d, _ := ParseInterval("", b.CheckInterval, DefaultCheckInterval)
	return orDefault(d, DefaultCheckInterval)
}

func (b BotConfig) PostEvery() time.Duration {
	d, _ := ParseInterval("", b.PostInterval, DefaultPostInterval)
	return orDefault(d, DefaultPostInterval)
}

func (b BotConfig) DetectTimeoutOrDefault() time.Duration {
	d, _ := ParseDurationOrDefault("", b.DetectTimeout, DefaultDetectTimeout)
	return orDefault(d, DefaultDetectTimeout)
}

// PruneSpec returns the cron spec for history pruning; "off" disables it.
func (b BotConfig) PruneSpec() string {
	s := strings.TrimSpace(b.PruneSchedule)
	switch strings.ToLower(s) {
	case "":
		return DefaultPruneSchedule
	case "off", "none", "disabled":
		return ""
	}
	return s
}

// SummarySpec returns the cron spec for the weekly recap, or "" when off.
func (b BotConfig) SummarySpec() string {
	s := strings.TrimSpace(b.SummarySchedule)
	switch strings.ToLower(s) {
	case "off", "none", "disabled":
		return ""
	}
	return s
}

func (q QueueConfig) RetryDelayOrDefault() time.Duration {
	d, _ := ParseDurationOrDefault("", q.RetryDelay, DefaultRetryDelay)
	return orDefault(d, DefaultRetryDelay)
}

func (q QueueConfig) SendTimeoutOrDefault() time.Duration {
	d, _ := ParseDurationOrDefault("", q.SendTimeout, DefaultSendTimeout)
	return orDefault(d, DefaultSendTimeout)
}

func (p PosterConfig) MinIntervalOrDefault() time.Duration {
	d, _ := ParseDurationOrDefault("", p.MinInterval, DefaultMinInterval)
	return orDefault(d, DefaultMinInterval)
}

func (s StorageConfig) BusyTimeoutDuration() time.Duration {
	d, _ := ParseDurationField("", s.BusyTimeout)
	return d
}

// RetentionOrDefault returns 0 when retention is explicitly "0s".
func (s StorageConfig) RetentionOrDefault() time.Duration {
	if strings.TrimSpace(s.Retention) == "" {
		return DefaultRetention
	}
	d, _ := ParseDurationField("", s.Retention)
	return d
}

func Timeout(raw string) time.Duration {
	d, _ := ParseDurationField("", raw)
	return d
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
