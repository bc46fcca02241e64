package config

// Config is the on-disk configuration (YAML or JSON). Secrets normally come
// from the environment; see ApplyEnv.
//
// All durations are Go duration strings (e.g. "30s", "2h"). Intervals also
// accept "HH:MM" and bare hour counts; see ParseInterval.
type Config struct {
	Bot      BotConfig      `json:"bot"`
	Schedule ScheduleConfig `json:"schedule"`
	Queue    QueueConfig    `json:"queue"`
	Poster   PosterConfig   `json:"poster"`
	Sources  SourcesConfig  `json:"sources"`
	Content  ContentConfig  `json:"content"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Ops      OpsConfig      `json:"ops,omitempty"`
}

// BotConfig controls the continuous loop.
//
// Defaults:
//   - check_interval: "2h"
//   - post_interval: "5m"
//   - detect_timeout: "2m"
//   - prune_schedule: "@daily" (empty string disables pruning)
//   - summary_schedule: "" (weekly recap disabled)
type BotConfig struct {
	CheckInterval   string `json:"check_interval,omitempty"`
	PostInterval    string `json:"post_interval,omitempty"`
	DetectTimeout   string `json:"detect_timeout,omitempty"`
	PruneSchedule   string `json:"prune_schedule,omitempty"`
	SummarySchedule string `json:"summary_schedule,omitempty"`
	// Watchdog enables sd_notify READY/WATCHDOG pings when run under systemd.
	Watchdog bool `json:"watchdog,omitempty"`
}

type ScheduleConfig struct {
	PostsPerDay    int    `json:"posts_per_day,omitempty"`
	PreferredHours []int  `json:"preferred_hours,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

type QueueConfig struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	RetryDelay  string `json:"retry_delay,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// PosterConfig selects the delivery driver ("telegram" or "dryrun").
type PosterConfig struct {
	Driver string `json:"driver,omitempty"`
	// MinInterval spaces consecutive sends (rate limiter).
	MinInterval string         `json:"min_interval,omitempty"`
	Telegram    TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token          string `json:"token,omitempty"` // prefer TELEGRAM_TOKEN; never logged
	Chat           string `json:"chat,omitempty"`  // "@channel" or numeric chat id
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	APIURL         string `json:"api_url,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

type SourcesConfig struct {
	GitHub GitHubSourceConfig `json:"github"`
	Feeds  []FeedSourceConfig `json:"feeds,omitempty"`
}

// GitHubSourceConfig watches a README table in a GitHub repository.
// Enabled is a pointer so an omitted block defaults to on.
type GitHubSourceConfig struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	Repo      string `json:"repo,omitempty"`
	Path      string `json:"path,omitempty"`
	Token     string `json:"token,omitempty"` // prefer GITHUB_TOKEN; never logged
	APIURL    string `json:"api_url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	SkipStars bool   `json:"skip_stars,omitempty"`
}

func (g GitHubSourceConfig) IsEnabled() bool { return g.Enabled == nil || *g.Enabled }

type FeedSourceConfig struct {
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type ContentConfig struct {
	MaxLength  int    `json:"max_length,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Collection string `json:"collection,omitempty"`
	// SummaryLink is appended to the weekly recap.
	SummaryLink string `json:"summary_link,omitempty"`
	// TrendingStars switches to the trending templates and high priority.
	TrendingStars int `json:"trending_stars,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/announcebot.db, fallback: true }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Fallback switches to the file driver when sqlite cannot be opened.
	Fallback *bool `json:"fallback,omitempty"`
	// Retention prunes posted history older than this. "0s" keeps everything.
	Retention string `json:"retention,omitempty"`
}

func (s StorageConfig) FallbackEnabled() bool { return s.Fallback == nil || *s.Fallback }

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// OpsConfig controls the optional HTTP endpoint (metrics, health, stats, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - A non-loopback address requires a token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token; never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
