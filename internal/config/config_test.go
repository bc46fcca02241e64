package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAMLWithEnvOverrides(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
schedule:
  posts_per_day: 2
  preferred_hours: [12, 20]
  timezone: Europe/Berlin
poster:
  telegram:
    chat: "@news"
storage:
  driver: file
  path: ./state/bot
sources:
  feeds:
    - url: https://example.com/feed.xml
`)
	m := NewManager(path)
	m.SetLookup(envMap(map[string]string{
		EnvTelegramToken: "123:abc",
		EnvPostsPerDay:   "6",
		EnvCheckInterval: "01:30",
		EnvLogLevel:      "debug",
	}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poster.Telegram.Token != "123:abc" || cfg.Poster.Telegram.Chat != "@news" {
		t.Fatalf("telegram = %+v", cfg.Poster.Telegram)
	}
	if cfg.Schedule.PostsPerDay != 6 {
		t.Fatalf("posts_per_day = %d, want env override 6", cfg.Schedule.PostsPerDay)
	}
	if got := cfg.Bot.CheckEvery(); got != 90*time.Minute {
		t.Fatalf("CheckEvery = %v", got)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("Location = %v", cfg.Location())
	}
	if cfg.Storage.Driver != "file" || !cfg.Storage.FallbackEnabled() {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" || m.Get() != cfg {
		t.Fatalf("logging level %q or commit missing", cfg.Logging.Level)
	}
	if len(cfg.Sources.Feeds) != 1 || !cfg.Sources.GitHub.IsEnabled() {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
}

func TestDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	m := NewManager("")
	m.SetLookup(envMap(map[string]string{EnvPosterDriver: "dryrun"}))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Schedule.PostsPerDay != DefaultPostsPerDay || len(cfg.Schedule.PreferredHours) != 4 {
		t.Fatalf("schedule defaults = %+v", cfg.Schedule)
	}
	if cfg.Bot.CheckEvery() != DefaultCheckInterval || cfg.Bot.PostEvery() != DefaultPostInterval {
		t.Fatalf("interval defaults = %v/%v", cfg.Bot.CheckEvery(), cfg.Bot.PostEvery())
	}
	if cfg.Bot.PruneSpec() != DefaultPruneSchedule {
		t.Fatalf("PruneSpec = %q", cfg.Bot.PruneSpec())
	}
	if cfg.Storage.RetentionOrDefault() != DefaultRetention || cfg.Queue.RetryDelayOrDefault() != time.Hour {
		t.Fatalf("storage/queue defaults wrong")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Schedule: ScheduleConfig{PostsPerDay: -1, PreferredHours: []int{25}, Timezone: "Mars/Olympus"},
		Poster:   PosterConfig{Driver: "telegram"},
		Storage:  StorageConfig{Driver: "redis"},
		Bot:      BotConfig{CheckInterval: "soon", SummarySchedule: "every tuesday"},
		Ops:      OpsConfig{Enabled: true, Addr: "0.0.0.0:9090"},
	}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"posts_per_day", "preferred_hours", "schedule.timezone", "telegram.token",
		"telegram.chat", "storage.driver", "bot.check_interval", "bot.summary_schedule", "ops.addr",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q:\n%v", want, err)
		}
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{"poster":{"driver":"dryrun"},"tweets_per_day":4}`)
	m := NewManager(path)
	m.SetLookup(envMap(nil))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "tweets_per_day") {
		t.Fatalf("err = %v, want unknown field error", err)
	}

	bad := NewManager(writeFile(t, "c.json", `{}`))
	bad.SetLookup(envMap(map[string]string{EnvPostsPerDay: "four", EnvPosterDriver: "dryrun"}))
	if _, err := bad.Parse(); err == nil {
		t.Fatal("non-integer POSTS_PER_DAY must fail")
	}
}

func TestParseInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Hour},
		{"2", 2 * time.Hour},
		{"00:45", 45 * time.Minute},
		{"90m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseInterval("x", tt.raw, time.Hour)
		if err != nil || got != tt.want {
			t.Fatalf("ParseInterval(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
	for _, raw := range []string{"0", "-5m", "01:75", "later"} {
		if _, err := ParseInterval("x", raw, time.Hour); err == nil {
			t.Fatalf("ParseInterval(%q) should fail", raw)
		}
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", "poster: {driver: dryrun}\nschedule: {posts_per_day: 4}\n")
	m := NewManager(path)
	m.SetLookup(envMap(nil))
	old, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if changed, err := m.Reload(); err != nil || changed {
		t.Fatalf("unchanged reload = %v, %v", changed, err)
	}
	if err := os.WriteFile(path, []byte("poster: {driver: dryrun}\nschedule: {posts_per_day: 2}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if changed, err := m.Reload(); err != nil || !changed {
		t.Fatalf("changed reload = %v, %v", changed, err)
	}
	var next *Config
	select {
	case next = <-ch:
	default:
		t.Fatal("no config published")
	}
	sections, _, restart := SummarizeConfigChange(old, next)
	if len(sections) != 1 || sections[0] != SectionSchedule || len(restart) != 0 {
		t.Fatalf("sections = %v restart = %v", sections, restart)
	}

	if err := os.WriteFile(path, []byte("schedule: {posts_per_day: 0, preferred_hours: [30]}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(); err == nil {
		t.Fatal("invalid config must be rejected")
	}
	if m.Get().Schedule.PostsPerDay != 2 {
		t.Fatalf("rejected config must not be committed")
	}
}
