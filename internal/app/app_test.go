package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"announcebot/internal/bot"
	"announcebot/internal/config"
)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	pub := time.Now().Add(-time.Hour).UTC().Format(time.RFC1123Z)
	doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>tools</title><link>https://tools.example</link>
<item><title>meshy</title><link>https://github.com/example/meshy</link>
<description>Service mesh &lt;b&gt;debugger&lt;/b&gt;</description><pubDate>%s</pubDate></item>
</channel></rss>`, pub)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, feedURL string, postsPerDay int) string {
	t.Helper()
	body := fmt.Sprintf(`
schedule:
  posts_per_day: %d
  preferred_hours: [9, 13, 17, 21]
poster:
  driver: dryrun
sources:
  github:
    enabled: false
  feeds:
    - url: %s
storage:
  driver: file
  path: %s
logging:
  level: error
  console: true
`, postsPerDay, feedURL, filepath.Join(dir, "state"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func newApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	srv := feedServer(t)
	path := writeConfig(t, dir, srv.URL, 4)
	a, err := New(path, Options{Lookup: noEnv})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, srv.URL
}

func TestNewRunsOnceAgainstFeed(t *testing.T) {
	a, _ := newApp(t)
	ctx := context.Background()

	res, err := a.Bot().RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Detected != 1 || res.Enqueued != 1 {
		t.Fatalf("res = %+v", res)
	}
	snap := a.Queue().Snapshot()
	if len(snap) != 1 || !strings.Contains(snap[0].Payload.Content, "https://github.com/example/meshy") {
		t.Fatalf("queued = %+v", snap)
	}

	ok, detail := a.health(ctx)
	if !ok {
		t.Fatalf("unhealthy: %+v", detail)
	}
	if h, isHealth := detail.(bot.Health); !isHealth || h.Components["storage"].Status != bot.StatusHealthy {
		t.Fatalf("health detail = %#v", detail)
	}
}

func TestNewFailsOnBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("poster:\n  driver: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path, Options{Lookup: noEnv}); err == nil {
		t.Fatal("expected config error")
	}
}

func TestApplyConfigSwapsSchedule(t *testing.T) {
	a, _ := newApp(t)
	oldCfg := a.cfgm.Get()

	next := *oldCfg
	next.Schedule.PostsPerDay = 2
	next.Schedule.PreferredHours = []int{10, 18}
	next.Content.Topic = "DevOps"
	next.Content.TrendingStars = -1
	a.applyConfig(context.Background(), oldCfg, &next)

	p := a.Queue().Policy()
	if p.DailyQuota != 2 || len(p.PreferredHours) != 2 || p.PreferredHours[0] != 10 {
		t.Fatalf("policy = %+v", p)
	}
	if a.Bot().Composer() == nil {
		t.Fatal("composer missing after reload")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, _ := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for a.Queue().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if a.Queue().Len() == 0 {
		t.Fatal("initial cycle did not queue the feed item")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Storage: config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "2s"}}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if sc.Driver != "sqlite" || sc.BusyTimeout != 2*time.Second || !sc.Fallback {
		t.Fatalf("sc = %+v", sc)
	}

	cfg.Storage.Driver = "redis"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
