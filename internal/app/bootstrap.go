package app

import (
	"fmt"
	"strings"

	"announcebot/internal/bot"
	"announcebot/internal/compose"
	"announcebot/internal/config"
	"announcebot/internal/detect"
	"announcebot/internal/opsserver"
	"announcebot/internal/poster"
	"announcebot/internal/schedule"
	logx "announcebot/pkg/logx"
)

// ---- config -> component mapping ----

func mapLogging(cfg *config.Config, debug bool) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	if debug {
		lc.Level = "debug"
	}
	if !lc.Console && !lc.File.Enabled {
		lc.Console = true
	}
	return lc
}

func mapPolicy(cfg *config.Config) (*schedule.Policy, error) {
	return schedule.New(cfg.Schedule.PostsPerDay, cfg.Schedule.PreferredHours, cfg.Location())
}

func mapComposer(cfg *config.Config, log logx.Logger) (*compose.Composer, error) {
	return compose.New(compose.Config{
		MaxLength:  cfg.Content.MaxLength,
		Topic:      cfg.Content.Topic,
		Collection: cfg.Content.Collection,
	}, log)
}

func mapBotConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		CheckInterval: cfg.Bot.CheckEvery(),
		PostInterval:  cfg.Bot.PostEvery(),
		DetectTimeout: cfg.Bot.DetectTimeoutOrDefault(),
		TrendingStars: cfg.Content.TrendingStars,
		PruneSpec:     cfg.Bot.PruneSpec(),
		Retention:     cfg.Storage.RetentionOrDefault(),
		SummarySpec:   cfg.Bot.SummarySpec(),
		SummaryLink:   cfg.Content.SummaryLink,
		Location:      cfg.Location(),
	}
}

func mapPoster(cfg *config.Config, log logx.Logger) (poster.Poster, error) {
	var p poster.Poster
	switch strings.ToLower(strings.TrimSpace(cfg.Poster.Driver)) {
	case "telegram":
		tc := cfg.Poster.Telegram
		t, err := poster.NewTelegram(poster.TelegramConfig{
			Token:          tc.Token,
			Chat:           tc.Chat,
			ParseMode:      tc.ParseMode,
			DisablePreview: tc.DisablePreview,
			APIURL:         tc.APIURL,
			Timeout:        config.Timeout(tc.Timeout),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("poster.telegram: %w", err)
		}
		p = t
	case "dryrun":
		p = poster.NewDryRun(log)
	default:
		return nil, fmt.Errorf("unknown poster.driver: %s", cfg.Poster.Driver)
	}
	return poster.WithLimit(p, cfg.Poster.MinIntervalOrDefault()), nil
}

// mapSources builds every enabled detection source behind one Multi.
func mapSources(cfg *config.Config, log logx.Logger) (detect.Source, error) {
	var srcs []detect.Source
	if gh := cfg.Sources.GitHub; gh.IsEnabled() {
		srcs = append(srcs, detect.NewGitHub(detect.GitHubConfig{
			Repo:      gh.Repo,
			Path:      gh.Path,
			Token:     gh.Token,
			APIURL:    gh.APIURL,
			Timeout:   config.Timeout(gh.Timeout),
			SkipStars: gh.SkipStars,
		}, log.Component("github")))
	}
	for i, fc := range cfg.Sources.Feeds {
		f, err := detect.NewFeed(detect.FeedConfig{
			URL:      fc.URL,
			Category: fc.Category,
			Timeout:  config.Timeout(fc.Timeout),
		}, log.Component("feed"))
		if err != nil {
			return nil, fmt.Errorf("sources.feeds[%d]: %w", i, err)
		}
		srcs = append(srcs, f)
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no detection source enabled")
	}
	return detect.NewMulti(log.Component("sources"), srcs...), nil
}

func mapOps(cfg *config.Config) opsserver.Config {
	o := cfg.Ops
	return opsserver.Config{
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   config.Timeout(o.ReadTimeout),
		WriteTimeout:  config.Timeout(o.WriteTimeout),
		IdleTimeout:   config.Timeout(o.IdleTimeout),
	}
}
