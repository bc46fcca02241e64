package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	logx "announcebot/pkg/logx"
)

// DefaultEnvFiles are loaded by LoadDotEnv when no files are given.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadDotEnv loads the given .env files into the process environment.
// Variables already set in the environment win. Missing files are skipped.
func LoadDotEnv(log logx.Logger, files ...string) []string {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	loaded := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if !log.IsZero() {
				log.Warn("env file load failed", logx.String("file", f), logx.Err(err))
			}
			continue
		}
		loaded = append(loaded, f)
	}
	if !log.IsZero() && len(loaded) > 0 {
		log.Debug("env files loaded", logx.String("files", strings.Join(loaded, ",")))
	}
	return loaded
}

// Environment overrides. Secrets should only ever come from here.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHAT"
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvPostsPerDay   = "POSTS_PER_DAY"
	EnvCheckInterval = "CHECK_INTERVAL"
	EnvTimezone      = "TIMEZONE"
	EnvLogLevel      = "LOG_LEVEL"
	EnvStorageDriver = "STORAGE_DRIVER"
	EnvStoragePath   = "STORAGE_PATH"
	EnvPosterDriver  = "POSTER_DRIVER"
)

// ApplyEnv overlays environment values onto cfg. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvTelegramToken); ok {
		c.Poster.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChat); ok {
		c.Poster.Telegram.Chat = v
	}
	if v, ok := get(EnvGitHubToken); ok {
		c.Sources.GitHub.Token = v
	}
	if v, ok := get(EnvPostsPerDay); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", EnvPostsPerDay, v)
		}
		c.Schedule.PostsPerDay = n
	}
	if v, ok := get(EnvCheckInterval); ok {
		c.Bot.CheckInterval = v
	}
	if v, ok := get(EnvTimezone); ok {
		c.Schedule.Timezone = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvStorageDriver); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := get(EnvStoragePath); ok {
		c.Storage.Path = v
	}
	if v, ok := get(EnvPosterDriver); ok {
		c.Poster.Driver = strings.ToLower(v)
	}
	return nil
}
