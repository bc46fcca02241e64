package storage

import (
	"fmt"
	"strings"

	logx "announcebot/pkg/logx"
)

// Open initializes the configured backend.
//
// Unlike a cache, the bot cannot run without persistence: if neither the
// configured driver nor its fallback can be opened the error is returned
// and startup must abort.
func Open(cfg Config, log logx.Logger) (Backend, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		b, err := openSQLite(cfg, log)
		if err == nil {
			return b, nil
		}
		if !cfg.Fallback {
			return nil, err
		}
		log.Warn("sqlite unavailable, falling back to file storage", logx.String("path", cfg.Path), logx.Err(err))
		fb, ferr := openFile(cfg, log)
		if ferr != nil {
			return nil, fmt.Errorf("sqlite: %v; file fallback: %w", err, ferr)
		}
		return fb, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
