package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// reasonUnreadable marks queued rows whose payload no longer decodes.
const reasonUnreadable = "unreadable_payload"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite storage opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func migrateSQLite(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("migrations init: %w", err)
	}
	// m.Close() would close db as well; only the source is released here.
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations up: %w", err)
	}
	return nil
}

func (s *sqliteStore) Driver() string { return "sqlite" }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (s *sqliteStore) TrackedExists(ctx context.Context, name, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_items WHERE name = ? AND source_url = ?`, name, url,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) InsertTracked(ctx context.Context, it model.TrackedItem) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tracked_items(name, source_url, category, popularity, first_seen)
		 VALUES(?,?,?,?,?)`,
		it.Name, it.SourceURL, it.Category, it.Popularity, it.FirstSeenAt.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) CountTracked(ctx context.Context) (int, error) {
	return s.count(ctx, "tracked_items")
}

func (s *sqliteStore) TrackedSince(ctx context.Context, cutoff time.Time) ([]model.TrackedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, source_url, category, popularity, first_seen
		 FROM tracked_items WHERE first_seen >= ? ORDER BY first_seen, id`, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TrackedItem
	for rows.Next() {
		var (
			it model.TrackedItem
			at int64
		)
		if err := rows.Scan(&it.Name, &it.SourceURL, &it.Category, &it.Popularity, &at); err != nil {
			return nil, err
		}
		it.FirstSeenAt = time.UnixMilli(at).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertQueued(ctx context.Context, p model.QueuedPost) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	var sched any
	if p.ScheduledFor != nil {
		sched = p.ScheduledFor.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queued_posts(id, payload, created_at, scheduled_for, priority, attempts, max_attempts)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   payload=excluded.payload,
		   scheduled_for=excluded.scheduled_for,
		   priority=excluded.priority,
		   attempts=excluded.attempts,
		   max_attempts=excluded.max_attempts`,
		p.ID, string(payload), p.CreatedAt.UnixMilli(), sched, p.Priority, p.Attempts, p.MaxAttempts,
	)
	return err
}

func (s *sqliteStore) DeleteQueued(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queued_posts WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) ListQueued(ctx context.Context) ([]model.QueuedPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, created_at, scheduled_for, priority, attempts, max_attempts
		 FROM queued_posts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []model.QueuedPost
		bad []model.FailedRecord
	)
	for rows.Next() {
		var (
			p       model.QueuedPost
			payload string
			created int64
			sched   sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &payload, &created, &sched, &p.Priority, &p.Attempts, &p.MaxAttempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
			s.log.Warn("dropping queued post with unreadable payload", logx.String("id", p.ID), logx.Err(err))
			bad = append(bad, model.FailedRecord{
				QueuedPostID: p.ID,
				Content:      payload,
				Attempts:     p.Attempts,
				Reason:       reasonUnreadable,
				FailedAt:     time.Now().UTC(),
			})
			continue
		}
		p.CreatedAt = time.UnixMilli(created).UTC()
		if sched.Valid {
			t := time.UnixMilli(sched.Int64).UTC()
			p.ScheduledFor = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Release the single connection before writing.
	_ = rows.Close()
	for _, r := range bad {
		if err := s.moveToFailed(ctx, r); err != nil {
			s.log.Warn("move unreadable post failed", logx.String("id", r.QueuedPostID), logx.Err(err))
		}
	}
	return out, nil
}

// moveToFailed records r as failed and deletes its queued row in one transaction.
func (s *sqliteStore) moveToFailed(ctx context.Context, r model.FailedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO failed_posts(queued_post_id, item_name, content, attempts, reason, failed_at)
		 VALUES(?,?,?,?,?,?)`,
		r.QueuedPostID, r.ItemName, r.Content, r.Attempts, r.Reason, r.FailedAt.UnixMilli(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_posts WHERE id = ?`, r.QueuedPostID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) CountQueued(ctx context.Context) (int, error) {
	return s.count(ctx, "queued_posts")
}

func (s *sqliteStore) InsertPosted(ctx context.Context, r model.PostedRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO posted_posts(queued_post_id, external_post_id, item_name, content, posted_at)
		 VALUES(?,?,?,?,?)`,
		r.QueuedPostID, r.ExternalPostID, r.ItemName, r.Content, r.PostedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) PostedSince(ctx context.Context, cutoff time.Time) ([]model.PostedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT queued_post_id, external_post_id, item_name, content, posted_at
		 FROM posted_posts WHERE posted_at >= ? ORDER BY posted_at, id`, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PostedRecord
	for rows.Next() {
		var (
			r  model.PostedRecord
			at int64
		)
		if err := rows.Scan(&r.QueuedPostID, &r.ExternalPostID, &r.ItemName, &r.Content, &at); err != nil {
			return nil, err
		}
		r.PostedAt = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountPosted(ctx context.Context) (int, error) {
	return s.count(ctx, "posted_posts")
}

func (s *sqliteStore) DeletePostedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posted_posts WHERE posted_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) InsertFailed(ctx context.Context, r model.FailedRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_posts(queued_post_id, item_name, content, attempts, reason, failed_at)
		 VALUES(?,?,?,?,?,?)`,
		r.QueuedPostID, r.ItemName, r.Content, r.Attempts, r.Reason, r.FailedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) CountFailed(ctx context.Context) (int, error) {
	return s.count(ctx, "failed_posts")
}

func (s *sqliteStore) GetScalar(ctx context.Context, key string) (model.ScalarValue, bool, error) {
	var (
		v  model.ScalarValue
		at int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM process_state WHERE key = ?`, key).Scan(&v.Value, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScalarValue{}, false, nil
	}
	if err != nil {
		return model.ScalarValue{}, false, err
	}
	v.UpdatedAt = time.UnixMilli(at).UTC()
	return v, true, nil
}

func (s *sqliteStore) SetScalar(ctx context.Context, key, value string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO process_state(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, at.UnixMilli(),
	)
	return err
}

// count is only called with the fixed table names above.
func (s *sqliteStore) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
