package detect

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

const maxFeedBody = 10 << 20

type FeedConfig struct {
	URL string
	// Category overrides keyword categorization when set.
	Category string
	Timeout  time.Duration
}

// Feed reports RSS/Atom entries published after the last check.
type Feed struct {
	cfg    FeedConfig
	client *http.Client
	strip  *bluemonday.Policy
	log    logx.Logger
	now    func() time.Time
}

func NewFeed(cfg FeedConfig, log logx.Logger) (*Feed, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("feed url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feed{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		strip:  bluemonday.StrictPolicy(),
		log:    log,
		now:    time.Now,
	}, nil
}

func (f *Feed) Name() string { return "feed:" + f.cfg.URL }

func (f *Feed) ListNewItems(ctx context.Context, since *time.Time) ([]model.Item, error) {
	feed, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}
	from := sinceOrLookback(since, f.now())

	out := make([]model.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		var at time.Time
		switch {
		case it.PublishedParsed != nil:
			at = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			at = *it.UpdatedParsed
		}
		// Undated entries cannot be ordered against the last check.
		if at.IsZero() || !at.After(from) {
			continue
		}
		link := it.Link
		if link == "" && (strings.HasPrefix(it.GUID, "http://") || strings.HasPrefix(it.GUID, "https://")) {
			link = it.GUID
		}
		name := strings.TrimSpace(it.Title)
		if name == "" || link == "" {
			continue
		}
		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		desc = strings.TrimSpace(html.UnescapeString(f.strip.Sanitize(desc)))

		cat := f.cfg.Category
		if cat == "" {
			cat = Categorize(name + " " + desc)
		}
		out = append(out, model.Item{
			Name:        name,
			URL:         link,
			Description: desc,
			Category:    cat,
			AddedAt:     at,
			Source:      f.Name(),
			Ref:         it.GUID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	f.log.Debug("feed parsed", logx.String("url", f.cfg.URL), logx.Int("entries", len(feed.Items)), logx.Int("new", len(out)))
	return out, nil
}

func (f *Feed) HealthCheck(ctx context.Context) error {
	_, err := f.fetch(ctx)
	return err
}

func (f *Feed) fetch(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "announcebot")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}
