// Package detect finds candidate items in upstream sources.
package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

// DefaultLookback bounds the first scan when no last-check time is known.
const DefaultLookback = 7 * 24 * time.Hour

// Source reports items added upstream after since. A nil since means the
// source picks its own lookback window.
type Source interface {
	Name() string
	ListNewItems(ctx context.Context, since *time.Time) ([]model.Item, error)
	HealthCheck(ctx context.Context) error
}

// Multi fans out to several sources. A failing source is logged and skipped;
// ListNewItems fails only when every source failed.
type Multi struct {
	sources []Source
	log     logx.Logger
}

func NewMulti(log logx.Logger, sources ...Source) *Multi {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Multi{sources: sources, log: log}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Sources() []Source { return append([]Source(nil), m.sources...) }

func (m *Multi) ListNewItems(ctx context.Context, since *time.Time) ([]model.Item, error) {
	if len(m.sources) == 0 {
		return nil, nil
	}
	var (
		out    []model.Item
		errs   []error
		failed int
	)
	for _, s := range m.sources {
		items, err := s.ListNewItems(ctx, since)
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			m.log.Warn("source failed", logx.String("source", s.Name()), logx.Err(err))
			continue
		}
		for i := range items {
			if items[i].Source == "" {
				items[i].Source = s.Name()
			}
		}
		out = append(out, items...)
	}
	if failed == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (m *Multi) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, s := range m.sources {
		if err := s.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func sinceOrLookback(since *time.Time, now time.Time) time.Time {
	if since == nil || since.IsZero() {
		return now.Add(-DefaultLookback)
	}
	return *since
}
