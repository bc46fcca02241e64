// Package schedule computes when the next announcement may go out.
//
// A Policy spreads posts across fixed daily windows (preferred hours) while
// never letting two sends come closer than MinSpacing. Everything here is pure
// computation; callers supply "now" and the recent send history.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FallbackDelay is returned by NextSlot relative to now when no slot can be computed.
const FallbackDelay = 2 * time.Hour

// DefaultPreferredHours are the original posting windows (UTC).
var DefaultPreferredHours = []int{9, 13, 17, 21}

const DefaultDailyQuota = 4

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Policy struct {
	DailyQuota     int
	PreferredHours []int
	Location       *time.Location

	hours cron.Schedule
	expr  string
}

// New validates the inputs and compiles the preferred hours into a cron schedule.
// Hours are de-duplicated and sorted; a nil location means UTC.
func New(quota int, hours []int, loc *time.Location) (*Policy, error) {
	if quota < 1 {
		return nil, fmt.Errorf("daily quota must be >= 1 (got %d)", quota)
	}
	if len(hours) == 0 {
		return nil, errors.New("at least one preferred hour is required")
	}
	if loc == nil {
		loc = time.UTC
	}

	seen := map[int]bool{}
	norm := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("preferred hour %d out of range 0..23", h)
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		norm = append(norm, h)
	}
	sort.Ints(norm)

	parts := make([]string, len(norm))
	for i, h := range norm {
		parts[i] = strconv.Itoa(h)
	}
	expr := fmt.Sprintf("0 %s * * *", strings.Join(parts, ","))
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("compile preferred hours: %w", err)
	}
	// Fixed zones have no tz database name, so CRON_TZ cannot carry them.
	if spec, ok := sched.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}

	return &Policy{
		DailyQuota:     quota,
		PreferredHours: norm,
		Location:       loc,
		hours:          sched,
		expr:           expr,
	}, nil
}

// Default is the original 4-per-day, {9,13,17,21} UTC policy.
func Default() *Policy {
	p, err := New(DefaultDailyQuota, DefaultPreferredHours, time.UTC)
	if err != nil {
		panic(err)
	}
	return p
}

// Spec returns the compiled cron expression with its zone (for logs and status output).
func (p *Policy) Spec() string {
	if p == nil {
		return ""
	}
	return p.expr + " (" + p.Location.String() + ")"
}

// MinSpacing is max(24/quota - 1, 2) hours, integer division.
func (p *Policy) MinSpacing() time.Duration {
	q := 1
	if p != nil && p.DailyQuota > 0 {
		q = p.DailyQuota
	}
	h := 24/q - 1
	if h < 2 {
		h = 2
	}
	return time.Duration(h) * time.Hour
}

// NextSlot returns the earliest time the next post may be sent.
//
// When today's quota (calendar day in the policy zone, counted inclusively) is
// used up the slot is the first preferred hour of tomorrow; otherwise it is the
// earliest preferred hour strictly after now. The result is then pushed to at
// least the latest recent send plus MinSpacing.
func (p *Policy) NextSlot(now time.Time, recent []time.Time) time.Time {
	if p == nil || p.hours == nil {
		return now.Add(FallbackDelay)
	}

	local := now.In(p.Location)
	y, m, d := local.Date()

	today := 0
	var latest time.Time
	for _, t := range recent {
		ty, tm, td := t.In(p.Location).Date()
		if ty == y && tm == m && td == d {
			today++
		}
		if t.After(latest) {
			latest = t
		}
	}

	var slot time.Time
	if today >= p.DailyQuota {
		midnight := time.Date(y, m, d+1, 0, 0, 0, 0, p.Location)
		slot = p.hours.Next(midnight.Add(-time.Second))
	} else {
		slot = p.hours.Next(now)
	}
	if slot.IsZero() {
		return now.Add(FallbackDelay)
	}

	if !latest.IsZero() {
		if earliest := latest.Add(p.MinSpacing()); earliest.After(slot) {
			slot = earliest
		}
	}
	return slot.In(now.Location())
}
