package schedule

import (
	"testing"
	"time"
)

func at(day, hour, min int) time.Time {
	return time.Date(2025, 3, day, hour, min, 0, 0, time.UTC)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		quota int
		hours []int
		ok    bool
	}{
		{"default", 4, []int{9, 13, 17, 21}, true},
		{"zero quota", 0, []int{9}, false},
		{"no hours", 4, nil, false},
		{"hour out of range", 4, []int{9, 24}, false},
		{"negative hour", 4, []int{-1}, false},
		{"duplicates allowed", 2, []int{13, 9, 13}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.quota, tc.hours, nil)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error, got policy %+v", p)
			}
		})
	}

	p, _ := New(2, []int{13, 9, 13}, nil)
	if len(p.PreferredHours) != 2 || p.PreferredHours[0] != 9 || p.PreferredHours[1] != 13 {
		t.Fatalf("hours not normalized: %v", p.PreferredHours)
	}
}

func TestMinSpacing(t *testing.T) {
	t.Parallel()

	cases := map[int]time.Duration{
		1:  23 * time.Hour,
		4:  5 * time.Hour,
		6:  3 * time.Hour,
		8:  2 * time.Hour,
		12: 2 * time.Hour,
		48: 2 * time.Hour,
	}
	for quota, want := range cases {
		p, err := New(quota, DefaultPreferredHours, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.MinSpacing(); got != want {
			t.Fatalf("quota %d: MinSpacing = %v, want %v", quota, got, want)
		}
	}
}

func TestNextSlotScenarios(t *testing.T) {
	t.Parallel()

	p := Default()
	cases := []struct {
		name   string
		now    time.Time
		recent []time.Time
		want   time.Time
	}{
		{
			name: "before first window",
			now:  at(10, 8, 0),
			want: at(10, 9, 0),
		},
		{
			name:   "spacing pushes past window",
			now:    at(10, 9, 10),
			recent: []time.Time{at(10, 9, 5)},
			want:   at(10, 14, 5),
		},
		{
			name:   "quota used up",
			now:    at(10, 15, 0),
			recent: []time.Time{at(10, 0, 30), at(10, 5, 30), at(10, 10, 30), at(10, 14, 0)},
			want:   at(11, 9, 0),
		},
		{
			name: "after last window wraps",
			now:  at(10, 22, 0),
			want: at(11, 9, 0),
		},
		{
			name: "exactly on a window is not eligible",
			now:  at(10, 13, 0),
			want: at(10, 17, 0),
		},
		{
			name:   "yesterday's sends do not count toward today",
			now:    at(10, 8, 0),
			recent: []time.Time{at(9, 1, 0), at(9, 2, 0), at(9, 3, 0), at(9, 4, 0)},
			want:   at(10, 9, 0),
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := p.NextSlot(tc.now, tc.recent)
			if !got.Equal(tc.want) {
				t.Fatalf("NextSlot = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextSlotInvariants(t *testing.T) {
	t.Parallel()

	p := Default()
	start := at(1, 0, 0)
	for i := 0; i < 24*4*7; i++ {
		now := start.Add(time.Duration(i) * 15 * time.Minute)

		got := p.NextSlot(now, nil)
		if !got.After(now) {
			t.Fatalf("now=%v: slot %v is not in the future", now, got)
		}
		if got.Minute() != 0 || !isPreferred(got.Hour()) {
			t.Fatalf("now=%v: slot %v is not a preferred hour", now, got)
		}

		last := now.Add(-time.Duration(i%7) * time.Hour)
		got = p.NextSlot(now, []time.Time{last.Add(-3 * time.Hour), last})
		if got.Before(last.Add(p.MinSpacing())) {
			t.Fatalf("now=%v last=%v: slot %v violates spacing", now, last, got)
		}
	}
}

func TestNextSlotRespectsZone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	p, err := New(4, []int{9}, loc)
	if err != nil {
		t.Fatal(err)
	}
	// 06:30 UTC is 08:30 local.
	got := p.NextSlot(time.Date(2025, 3, 10, 6, 30, 0, 0, time.UTC), nil)
	want := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextSlot = %v, want %v", got, want)
	}
}

func TestNextSlotFallback(t *testing.T) {
	t.Parallel()

	var p *Policy
	now := at(10, 8, 0)
	if got := p.NextSlot(now, nil); !got.Equal(now.Add(FallbackDelay)) {
		t.Fatalf("NextSlot on nil policy = %v, want now+2h", got)
	}
}

func isPreferred(h int) bool {
	for _, x := range DefaultPreferredHours {
		if x == h {
			return true
		}
	}
	return false
}
