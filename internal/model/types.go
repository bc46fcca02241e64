// Package model holds the records shared by detection, storage, queueing and delivery.
package model

import (
	"strings"
	"time"
)

// Item is a candidate entry reported by a detection source.
type Item struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Popularity  int       `json:"popularity,omitempty"` // e.g. GitHub stars
	AddedAt     time.Time `json:"added_at"`
	Source      string    `json:"source,omitempty"` // detector name
	Ref         string    `json:"ref,omitempty"`    // commit sha / feed guid
}

// TrackedItem is the permanent dedupe record of an item we have already seen.
// Identity is the exact (Name, SourceURL) pair.
type TrackedItem struct {
	Name        string    `json:"name"`
	SourceURL   string    `json:"source_url"`
	Category    string    `json:"category,omitempty"`
	Popularity  int       `json:"popularity,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

func TrackedFrom(it Item, seenAt time.Time) TrackedItem {
	return TrackedItem{
		Name:        it.Name,
		SourceURL:   it.URL,
		Category:    it.Category,
		Popularity:  it.Popularity,
		FirstSeenAt: seenAt,
	}
}

// Payload is what a queued post announces: the item and its rendered text.
type Payload struct {
	Item    Item   `json:"item"`
	Content string `json:"content"`
}

const DefaultMaxAttempts = 3

// Priority values. Higher is more urgent.
const (
	PriorityNormal = 1
	PriorityHigh   = 2
	PriorityUrgent = 3
)

// QueuedPost is a pending outbound message.
type QueuedPost struct {
	ID           string     `json:"id"`
	Payload      Payload    `json:"payload"`
	CreatedAt    time.Time  `json:"created_at"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
}

// Clone returns a deep copy (ScheduledFor is a pointer).
func (p QueuedPost) Clone() QueuedPost {
	cp := p
	if p.ScheduledFor != nil {
		t := *p.ScheduledFor
		cp.ScheduledFor = &t
	}
	return cp
}

// PostedRecord is the immutable history entry of a delivered post.
type PostedRecord struct {
	QueuedPostID   string    `json:"queued_post_id"`
	ExternalPostID string    `json:"external_post_id"`
	ItemName       string    `json:"item_name,omitempty"`
	Content        string    `json:"content"`
	PostedAt       time.Time `json:"posted_at"`
}

// FailedRecord notes a post that was dropped from the queue.
type FailedRecord struct {
	QueuedPostID string    `json:"queued_post_id"`
	ItemName     string    `json:"item_name,omitempty"`
	Content      string    `json:"content"`
	Attempts     int       `json:"attempts"`
	Reason       string    `json:"reason,omitempty"`
	FailedAt     time.Time `json:"failed_at"`
}

// ScalarValue is one entry of the process state mapping.
type ScalarValue struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Slug turns an item name into an id-safe prefix.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
		if b.Len() >= 32 {
			break
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "item"
	}
	return s
}
