package compose

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"announcebot/internal/model"
)

type Validation struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues,omitempty"`
	Length      int      `json:"length"`
	HasHashtags bool     `json:"has_hashtags"`
	HasURL      bool     `json:"has_url"`
}

var reHashtag = regexp.MustCompile(`#\w+`)

// Validate checks a rendered post. Missing hashtags or URL are reported as
// issues but do not invalidate the post; length bounds do.
func (c *Composer) Validate(text string) Validation {
	v := Validation{
		Valid:       true,
		Length:      runeLen(text),
		HasHashtags: reHashtag.MatchString(text),
		HasURL:      reURL.MatchString(text),
	}
	if v.Length > c.cfg.MaxLength {
		v.Valid = false
		v.Issues = append(v.Issues, fmt.Sprintf("too long (%d > %d)", v.Length, c.cfg.MaxLength))
	}
	if v.Length < 10 {
		v.Valid = false
		v.Issues = append(v.Issues, "too short")
	}
	if !v.HasHashtags {
		v.Issues = append(v.Issues, "no hashtags found")
	}
	if !v.HasURL {
		v.Issues = append(v.Issues, "no url found")
	}
	return v
}

// Summary renders a recap of several items (top three categories by count).
func (c *Composer) Summary(items []model.TrackedItem, link string) string {
	counts := map[string]int{}
	total := 0
	for _, it := range items {
		cat := strings.ToLower(strings.TrimSpace(it.Category))
		if cat == "" {
			cat = defaultCategory
		}
		counts[cat]++
		total += it.Popularity
	}
	cats := make([]string, 0, len(counts))
	for k := range counts {
		cats = append(cats, k)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})
	if len(cats) > 3 {
		cats = cats[:3]
	}
	for i := range cats {
		cats[i] = title(cats[i])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Weekly #%s tools recap:\n\n", c.cfg.Topic)
	fmt.Fprintf(&b, "🆕 %d new tools added\n", len(items))
	fmt.Fprintf(&b, "⭐ %s total GitHub stars\n", FormatStars(total))
	if len(cats) > 0 {
		fmt.Fprintf(&b, "📂 Top categories: %s\n", strings.Join(cats, ", "))
	}
	if link != "" {
		fmt.Fprintf(&b, "\n🔗 See all tools: %s\n", link)
	}
	b.WriteString("\n#DevOps #CloudNative #OpenSource")

	out := b.String()
	if runeLen(out) > c.cfg.MaxLength {
		return clip(out, c.cfg.MaxLength)
	}
	return out
}
