// Package compose renders announcement text for detected items.
//
// Rendering is deterministic: template, hashtags and emoji are picked from an
// FNV hash of the item name, so re-rendering the same item yields the same post.
package compose

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"html"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

const (
	DefaultMaxLength  = 280
	DefaultTopic      = "Kubernetes"
	DefaultCollection = "kubetools"

	shortLimit   = 80
	minDescRunes = 20
)

type Config struct {
	MaxLength  int
	Topic      string
	Collection string
}

type Composer struct {
	cfg       Config
	log       logx.Logger
	strip     *bluemonday.Policy
	templates map[Kind][]*template.Template
	fallback  *template.Template
}

// fields is the template data.
type fields struct {
	Name        string
	Description string
	Short       string
	URL         string
	Stars       string
	Category    string
	Tags        string
	Emoji       string
	Topic       string
	Collection  string
}

func New(cfg Config, log logx.Logger) (*Composer, error) {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		cfg.Collection = DefaultCollection
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	c := &Composer{
		cfg:       cfg,
		log:       log,
		strip:     bluemonday.StrictPolicy(),
		templates: map[Kind][]*template.Template{},
	}
	for kind, srcs := range templateSources {
		for i, src := range srcs {
			t, err := template.New(fmt.Sprintf("%s_%d", kind, i)).Option("missingkey=error").Parse(src)
			if err != nil {
				return nil, fmt.Errorf("parse template %s[%d]: %w", kind, i, err)
			}
			c.templates[kind] = append(c.templates[kind], t)
		}
	}
	fb, err := template.New("fallback").Parse(fallbackSource)
	if err != nil {
		return nil, fmt.Errorf("parse fallback template: %w", err)
	}
	c.fallback = fb
	return c, nil
}

func (c *Composer) MaxLength() int { return c.cfg.MaxLength }

// Render produces a new-item announcement bounded to MaxLength runes.
func (c *Composer) Render(it model.Item) string {
	return c.RenderKind(it, KindNew)
}

// RenderKind renders it with a template of the given family. Unknown kinds
// use the new-item family.
func (c *Composer) RenderKind(it model.Item, kind Kind) string {
	tpls := c.templates[kind]
	if len(tpls) == 0 {
		tpls = c.templates[KindNew]
	}
	h := hash(it.Name)
	f := c.fields(it, h)

	out, err := execute(tpls[h%uint64(len(tpls))], f)
	if err != nil {
		c.log.Warn("template failed, using fallback", logx.String("item", it.Name), logx.Err(err))
		return c.renderFallback(f)
	}
	if runeLen(out) <= c.cfg.MaxLength {
		return out
	}

	// Shrink whichever description the template used by the overflow.
	over := runeLen(out) - c.cfg.MaxLength
	trimmed := f
	trimmed.Description = shrink(f.Description, runeLen(f.Description)-over-3)
	trimmed.Short = shrink(f.Short, runeLen(f.Short)-over-3)
	if out, err = execute(tpls[h%uint64(len(tpls))], trimmed); err == nil && runeLen(out) <= c.cfg.MaxLength {
		return out
	}
	return c.renderFallback(f)
}

func (c *Composer) renderFallback(f fields) string {
	out, err := execute(c.fallback, f)
	if err == nil && runeLen(out) <= c.cfg.MaxLength {
		return out
	}
	// Last resort keeps the URL intact and clips the name.
	tail := "\n🔗 " + f.URL
	room := c.cfg.MaxLength - runeLen(tail)
	if room <= 3 {
		return clip(f.URL, c.cfg.MaxLength)
	}
	return clip(f.Name, room) + tail
}

func (c *Composer) fields(it model.Item, h uint64) fields {
	cat := strings.ToLower(strings.TrimSpace(it.Category))
	if _, ok := hashtags[cat]; !ok {
		cat = defaultCategory
	}
	desc := c.CleanDescription(it.Description)
	if desc == "" {
		desc = "A new " + c.cfg.Topic + " tool."
	}
	name := strings.TrimSpace(it.Name)
	if name == "" {
		name = "New Tool"
	}
	return fields{
		Name:        name,
		Description: desc,
		Short:       ShortDescription(desc),
		URL:         it.URL,
		Stars:       FormatStars(it.Popularity),
		Category:    title(cat),
		Tags:        pickTags(hashtags[cat], h, 3),
		Emoji:       emojis[cat][h%uint64(len(emojis[cat]))],
		Topic:       c.cfg.Topic,
		Collection:  c.cfg.Collection,
	}
}

var (
	reURL   = regexp.MustCompile(`https?://\S+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// CleanDescription strips markup and URLs, collapses whitespace and ensures
// terminal punctuation.
func (c *Composer) CleanDescription(s string) string {
	s = html.UnescapeString(c.strip.Sanitize(s))
	s = reURL.ReplaceAllString(s, "")
	s = strings.TrimSpace(reSpace.ReplaceAllString(s, " "))
	if s != "" && !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

// ShortDescription cuts at the first sentence when it fits, else at a word
// boundary with an ellipsis.
func ShortDescription(s string) string {
	if runeLen(s) <= shortLimit {
		return s
	}
	if i := strings.Index(s, ". "); i >= 0 && runeLen(s[:i]) <= shortLimit {
		return s[:i] + "."
	}
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		if runeLen(b.String())+runeLen(w) > shortLimit-5 {
			break
		}
		b.WriteString(w)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String()) + "..."
}

// FormatStars renders 1234 as "1.2k".
func FormatStars(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func pickTags(all []string, h uint64, n int) string {
	if n > len(all) {
		n = len(all)
	}
	start := int(h % uint64(len(all)))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, all[(start+i)%len(all)])
	}
	return strings.Join(out, " ")
}

func execute(t *template.Template, f fields) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func shrink(s string, n int) string {
	if n < minDescRunes {
		n = minDescRunes
	}
	if runeLen(s) <= n {
		return s
	}
	return strings.TrimSpace(clip(s, n+3))
}

// clip bounds s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func title(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}
