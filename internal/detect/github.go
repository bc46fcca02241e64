package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"announcebot/internal/model"
	logx "announcebot/pkg/logx"
)

const (
	DefaultGitHubAPI  = "https://api.github.com"
	DefaultGitHubRepo = "collabnix/kubetools"
	DefaultReadmePath = "README.md"

	maxGitHubBody = 8 << 20
)

type GitHubConfig struct {
	Repo    string
	Path    string
	Token   string
	APIURL  string
	Timeout time.Duration
	// SkipStars disables the per-item stargazer lookup.
	SkipStars bool
}

// GitHub watches commits touching a README table and reports rows added by
// those commits.
type GitHub struct {
	cfg    GitHubConfig
	client *http.Client
	log    logx.Logger
	now    func() time.Time
}

func NewGitHub(cfg GitHubConfig, log logx.Logger) *GitHub {
	if strings.TrimSpace(cfg.Repo) == "" {
		cfg.Repo = DefaultGitHubRepo
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultReadmePath
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultGitHubAPI
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &GitHub{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
	}
}

func (g *GitHub) Name() string { return "github:" + g.cfg.Repo }

type ghCommitRef struct {
	SHA string `json:"sha"`
}

type ghCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
	Files []struct {
		Filename string `json:"filename"`
		Status   string `json:"status"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

type ghRepo struct {
	FullName        string `json:"full_name"`
	StargazersCount int    `json:"stargazers_count"`
}

func (g *GitHub) ListNewItems(ctx context.Context, since *time.Time) ([]model.Item, error) {
	from := sinceOrLookback(since, g.now())

	q := url.Values{}
	q.Set("path", g.cfg.Path)
	q.Set("since", from.UTC().Format(time.RFC3339))
	q.Set("per_page", "100")
	var refs []ghCommitRef
	if err := g.get(ctx, "/repos/"+g.cfg.Repo+"/commits?"+q.Encode(), &refs); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	g.log.Debug("commits listed", logx.String("since", from.Format(time.RFC3339)), logx.Int("count", len(refs)))

	stars := map[string]int{}
	seen := map[string]struct{}{}
	var out []model.Item
	// Newest first from the API; announce in commit order.
	for i := len(refs) - 1; i >= 0; i-- {
		sha := refs[i].SHA
		var c ghCommit
		if err := g.get(ctx, "/repos/"+g.cfg.Repo+"/commits/"+sha, &c); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			g.log.Warn("commit fetch failed", logx.String("sha", short(sha)), logx.Err(err))
			continue
		}
		n := 0
		for _, f := range c.Files {
			if f.Filename != g.cfg.Path || (f.Status != "modified" && f.Status != "added") || f.Patch == "" {
				continue
			}
			for _, line := range addedLines(f.Patch) {
				row, ok := parseRow(line)
				if !ok {
					continue
				}
				key := row.Name + "\x00" + row.URL
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, model.Item{
					Name:        row.Name,
					URL:         row.URL,
					Description: row.Description,
					Category:    Categorize(row.Description),
					Popularity:  g.stars(ctx, row.URL, stars),
					AddedAt:     c.Commit.Committer.Date,
					Source:      g.Name(),
					Ref:         c.SHA,
				})
				n++
			}
		}
		g.log.Debug("commit parsed", logx.String("sha", short(sha)), logx.Int("items", n))
	}
	return out, nil
}

// stars looks up the stargazer count for GitHub URLs; failures count as zero.
func (g *GitHub) stars(ctx context.Context, link string, cache map[string]int) int {
	if g.cfg.SkipStars {
		return 0
	}
	path, ok := repoPath(link)
	if !ok {
		return 0
	}
	if n, ok := cache[path]; ok {
		return n
	}
	var r ghRepo
	if err := g.get(ctx, "/repos/"+path, &r); err != nil {
		g.log.Warn("star lookup failed", logx.String("repo", path), logx.Err(err))
		r.StargazersCount = 0
	}
	cache[path] = r.StargazersCount
	return r.StargazersCount
}

func (g *GitHub) HealthCheck(ctx context.Context) error {
	var r ghRepo
	if err := g.get(ctx, "/repos/"+g.cfg.Repo, &r); err != nil {
		return err
	}
	if r.FullName == "" {
		return errors.New("empty repository response")
	}
	return nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github api: status %d: %s", e.Code, e.Body)
}

func (g *GitHub) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "announcebot")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGitHubBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body[:min(len(body), 200)]))}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
