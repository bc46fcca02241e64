package detect

import (
	"regexp"
	"strings"
)

var (
	// | 12 | tool-name | [Description](https://url) | ![Github Stars](...)
	reTableRow = regexp.MustCompile(`\|\s*(\d+)\s*\|\s*([^|]+?)\s*\|\s*\[([^\]]+)\]\(([^)]+)\)[^|]*\|\s*!\[Github Stars\]`)
	reGitHub   = regexp.MustCompile(`github\.com/([^/]+/[^/)#?\s]+)`)
)

type tableRow struct {
	Name        string
	Description string
	URL         string
}

// addedLines returns the "+" lines of a unified diff without the marker.
func addedLines(patch string) []string {
	var out []string
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			out = append(out, line[1:])
		}
	}
	return out
}

func parseRow(line string) (tableRow, bool) {
	m := reTableRow.FindStringSubmatch(line)
	if m == nil {
		return tableRow{}, false
	}
	row := tableRow{
		Name:        strings.TrimSpace(m[2]),
		Description: strings.TrimSpace(m[3]),
		URL:         strings.TrimSpace(m[4]),
	}
	if row.Name == "" || row.URL == "" {
		return tableRow{}, false
	}
	return row, true
}

// repoPath extracts "owner/name" from a GitHub URL.
func repoPath(url string) (string, bool) {
	m := reGitHub.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(m[1], ".git"), true
}

// categories is checked in order; the first keyword hit wins.
var categories = []struct {
	name     string
	keywords []string
}{
	{"monitoring", []string{"monitor", "observability", "metrics", "alert"}},
	{"security", []string{"security", "scan", "vulnerability", "policy"}},
	{"networking", []string{"network", "ingress", "service mesh", "proxy"}},
	{"storage", []string{"storage", "volume", "backup", "database"}},
	{"development", []string{"development", "dev", "build", "ci/cd"}},
	{"debugging", []string{"debug", "troubleshoot", "log", "trace"}},
	{"deployment", []string{"deploy", "helm", "operator", "install"}},
	{"cluster", []string{"cluster", "node", "management"}},
	{"ai", []string{"ai", "machine learning", "ml", "artificial"}},
}

// Categorize maps free text onto a category by keyword.
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return "general"
}
