package mermaid

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	clickTarget = regexp.MustCompile(`click\s+([^\s"]+)\s+"([^"]+)"`)
	githubPath  = regexp.MustCompile(`github\.com/[^/]+/[^/]+/(?:blob|tree)/[^/]+/(.+)`)
)

// ResolveClicks rewrites repository-relative click targets into absolute
// GitHub URLs. A target whose last path segment carries an extension points
// at a file (blob), anything else at a directory (tree). Targets that are
// already absolute URLs are left alone.
func ResolveClicks(diagram, owner, repo, branch string) string {
	return clickTarget.ReplaceAllStringFunc(diagram, func(match string) string {
		groups := clickTarget.FindStringSubmatch(match)
		node, target := groups[1], groups[2]

		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			return match
		}

		segments := strings.Split(target, "/")
		kind := "tree"
		if strings.Contains(segments[len(segments)-1], ".") {
			kind = "blob"
		}
		url := fmt.Sprintf("https://github.com/%s/%s/%s/%s/%s", owner, repo, kind, branch, target)
		return fmt.Sprintf("click %s %q", node, url)
	})
}

// RepoPath extracts the repository-relative path from a GitHub blob or tree
// URL. It reports false for anything else so callers can fall back to plain
// navigation.
func RepoPath(url string) (string, bool) {
	m := githubPath.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}
