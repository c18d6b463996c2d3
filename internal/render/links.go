package render

import (
	"regexp"
	"strings"

	"github.com/gitunderstand/gitunderstand-go/internal/mermaid"
)

var (
	anchorTag = regexp.MustCompile(`<a\s[^>]*>`)
	hrefAttr  = regexp.MustCompile(`(xlink:href|href)="([^"]*)"`)
)

// RewriteLinks post-processes the anchors a rendered diagram embeds. When
// resolve is set, GitHub blob/tree links are replaced by resolve's result
// for the repository-relative path; everything else keeps its target but
// opens in a new browsing context.
func RewriteLinks(svg string, resolve func(repoPath string) string) string {
	return anchorTag.ReplaceAllStringFunc(svg, func(tag string) string {
		m := hrefAttr.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}

		if resolve != nil {
			if path, ok := mermaid.RepoPath(m[2]); ok {
				return strings.Replace(tag, m[0], m[1]+`="`+resolve(path)+`"`, 1)
			}
		}

		if strings.Contains(tag, "target=") {
			return tag
		}
		return tag[:len(tag)-1] + ` target="_blank" rel="noopener noreferrer">`
	})
}
