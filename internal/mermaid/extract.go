package mermaid

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```mermaid\\s*\n(.*?)```")

// ExtractBlocks pulls the contents of ```mermaid fences out of markdown, in
// document order. Summary and chat responses embed diagrams this way.
func ExtractBlocks(markdown string) []string {
	var blocks []string
	for _, m := range fencedBlock.FindAllStringSubmatch(markdown, -1) {
		if block := strings.TrimSpace(m[1]); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}
