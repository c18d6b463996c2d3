// Package mermaid repairs common syntax faults in generated Mermaid
// diagrams and resolves the links they embed. Generated diagrams break in a
// small set of predictable ways; Repair fixes those deterministically so
// most diagrams render without a round trip to the model.
package mermaid

import (
	"regexp"
	"strings"
)

var (
	// initDirective matches %%{init: ...}%% configuration blocks, which may
	// span lines. Rendering config is applied by the caller; an embedded
	// copy would fight it.
	initDirective = regexp.MustCompile(`(?s)%%\{init:.*?\}%%`)

	// Edge labels written as -->| text | with stray spaces or missing
	// quotes. The quoted form is normalized first so the unquoted pattern
	// never re-wraps it.
	pipeQuoted   = regexp.MustCompile(`(-->|---|-\.-|==>|--x|--o)\|\s*"([^"]*)"\s*\|`)
	pipeUnquoted = regexp.MustCompile(`(-->|---|-\.-|==>|--x|--o)\|\s*([^|"\n]+?)\s*\|`)

	// :::className annotations on subgraph declarations, quoted-title
	// (with or without a leading alias) and bare-identifier forms.
	subgraphQuotedClass = regexp.MustCompile(`(subgraph\s+(?:\w+\s+)?"[^"]*")\s*:::\s*[\w-]+`)
	subgraphBareClass   = regexp.MustCompile(`(subgraph\s+\w+)\s*:::\s*[\w-]+`)

	// subgraph ALIAS "Title" is not valid syntax; the alias is dropped.
	subgraphAlias = regexp.MustCompile(`subgraph\s+\w+\s+("[^"]*")`)

	// Node labels containing characters that break unquoted label parsing.
	// Labels already containing a quote are left alone.
	bracketLabel = regexp.MustCompile(`(\w+)\[([^\[\]"]*[/\\(){}@#$%^&*!<>;][^\[\]"]*)\]`)
	parenLabel   = regexp.MustCompile(`(\w+)\(([^()"]*[/\\{}@#$%^&*!<>;][^()"]*)\)`)
)

// Repair applies the deterministic syntax fixes to a diagram, in order. It
// never fails; text no rule recognizes comes back unchanged apart from
// surrounding whitespace.
func Repair(source string) string {
	out := initDirective.ReplaceAllString(source, "")

	out = pipeQuoted.ReplaceAllString(out, `$1|"$2"|`)
	out = pipeUnquoted.ReplaceAllString(out, `$1|"$2"|`)

	out = subgraphQuotedClass.ReplaceAllString(out, "$1")
	out = subgraphBareClass.ReplaceAllString(out, "$1")

	out = subgraphAlias.ReplaceAllString(out, "subgraph $1")

	out = bracketLabel.ReplaceAllString(out, `$1["$2"]`)
	out = parenLabel.ReplaceAllString(out, `$1("$2")`)

	return strings.TrimSpace(out)
}
