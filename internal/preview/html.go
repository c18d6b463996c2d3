package preview

import (
	"html/template"
	"io"

	"github.com/gitunderstand/gitunderstand-go/internal/render"
)

// pageData feeds the preview template. SVG is trusted output from the
// render engine; everything else is escaped normally.
type pageData struct {
	State     string
	Source    string
	SVG       template.HTML
	Repaired  bool
	ErrMsg    string
	Candidate string
}

var pageTmpl = template.Must(template.New("page").Parse(pageHTML))

func renderPage(w io.Writer, snap render.Snapshot) error {
	return pageTmpl.Execute(w, pageData{
		State:     string(snap.State),
		Source:    snap.Source,
		SVG:       template.HTML(snap.SVG),
		Repaired:  snap.Repaired,
		ErrMsg:    snap.ErrMsg,
		Candidate: snap.Candidate,
	})
}

const pageHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>GitUnderstand diagram preview</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
.state { color: #666; }
.error { color: #b00020; }
pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
.diagram svg { max-width: 100%; height: auto; }
</style>
</head>
<body>
<header>
<h1>Diagram preview</h1>
<p class="state">{{.State}}{{if .Repaired}} (auto-repaired){{end}}</p>
</header>
{{if eq .State "rendered"}}
<main class="diagram">{{.SVG}}</main>
<p><a href="/diagram.svg">raw SVG</a></p>
{{else if eq .State "failed"}}
<main class="failure">
<p class="error">{{.ErrMsg}}</p>
<h2>Diagram source</h2>
<pre id="diagram-source">{{.Source}}</pre>
<button onclick="copySource()">Copy source</button>
{{if .Candidate}}
<h2>Repaired candidate</h2>
<pre>{{.Candidate}}</pre>
<form method="post" action="/retry"><button type="submit">Retry with fixes</button></form>
{{end}}
</main>
{{else if eq .State "faulted"}}
<main class="failure">
<p class="error">{{.ErrMsg}}</p>
<form method="post" action="/reset"><button type="submit">Reset</button></form>
</main>
{{else if eq .State "idle"}}
<main><p>No diagram loaded.</p></main>
{{else}}
<main><p>Working on it.</p></main>
{{end}}
<script>
function copySource() {
  navigator.clipboard.writeText(document.getElementById("diagram-source").innerText);
}
</script>
</body>
</html>
`
