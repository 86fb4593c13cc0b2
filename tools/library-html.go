package tools

import (
	"fmt"
	"html"
	"io"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"

	md "github.com/russross/blackfriday/v2"
)

// RenderLibraryHTML writes an HTML fragment that documents each
// behavior in the library.
func RenderLibraryHTML(lib *behavior.Library, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	esc := html.EscapeString

	f(`<div class="behaviors">`)
	for _, name := range lib.Names() {
		d := lib.Behaviors[name]

		f(`<div class="behavior" id="%s">`, esc(name))
		f(`<h2 class="behaviorName">%s</h2>`, esc(name))
		if d.Doc != "" {
			f(`<div class="behaviorDoc doc">%s</div>`, md.Run([]byte(d.Doc)))
		}

		if 0 < len(d.Parameters) {
			f(`<div class="parameters">parameters:`)
			for _, p := range d.Parameters {
				f(`<code class="parameter">%s</code>`, esc(p))
			}
			f(`</div>`)
		}

		if 0 < len(d.Problems) {
			f(`<ul class="problems">`)
			for _, err := range d.Problems {
				f(`<li class="problem">%s</li>`, esc(err.Error()))
			}
			f(`</ul>`)
		}

		{ // Keyframes
			f(`<table class="keyframes">`)
			f(`<tr><th>#</th><th>time</th>`)
			for _, dof := range d.Dofs {
				f(`<th class="dof">%s</th>`, esc(dof))
			}
			f(`<th>ending action</th></tr>`)
			for i, k := range d.Keyframes {
				if k == nil {
					continue
				}
				f(`<tr class="keyframe"><td>%d</td><td><code>%s</code></td>`, i, esc(bus.JS(k.Time)))
				for _, v := range k.Pose {
					f(`<td><code>%s</code></td>`, esc(bus.JS(v)))
				}
				f(`<td><code>%s</code></td></tr>`, esc(bus.JS(k.EndingAction)))
			}
			f(`</table>`)
		}

		f(`</div>`)
	}
	f(`</div>`)

	return nil
}

// RenderLibraryPage writes a complete HTML page for the library.
func RenderLibraryPage(lib *behavior.Library, title string, out io.Writer, cssFiles []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/behaviors.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, html.EscapeString(title))

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, html.EscapeString(title))

	if err := RenderLibraryHTML(lib, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderLibraryPage loads a behavior file and renders it.
func ReadAndRenderLibraryPage(filename string, cssFiles []string, out io.Writer) error {
	lib, err := behavior.LoadFile(filename)
	if err != nil {
		return err
	}
	return RenderLibraryPage(lib, filename, out, cssFiles)
}
