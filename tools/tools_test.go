package tools

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/goal"
	"github.com/Comcast/keyframer/util/testutil"
)

var library = `{
  "look": {
    "doc": "Look *somewhere*.",
    "dofs": ["eye", "lid"],
    "parameters": ["amt"],
    "keyframes": [
      {"pose": ["amt*2", 0.5], "time": "amt", "ending_action": null},
      {"pose": [1, "amt"], "time": 1, "ending_action": "hold"}
    ]
  },
  "wink": {
    "dofs": ["lid"],
    "keyframes": [
      {"pose": [0, 1], "time": 0.1, "ending_action": null}
    ]
  }
}`

func load(t *testing.T) *behavior.Library {
	lib, err := behavior.Parse([]byte(library), "json")
	if err != nil {
		t.Fatal(err)
	}
	return lib
}

func TestRenderLibraryHTML(t *testing.T) {
	out := bytes.NewBuffer(make([]byte, 0, 1024*16))
	if err := RenderLibraryPage(load(t), "face", out, []string{"behaviors.css"}); err != nil {
		t.Fatal(err)
	}
	page := out.String()
	for _, want := range []string{
		`<title>face</title>`,
		`href="behaviors.css"`,
		`<div class="behavior" id="look">`,
		`<em>somewhere</em>`,
		`<code class="parameter">amt</code>`,
		`<code>&#34;amt*2&#34;</code>`,
		`<li class="problem">`,
	} {
		if !strings.Contains(page, want) {
			t.Fatalf("missing %s in\n%s", want, page)
		}
	}
}

func TestReadAndRenderLibraryPage(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "face.json")
	if err := os.WriteFile(filename, []byte(library), 0644); err != nil {
		t.Fatal(err)
	}
	out := bytes.NewBuffer(make([]byte, 0, 1024*16))
	if err := ReadAndRenderLibraryPage(filename, nil, out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "/static/behaviors.css") {
		t.Fatal(out.String())
	}
}

func TestLibraryYAML(t *testing.T) {
	lib := load(t)
	src, err := LibraryYAML(lib)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(src), "look:\n") {
		t.Fatalf("got\n%s", src)
	}

	again, err := behavior.Parse(src, "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if bus.JS(again.Names()) != bus.JS(lib.Names()) {
		t.Fatalf("got %s", bus.JS(again.Names()))
	}
	look := again.Behaviors["look"]
	if !look.Complete() || look.Doc != "Look *somewhere*." {
		t.Fatalf("got %s", bus.JS(look))
	}
	if bus.JS(look.Keyframes) != bus.JS(lib.Behaviors["look"].Keyframes) {
		t.Fatalf("got %s", bus.JS(look.Keyframes))
	}
	if again.Behaviors["wink"].Complete() {
		t.Fatal("wink was fixed")
	}
}

func TestPlay(t *testing.T) {
	ctx := context.Background()
	lib := load(t)

	g, ms := Play(ctx, lib, &bus.GoalRequest{Behavior: "look", Args: []float64{0.25}}, []string{"eye"})
	if g.State() != goal.Succeeded {
		t.Fatalf("%s: %v", g.State(), g.Err())
	}
	if len(ms) != 3 || ms[0].Kind != bus.KeyframesKind {
		t.Fatalf("got %s", bus.JS(ms))
	}
	k := ms[0].Payload.(*bus.Keyframes)
	testutil.SameJSON(t, k.Command, `{
	  "dofs": ["eye"],
	  "times": [0.25, 1],
	  "frames": [{"positions": [0.5]}, {"positions": [1]}]
	}`)

	g, ms = Play(ctx, lib, &bus.GoalRequest{Behavior: "look"}, nil)
	if g.State() != goal.Rejected || len(ms) != 1 {
		t.Fatalf("%s %s", g.State(), bus.JS(ms))
	}
}
