/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package behavior

import (
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Comcast/keyframer/params"

	"github.com/jsccast/yaml"
)

// NotAMapping is returned by Parse when the document isn't a mapping
// from behavior names to behaviors.  Nothing can be loaded from such a
// document.
var NotAMapping = errors.New("behavior library is not a mapping")

// SyntaxFor guesses the syntax ("json" or "yaml") of a library file
// from its name.
func SyntaxFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// LoadFile reads and parses the library in the given file.
//
// Every reported problem is logged as a warning.
func LoadFile(filename string) (*Library, error) {
	log.Printf("Loading behaviors from %s", filename)
	src, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lib, err := Parse(src, SyntaxFor(filename))
	if err != nil {
		return nil, err
	}
	for _, problem := range lib.Problems {
		log.Printf("warning: %s", problem)
	}
	log.Printf("Loaded %d behaviors (%d problems)", len(lib.Behaviors), len(lib.Problems))
	return lib, nil
}

// Load reads all of r and parses it with the given syntax.
func Load(r io.Reader, syntax string) (*Library, error) {
	src, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(src, syntax)
}

// Parse builds a Library from the given source.
//
// Syntax is "json" (or "") or "yaml".
//
// The returned error is only for problems that prevent loading
// anything at all.  Problems with individual behaviors don't stop
// loading; they are gathered in Library.Problems and each
// Def.Problems.
func Parse(src []byte, syntax string) (*Library, error) {
	var x interface{}
	switch syntax {
	case "json", "":
		if err := json.Unmarshal(src, &x); err != nil {
			return nil, err
		}
	case "yaml":
		if err := yaml.Unmarshal(src, &x); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported behavior syntax: " + syntax)
	}

	m, is := x.(map[string]interface{})
	if !is {
		return nil, NotAMapping
	}

	// Sorted so that problems are reported in a stable order.
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	lib := NewLibrary()
	for _, name := range names {
		lib.Add(Build(name, m[name]))
	}
	return lib, nil
}

// Build makes a Def from a generic (JSON-like) representation and
// validates it.
//
// Build always returns a Def.  Def.Problems reports what was wrong.
func Build(name string, x interface{}) *Def {
	d := &Def{
		Name: name,
	}

	m, is := x.(map[string]interface{})
	if !is {
		d.report(&BadField{"", name, NoKeyframe, "an object"})
		return d
	}

	if s, is := m["doc"].(string); is {
		d.Doc = s
	}

	if y, have := m["dofs"]; !have {
		d.report(&MissingField{"dofs", name, NoKeyframe})
	} else if dofs, ok := stringList(y); !ok {
		d.report(&BadField{"dofs", name, NoKeyframe, "a list of strings"})
	} else {
		d.Dofs = dofs
	}

	if y, have := m["parameters"]; have && y != nil {
		if ps, ok := stringList(y); !ok {
			d.report(&BadField{"parameters", name, NoKeyframe, "a list of strings"})
		} else {
			for _, p := range ps {
				if !params.Usable(p) {
					d.report(&BadField{"parameters", name, NoKeyframe, "a list of usable names (not " + strconv.Quote(p) + ")"})
				}
			}
			d.Parameters = ps
		}
	}

	y, have := m["keyframes"]
	if !have {
		d.report(&MissingField{"keyframes", name, NoKeyframe})
		return d
	}
	kfs, is := y.([]interface{})
	if !is {
		d.report(&BadField{"keyframes", name, NoKeyframe, "a list"})
		return d
	}

	d.Keyframes = make([]*Keyframe, 0, len(kfs))
	for i, z := range kfs {
		d.Keyframes = append(d.Keyframes, d.buildKeyframe(i, z))
	}

	return d
}

func (d *Def) buildKeyframe(i int, x interface{}) *Keyframe {
	k := &Keyframe{}

	m, is := x.(map[string]interface{})
	if !is {
		d.report(&BadField{"keyframes", d.Name, i, "an object"})
		return k
	}

	if y, have := m["pose"]; !have {
		d.report(&MissingField{"pose", d.Name, i})
	} else if pose, is := y.([]interface{}); !is {
		d.report(&BadField{"pose", d.Name, i, "a list"})
	} else {
		k.Pose = make([]interface{}, len(pose))
		for j, v := range pose {
			k.Pose[j] = normalize(v)
		}
	}

	if y, have := m["time"]; !have {
		d.report(&MissingField{"time", d.Name, i})
	} else {
		k.Time = normalize(y)
	}

	if y, have := m["ending_action"]; !have {
		d.report(&MissingField{"ending_action", d.Name, i})
	} else {
		k.EndingAction = y
	}

	if k.Pose != nil && d.Dofs != nil && len(k.Pose) != len(d.Dofs) {
		d.report(&LengthMismatch{d.Name, i, len(d.Dofs), len(k.Pose)})
	}

	return k
}

// stringList converts a generic list of strings.
func stringList(x interface{}) ([]string, bool) {
	xs, is := x.([]interface{})
	if !is {
		return nil, false
	}
	acc := make([]string, len(xs))
	for i, y := range xs {
		s, is := y.(string)
		if !is {
			return nil, false
		}
		acc[i] = s
	}
	return acc, true
}

// normalize makes integers (which the YAML parser likes to produce)
// into float64s.  Everything else is returned as is.
func normalize(x interface{}) interface{} {
	switch vv := x.(type) {
	case int:
		return float64(vv)
	case int64:
		return float64(vv)
	case uint64:
		return float64(vv)
	default:
		return x
	}
}
