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

// Package behavior holds the library of keyframe behaviors that a
// face can play.
//
// A behavior is a named sequence of keyframes over a fixed list of
// degrees of freedom (dofs).  Keyframe poses and times can be plain
// numbers or arithmetic expressions over the behavior's declared
// parameters.  See package params for those expressions.
//
// A Library is loaded once and then only read.  Loading is
// permissive: a malformed behavior is reported (see Library.Problems)
// and kept, but it's marked so that it can't execute.
package behavior

import (
	"sort"
)

// Keyframe is one timed pose target.
type Keyframe struct {
	// Pose has one value per dof of the containing behavior.  Each
	// value is either a float64 or an expression string.
	//
	// A nil Pose means the keyframe didn't have one.
	Pose []interface{} `json:"pose" yaml:"pose"`

	// Time is either a float64 or an expression string.  Times
	// are not checked to be non-decreasing.
	Time interface{} `json:"time" yaml:"time"`

	// EndingAction is opaque metadata passed along unevaluated.
	EndingAction interface{} `json:"ending_action" yaml:"ending_action"`
}

// Def is the definition of a behavior.
type Def struct {
	// Name is the behavior's key in its library.
	Name string `json:"-" yaml:"-"`

	// Doc is optional documentation (in Markdown).
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Dofs names the degrees of freedom that each pose addresses.
	Dofs []string `json:"dofs" yaml:"dofs"`

	// Parameters are the names that goal arguments bind, in
	// order.
	Parameters []string `json:"parameters,omitempty" yaml:",omitempty"`

	Keyframes []*Keyframe `json:"keyframes" yaml:"keyframes"`

	// Problems are the validation reports generated when this
	// behavior was loaded.
	Problems []error `json:"-" yaml:"-"`
}

// Complete reports whether this behavior loaded without problems.
//
// Only complete behaviors should be executed.
func (d *Def) Complete() bool {
	return d != nil && len(d.Problems) == 0
}

// Check returns an Incomplete error if the behavior isn't Complete.
func (d *Def) Check() error {
	if d.Complete() {
		return nil
	}
	return &Incomplete{
		Name:     d.Name,
		Problems: d.Problems,
	}
}

func (d *Def) report(err error) {
	d.Problems = append(d.Problems, err)
}

// Library is a set of behaviors keyed by name.
//
// A Library shouldn't be modified after it's loaded.  Concurrent
// reads are fine.
type Library struct {
	Behaviors map[string]*Def

	// Problems gathers the problems reported for all behaviors.
	Problems []error
}

// NewLibrary makes an empty Library.
func NewLibrary() *Library {
	return &Library{
		Behaviors: make(map[string]*Def, 32),
	}
}

// Add puts the given behavior in the library (replacing any behavior
// with the same name) and gathers its problems.
//
// Use during loading only.
func (l *Library) Add(d *Def) {
	l.Behaviors[d.Name] = d
	l.Problems = append(l.Problems, d.Problems...)
}

// Lookup finds the named behavior.
//
// The returned behavior might not be Complete.
func (l *Library) Lookup(name string) (*Def, error) {
	if l != nil {
		if d, have := l.Behaviors[name]; have {
			return d, nil
		}
	}
	return nil, &NotFound{name}
}

// Names returns the sorted names of all behaviors.
func (l *Library) Names() []string {
	if l == nil {
		return nil
	}
	acc := make([]string, 0, len(l.Behaviors))
	for name := range l.Behaviors {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}
