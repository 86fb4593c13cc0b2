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

// Package sequencer turns a behavior and its arguments into the
// keyframes that a face actually plays.
//
// The work happens in two steps.  Evaluate substitutes arguments into
// every pose and time.  Build then keeps only the dofs that the
// consumer wants and clamps every position into [0,1].  Neither step
// does any IO.
package sequencer

import (
	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/params"
)

// Evaluated is a keyframe with all expressions computed.
type Evaluated struct {
	Pose         []float64
	Time         float64
	EndingAction interface{}
}

// Frame is a resolved keyframe: positions for the requested dofs
// only, each in [0,1].
type Frame struct {
	Positions []float64 `json:"positions"`
	Time      float64   `json:"time"`
}

// Evaluate computes every pose and time of the behavior with the
// given bindings.
//
// Keyframes with missing poses or times, or poses of the wrong
// length, result in errors rather than panics.  Evaluation errors are
// wrapped in a FrameError.
func Evaluate(d *behavior.Def, bs params.Bindings) ([]*Evaluated, error) {
	acc := make([]*Evaluated, 0, len(d.Keyframes))
	for i, k := range d.Keyframes {
		if k == nil || k.Pose == nil {
			return nil, &behavior.MissingField{Field: "pose", Behavior: d.Name, Keyframe: i}
		}
		if len(k.Pose) != len(d.Dofs) {
			return nil, &behavior.LengthMismatch{
				Behavior: d.Name,
				Keyframe: i,
				Dofs:     len(d.Dofs),
				Pose:     len(k.Pose),
			}
		}
		if k.Time == nil {
			return nil, &behavior.MissingField{Field: "time", Behavior: d.Name, Keyframe: i}
		}

		pose, err := params.EvaluateAll(k.Pose, bs)
		if err != nil {
			return nil, &FrameError{i, "pose", err}
		}
		t, err := params.Evaluate(k.Time, bs)
		if err != nil {
			return nil, &FrameError{i, "time", err}
		}

		acc = append(acc, &Evaluated{
			Pose:         pose,
			Time:         t,
			EndingAction: k.EndingAction,
		})
	}
	return acc, nil
}

// Project finds the indexes (in the behavior's dof order) of the
// behavior's dofs that are also requested.
//
// No requested dofs means all of the behavior's dofs.
func Project(d *behavior.Def, requested []string) ([]int, []string) {
	var want map[string]bool
	if 0 < len(requested) {
		want = make(map[string]bool, len(requested))
		for _, dof := range requested {
			want[dof] = true
		}
	}

	indexes := make([]int, 0, len(d.Dofs))
	names := make([]string, 0, len(d.Dofs))
	for i, dof := range d.Dofs {
		if want == nil || want[dof] {
			indexes = append(indexes, i)
			names = append(names, dof)
		}
	}
	return indexes, names
}

// Build projects each evaluated keyframe onto the requested dofs and
// clamps the results.
//
// Every clamped value is reported.  Clamping is never an error.  The
// output has one Frame per keyframe in the behavior's order; nothing
// is sorted or merged by time.
func Build(d *behavior.Def, evaluated []*Evaluated, requested []string) ([]*Frame, []*Clamp) {
	var (
		indexes, _ = Project(d, requested)
		frames     = make([]*Frame, 0, len(evaluated))
		clamps     []*Clamp
	)

	for i, e := range evaluated {
		f := &Frame{
			Positions: make([]float64, 0, len(indexes)),
			Time:      e.Time,
		}
		for _, j := range indexes {
			v := e.Pose[j]
			if to, clamped := clamp(v); clamped {
				clamps = append(clamps, &Clamp{
					Behavior: d.Name,
					Frame:    i,
					Dof:      d.Dofs[j],
					Value:    v,
					To:       to,
				})
				v = to
			}
			f.Positions = append(f.Positions, v)
		}
		frames = append(frames, f)
	}

	return frames, clamps
}

func clamp(v float64) (float64, bool) {
	switch {
	case v < 0:
		return 0, true
	case 1 < v:
		return 1, true
	default:
		return v, false
	}
}

// Sequence is everything that Run produces.
type Sequence struct {
	Dofs   []string
	Frames []*Frame
	Clamps []*Clamp
}

// Command makes the keyframe command for this sequence.
func (s *Sequence) Command() *Command {
	return NewCommand(s.Dofs, s.Frames)
}

// Run binds the arguments to the behavior's parameters, evaluates the
// keyframes, and builds the frames for the requested dofs.
func Run(d *behavior.Def, args []float64, requested []string) (*Sequence, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	bs, err := params.Bind(d.Parameters, args)
	if err != nil {
		return nil, err
	}
	evaluated, err := Evaluate(d, bs)
	if err != nil {
		return nil, err
	}
	frames, clamps := Build(d, evaluated, requested)
	_, dofs := Project(d, requested)
	return &Sequence{
		Dofs:   dofs,
		Frames: frames,
		Clamps: clamps,
	}, nil
}
