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

// These errors describe problems with behavior data, not internal
// errors.  Load reports them and keeps going.

import (
	"strconv"
)

// NoKeyframe is used for Keyframe fields of errors that are about the
// behavior itself rather than one of its keyframes.
const NoKeyframe = -1

func where(behavior string, keyframe int) string {
	if keyframe == NoKeyframe {
		return `behavior "` + behavior + `"`
	}
	return `keyframe ` + strconv.Itoa(keyframe) + ` of behavior "` + behavior + `"`
}

// MissingField occurs when a required entry ("dofs", "keyframes",
// "pose", "time", or "ending_action") is absent.
type MissingField struct {
	Field    string
	Behavior string
	Keyframe int
}

func (e *MissingField) Error() string {
	return `missing entry "` + e.Field + `" in ` + where(e.Behavior, e.Keyframe)
}

// LengthMismatch occurs when a keyframe's pose doesn't have one value
// for each of the behavior's dofs.
type LengthMismatch struct {
	Behavior string
	Keyframe int
	Dofs     int
	Pose     int
}

func (e *LengthMismatch) Error() string {
	return `unmatched length of "dofs" (` + strconv.Itoa(e.Dofs) + `) and "pose" (` +
		strconv.Itoa(e.Pose) + `) in ` + where(e.Behavior, e.Keyframe)
}

// BadField occurs when an entry is present but has the wrong shape
// (for example, "dofs" that isn't a list of strings).
type BadField struct {
	Field    string
	Behavior string
	Keyframe int
	Want     string
}

func (e *BadField) Error() string {
	field := e.Field
	if field == "" {
		field = "<behavior>"
	}
	return `entry "` + field + `" in ` + where(e.Behavior, e.Keyframe) + ` is not ` + e.Want
}

// NotFound occurs when a lookup names a behavior that isn't in the
// library.
type NotFound struct {
	Name string
}

func (e *NotFound) Error() string {
	return `behavior "` + e.Name + `" not found`
}

// Incomplete occurs when a behavior that had load problems is asked
// to execute.
type Incomplete struct {
	Name     string
	Problems []error
}

func (e *Incomplete) Error() string {
	msg := `behavior "` + e.Name + `" is incomplete`
	if 0 < len(e.Problems) {
		msg += ": " + e.Problems[0].Error()
		if 1 < len(e.Problems) {
			msg += " (and " + strconv.Itoa(len(e.Problems)-1) + " more)"
		}
	}
	return msg
}
