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

package goal

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/sequencer"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Goal.
type State int

const (
	Pending    State = iota // Received but not yet running.
	Active                  // Running.
	Preempting              // Running with a preemption request pending.
	Succeeded               // Keyframes handed to the bus.
	Preempted               // Stopped by a preemption request.
	Rejected                // Couldn't run.
)

var stateNames = []string{
	"Pending",
	"Active",
	"Preempting",
	"Succeeded",
	"Preempted",
	"Rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Succeeded || s == Preempted || s == Rejected
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(js []byte) error {
	var name string
	if err := json.Unmarshal(js, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return errors.New("unknown goal state: " + name)
}

// transitions lists the allowed transitions.
var transitions = map[State][]State{
	Pending:    {Active},
	Active:     {Preempting, Succeeded, Preempted, Rejected},
	Preempting: {Preempted, Rejected},
}

// CanTransition reports whether a goal can move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BadTransition occurs when something attempts a transition that
// isn't allowed.  It's an internal error.
type BadTransition struct {
	Goal     string
	From, To State
}

func (e *BadTransition) Error() string {
	return "goal " + e.Goal + " can't go from " + e.From.String() + " to " + e.To.String()
}

// Goal is one request to play a behavior.
//
// A Goal is owned by the Server that runs it.  Other goroutines
// should only call State, Done, Err, and Preempt.
type Goal struct {
	Id       string
	Behavior string
	Args     []float64

	Received time.Time
	Finished time.Time

	// Command is the keyframe command that was published (if
	// any).
	Command *sequencer.Command

	// Clamps are the clamping warnings generated while building
	// frames.
	Clamps []*sequencer.Clamp

	mu        sync.Mutex
	state     State
	err       error
	preempt   chan bool
	preempted sync.Once
	committed bool
	done      chan bool
}

// NewGoal makes a Pending goal from a request.
//
// If the request doesn't have an id, the goal gets a fresh one.
func NewGoal(req *bus.GoalRequest) *Goal {
	id := req.Id
	if id == "" {
		id = uuid.New().String()
	}
	return &Goal{
		Id:       id,
		Behavior: req.Behavior,
		Args:     req.Args,
		Received: time.Now().UTC(),
		state:    Pending,
		preempt:  make(chan bool),
		done:     make(chan bool),
	}
}

// State returns the goal's current state.
func (g *Goal) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Err returns the reason the goal was Rejected or Preempted (if any).
func (g *Goal) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Done is closed when the goal reaches a terminal state and its
// messages have been published.
func (g *Goal) Done() <-chan bool {
	return g.done
}

// Preempt requests preemption.
//
// The request is observed at the Server's next checkpoint.  A goal
// that has already handed its keyframes to the bus (or finished)
// ignores the request.
func (g *Goal) Preempt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.committed || g.state.Terminal() {
		return
	}
	g.preempted.Do(func() {
		close(g.preempt)
	})
	if g.state == Active {
		g.state = Preempting
	}
}

// checkpoint reports whether preemption has been requested.
//
// When commit is true and there's no request, the goal can no longer
// be preempted.
func (g *Goal) checkpoint(commit bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.preempt:
		return true
	default:
	}
	if commit {
		g.committed = true
	}
	return false
}

func (g *Goal) transition(to State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !CanTransition(g.state, to) {
		return &BadTransition{g.Id, g.state, to}
	}
	g.state = to
	return nil
}

// finish moves the goal to a terminal state with the given reason.
func (g *Goal) finish(to State, err error) error {
	if terr := g.transition(to); terr != nil {
		return terr
	}
	g.mu.Lock()
	g.err = err
	g.Finished = time.Now().UTC()
	g.mu.Unlock()
	return nil
}
