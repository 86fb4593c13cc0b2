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

// Package schedule plays behaviors on a cron schedule when the face
// is otherwise idle.
//
// A typical use is an occasional blink.  Cron expressions are parsed
// by github.com/gorhill/cronexpr, so a leading seconds field and a
// trailing year field are optional.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Comcast/keyframer/bus"

	"github.com/gorhill/cronexpr"
)

// Entry is a behavior to request on a schedule.
type Entry struct {
	// Id defaults to the behavior name.
	Id       string    `json:"id,omitempty" toml:"id"`
	Cron     string    `json:"cron" toml:"cron"`
	Behavior string    `json:"behavior" toml:"behavior"`
	Args     []float64 `json:"args,omitempty" toml:"args"`

	// mu guards expr, whose Next isn't safe for concurrent use.
	mu   sync.Mutex
	expr *cronexpr.Expression
	ctl  chan bool
}

// Request makes the goal request for this entry.
func (e *Entry) Request() *bus.GoalRequest {
	return &bus.GoalRequest{
		Behavior: e.Behavior,
		Args:     e.Args,
	}
}

// Next returns the time the entry next fires after t.
//
// The zero time means never, which is also the answer for an entry
// that hasn't been added to a Schedule.
func (e *Entry) Next(t time.Time) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.expr == nil {
		return time.Time{}
	}
	return e.expr.Next(t)
}

// Schedule holds the entries that are running.
type Schedule struct {
	Entries map[string]*Entry

	// Idle reports whether the face is idle.  When it isn't, an
	// entry that fires is skipped.
	Idle func() bool

	// Emitter requests the entry's behavior.
	Emitter func(context.Context, *Entry)

	// Verbose turns on logging.
	Verbose bool

	sync.Mutex
}

// NewSchedule makes an empty Schedule.
func NewSchedule(idle func() bool, emitter func(context.Context, *Entry)) *Schedule {
	return &Schedule{
		Entries: make(map[string]*Entry, 8),
		Idle:    idle,
		Emitter: emitter,
	}
}

// Logf logs if s.Verbose.
func (s *Schedule) Logf(format string, args ...interface{}) {
	if !s.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Add parses the entry's cron expression and starts the entry.
//
// An existing entry with the same id is replaced.
func (s *Schedule) Add(ctx context.Context, e *Entry) error {
	expr, err := cronexpr.Parse(e.Cron)
	if err != nil {
		return fmt.Errorf("schedule entry for %q: %w", e.Behavior, err)
	}
	if e.Behavior == "" {
		return fmt.Errorf("schedule entry %q has no behavior", e.Id)
	}
	if e.Id == "" {
		e.Id = e.Behavior
	}
	e.mu.Lock()
	e.expr = expr
	e.mu.Unlock()
	e.ctl = make(chan bool)

	s.Lock()
	if old, have := s.Entries[e.Id]; have {
		close(old.ctl)
	}
	s.Entries[e.Id] = e
	s.Unlock()

	s.Logf("Schedule.Add %s %q", e.Id, e.Cron)

	go s.run(ctx, e)

	return nil
}

// Cancel stops the entry with the given id.
func (s *Schedule) Cancel(id string) error {
	s.Lock()
	defer s.Unlock()
	e, have := s.Entries[id]
	if !have {
		return fmt.Errorf("schedule entry '%s' doesn't exist", id)
	}
	delete(s.Entries, id)
	close(e.ctl)
	return nil
}

func (s *Schedule) run(ctx context.Context, e *Entry) {
	for {
		next := e.Next(time.Now())
		if next.IsZero() {
			s.Logf("Schedule entry %s is finished", e.Id)
			return
		}
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-e.ctl:
			t.Stop()
			s.Logf("Canceling schedule entry '%s'", e.Id)
			return
		case <-t.C:
		}
		if s.Idle != nil && !s.Idle() {
			s.Logf("Skipping schedule entry '%s' (not idle)", e.Id)
			continue
		}
		s.Logf("Firing schedule entry '%s'", e.Id)
		s.Emitter(ctx, e)
	}
}
