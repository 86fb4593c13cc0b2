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
	"context"
	"errors"
	"log"
	"sync"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/history"
	"github.com/Comcast/keyframer/sequencer"
)

// Interrupted is the reason given for a goal that was preempted by a
// request (rather than by its context).
var Interrupted = errors.New("goal preempted")

// NotActive occurs when a cancel request names a goal that isn't
// running.
type NotActive struct {
	Id string
}

func (e *NotActive) Error() string {
	if e.Id == "" {
		return "no active goal"
	}
	return "goal " + e.Id + " is not active"
}

// Server runs goals one at a time.
//
// Dispatch hands goals to a single worker (Loop).  A newer goal
// preempts the active one, and the newer goal doesn't start until the
// older one has finished.
type Server struct {
	// Library is read but never modified.
	Library *behavior.Library

	// Publisher receives keyframe commands, feedback, and results.
	Publisher bus.Publisher

	// Dofs are the dofs this face accepts.  Empty means all of a
	// behavior's dofs.
	Dofs []string

	// History records finished goals.
	History history.Store

	// Verbose turns on logging.
	Verbose bool

	// beforePublish, if not nil, is called just before the final
	// checkpoint.
	beforePublish func(*Goal)

	goals chan *Goal

	// dispatching serializes Dispatch calls.
	dispatching sync.Mutex

	// Mutex protects active.
	sync.Mutex
	active *Goal
}

// NewServer makes a Server that doesn't record history.
func NewServer(lib *behavior.Library, pub bus.Publisher) *Server {
	return &Server{
		Library:   lib,
		Publisher: pub,
		History:   &history.Noop{},
		goals:     make(chan *Goal),
	}
}

// Logf logs if s.Verbose.
func (s *Server) Logf(format string, args ...interface{}) {
	if !s.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Active returns the goal that's running (or about to run), if any.
func (s *Server) Active() *Goal {
	s.Lock()
	defer s.Unlock()
	return s.active
}

func (s *Server) setActive(g *Goal) {
	s.Lock()
	s.active = g
	s.Unlock()
}

// clearActive forgets g if it's the active goal.
func (s *Server) clearActive(g *Goal) {
	s.Lock()
	if s.active == g {
		s.active = nil
	}
	s.Unlock()
}

// Loop runs goals handed over by Dispatch until the context is done.
func (s *Server) Loop(ctx context.Context) error {
	s.Logf("Server.Loop")
	for {
		select {
		case <-ctx.Done():
			s.Logf("Server.Loop done")
			return ctx.Err()
		case g := <-s.goals:
			s.Execute(ctx, g)
		}
	}
}

// Dispatch makes a goal for the request and hands it to Loop.
//
// If a goal is active, Dispatch preempts it and waits until it has
// finished.  The returned goal might not have started yet.
func (s *Server) Dispatch(ctx context.Context, req *bus.GoalRequest) (*Goal, error) {
	s.dispatching.Lock()
	defer s.dispatching.Unlock()

	g := NewGoal(req)
	s.Logf("Dispatch %s %s", g.Id, bus.JS(req))

	if a := s.Active(); a != nil {
		s.Logf("Dispatch %s preempting %s", g.Id, a.Id)
		a.Preempt()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.Done():
		}
	}

	s.setActive(g)

	select {
	case <-ctx.Done():
		s.clearActive(g)
		return nil, ctx.Err()
	case s.goals <- g:
	}

	return g, nil
}

// Preempt asks the active goal to stop.
//
// An empty id means whatever goal is active.
func (s *Server) Preempt(id string) error {
	g := s.Active()
	if g == nil || (id != "" && g.Id != id) {
		return &NotActive{id}
	}
	s.Logf("Preempt %s", g.Id)
	g.Preempt()
	return nil
}

// interrupted reports whether the goal should stop at this
// checkpoint.
func (s *Server) interrupted(ctx context.Context, g *Goal, commit bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if g.checkpoint(commit) {
		return true, Interrupted
	}
	return false, nil
}

// Execute runs a Pending goal to completion.
//
// Most callers should use Dispatch instead.  Execute always leaves the
// goal in a terminal state with its Done channel closed.
func (s *Server) Execute(ctx context.Context, g *Goal) {
	s.setActive(g)

	if err := g.transition(Active); err != nil {
		log.Printf("warning: %s", err)
		s.clearActive(g)
		return
	}
	s.Logf("Execute %s (%s)", g.Id, g.Behavior)

	if stop, err := s.interrupted(ctx, g, false); stop {
		s.finish(ctx, g, Preempted, err)
		return
	}

	d, err := s.Library.Lookup(g.Behavior)
	if err != nil {
		s.finish(ctx, g, Rejected, err)
		return
	}

	seq, err := sequencer.Run(d, g.Args, s.Dofs)
	if err != nil {
		s.finish(ctx, g, Rejected, err)
		return
	}

	g.Clamps = seq.Clamps
	for _, c := range seq.Clamps {
		log.Printf("warning: %s", c)
	}

	if s.beforePublish != nil {
		s.beforePublish(g)
	}

	if stop, err := s.interrupted(ctx, g, true); stop {
		s.finish(ctx, g, Preempted, err)
		return
	}

	// A behavior that moves none of this face's dofs plays nothing,
	// but it still succeeds.
	if len(seq.Dofs) == 0 {
		log.Printf("warning: goal %s (%s) moves none of the face's dofs", g.Id, g.Behavior)
		s.finish(ctx, g, Succeeded, nil)
		return
	}

	cmd := seq.Command()
	m := &bus.Message{
		Kind: bus.KeyframesKind,
		Payload: &bus.Keyframes{
			Goal:    g.Id,
			Command: cmd,
		},
	}
	if err := s.Publisher.Publish(ctx, m); err != nil {
		s.finish(ctx, g, Rejected, err)
		return
	}
	g.Command = cmd

	s.finish(ctx, g, Succeeded, nil)
}

func (s *Server) publish(ctx context.Context, g *Goal, kind bus.Kind, payload interface{}) {
	m := &bus.Message{
		Kind:    kind,
		Payload: payload,
	}
	if err := s.Publisher.Publish(ctx, m); err != nil {
		log.Printf("warning: goal %s %s not published: %s", g.Id, kind, err)
	}
}

// finish moves the goal to a terminal state, publishes its feedback
// and result, and records it.
func (s *Server) finish(ctx context.Context, g *Goal, to State, reason error) {
	if err := g.finish(to, reason); err != nil {
		log.Printf("warning: %s", err)
	}
	if reason != nil {
		log.Printf("goal %s (%s) %s: %s", g.Id, g.Behavior, to, reason)
	} else {
		s.Logf("goal %s (%s) %s", g.Id, g.Behavior, to)
	}

	s.clearActive(g)

	s.publish(ctx, g, bus.FeedbackKind, &bus.Feedback{
		Goal:   g.Id,
		Status: bus.Playing,
	})
	if to == Succeeded {
		s.publish(ctx, g, bus.ResultKind, &bus.Result{
			Goal:   g.Id,
			Result: bus.Done,
		})
	}

	if s.History != nil {
		if err := s.History.Write(context.Background(), g.Record()); err != nil {
			log.Printf("warning: goal %s history: %s", g.Id, err)
		}
	}

	close(g.done)
}

// Record makes a history record for the goal.
func (g *Goal) Record() *history.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := &history.Record{
		Id:       g.Id,
		Behavior: g.Behavior,
		Args:     g.Args,
		State:    g.state.String(),
		Clamps:   len(g.Clamps),
		Received: g.Received,
		Finished: g.Finished,
	}
	if g.err != nil {
		r.Error = g.err.Error()
	}
	if g.Command != nil {
		r.Frames = len(g.Command.Frames)
	}
	return r
}
