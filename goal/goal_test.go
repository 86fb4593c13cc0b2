package goal

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/history"
	"github.com/Comcast/keyframer/history/bolt"
	"github.com/Comcast/keyframer/params"
	. "github.com/Comcast/keyframer/util/testutil"
)

var testLibrary = `{
  "look": {
    "doc": "Move the eye.",
    "dofs": ["eye", "lid"],
    "parameters": ["amt"],
    "keyframes": [
      {"pose": ["amt*2", 0.5], "time": "amt", "ending_action": null},
      {"pose": [1.5, "amt"], "time": 1, "ending_action": "hold"}
    ]
  },
  "blink": {
    "dofs": ["lid"],
    "keyframes": [
      {"pose": [0], "time": 0.1, "ending_action": null},
      {"pose": [1], "time": 0.2, "ending_action": null}
    ]
  },
  "broken": {
    "keyframes": []
  },
  "sneaky": {
    "dofs": ["eye"],
    "keyframes": [
      {"pose": ["__import__('os')"], "time": 1, "ending_action": null}
    ]
  }
}`

func near(x, y float64) bool {
	return math.Abs(x-y) < 1e-9
}

func newTestServer(t *testing.T) (*Server, *bus.Recorder) {
	lib, err := behavior.Parse([]byte(testLibrary), "json")
	if err != nil {
		t.Fatal(err)
	}
	r := &bus.Recorder{}
	return NewServer(lib, r), r
}

// run dispatches a request and waits for the goal to finish.
func run(t *testing.T, ctx context.Context, s *Server, req *bus.GoalRequest) *Goal {
	g, err := s.Dispatch(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctx.Done():
		t.Fatal("timeout")
	case <-g.Done():
	}
	return g
}

func withLoop(t *testing.T, s *Server) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go s.Loop(ctx)
	return ctx, cancel
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Pending, Active, true},
		{Active, Preempting, true},
		{Active, Succeeded, true},
		{Active, Preempted, true},
		{Active, Rejected, true},
		{Preempting, Preempted, true},
		{Preempting, Rejected, true},
		{Pending, Succeeded, false},
		{Preempting, Succeeded, false},
		{Succeeded, Active, false},
		{Rejected, Preempted, false},
	}
	for _, tc := range tests {
		t.Run(tc.from.String()+"-"+tc.to.String(), func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.ok {
				t.Fatalf("got %v", got)
			}
		})
	}
}

func TestBadTransition(t *testing.T) {
	g := NewGoal(&bus.GoalRequest{Behavior: "look"})
	err := g.finish(Succeeded, nil)
	var bad *BadTransition
	if !errors.As(err, &bad) {
		t.Fatalf("got %#v", err)
	}
	if g.State() != Pending {
		t.Fatal(g.State())
	}
}

func TestStateJSON(t *testing.T) {
	if got := JS(Preempting); got != `"Preempting"` {
		t.Fatal(got)
	}
	var s State
	if err := s.UnmarshalJSON([]byte(`"Rejected"`)); err != nil {
		t.Fatal(err)
	}
	if s != Rejected {
		t.Fatal(s)
	}
	if err := s.UnmarshalJSON([]byte(`"Sleeping"`)); err == nil {
		t.Fatal("expected an error")
	}
}

func TestGoalIds(t *testing.T) {
	a := NewGoal(&bus.GoalRequest{Behavior: "look"})
	b := NewGoal(&bus.GoalRequest{Behavior: "look"})
	if a.Id == "" || a.Id == b.Id {
		t.Fatalf("%q %q", a.Id, b.Id)
	}
	if c := NewGoal(&bus.GoalRequest{Id: "mine"}); c.Id != "mine" {
		t.Fatal(c.Id)
	}
}

func TestSucceeded(t *testing.T) {
	s, r := newTestServer(t)
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Id: "g1", Behavior: "look", Args: []float64{0.3}})

	if g.State() != Succeeded {
		t.Fatalf("%s: %v", g.State(), g.Err())
	}
	if got := JS(r.Kinds()); got != `["keyframes","feedback","result"]` {
		t.Fatal(got)
	}

	k := r.Of(bus.KeyframesKind)[0].Payload.(*bus.Keyframes)
	if k.Goal != "g1" {
		t.Fatal(k.Goal)
	}
	if JS(k.Dofs) != `["eye","lid"]` {
		t.Fatal(JS(k.Dofs))
	}
	if len(k.Frames) != 2 {
		t.Fatalf("got %s", JS(k))
	}
	first := k.Frames[0].Positions
	if !near(first[0], 0.6) || !near(first[1], 0.5) || !near(k.Times[0], 0.3) {
		t.Fatalf("got %s", JS(k))
	}
	second := k.Frames[1].Positions
	if second[0] != 1 || !near(second[1], 0.3) {
		t.Fatalf("got %s", JS(k))
	}

	if len(g.Clamps) != 1 || g.Clamps[0].Dof != "eye" {
		t.Fatalf("clamps %s", JS(g.Clamps))
	}

	if s.Active() != nil {
		t.Fatal("still active")
	}

	res := r.Of(bus.ResultKind)[0].Payload.(*bus.Result)
	if res.Goal != "g1" || res.Result != bus.Done {
		t.Fatal(JS(res))
	}
}

func TestRequestedDofs(t *testing.T) {
	s, r := newTestServer(t)
	s.Dofs = []string{"lid", "nose"}
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Behavior: "look", Args: []float64{0.3}})
	if g.State() != Succeeded {
		t.Fatalf("%s: %v", g.State(), g.Err())
	}
	k := r.Of(bus.KeyframesKind)[0].Payload.(*bus.Keyframes)
	if JS(k.Dofs) != `["lid"]` || len(k.Frames[0].Positions) != 1 {
		t.Fatalf("got %s", JS(k))
	}
	if len(g.Clamps) != 0 {
		t.Fatalf("clamps %s", JS(g.Clamps))
	}
}

func TestNoDofsToPlay(t *testing.T) {
	s, r := newTestServer(t)
	s.Dofs = []string{"nose"}
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Behavior: "look", Args: []float64{0.3}})
	if g.State() != Succeeded {
		t.Fatalf("%s: %v", g.State(), g.Err())
	}
	if got := JS(r.Kinds()); got != `["feedback","result"]` {
		t.Fatalf("got %s", got)
	}
	if g.Command != nil {
		t.Fatalf("got %s", JS(g.Command))
	}
}

func TestRejected(t *testing.T) {
	tests := []struct {
		description string
		req         *bus.GoalRequest
		check       func(error) bool
	}{
		{
			description: "unknown behavior",
			req:         &bus.GoalRequest{Behavior: "dance"},
			check: func(err error) bool {
				var e *behavior.NotFound
				return errors.As(err, &e)
			},
		},
		{
			description: "too few args",
			req:         &bus.GoalRequest{Behavior: "look"},
			check: func(err error) bool {
				var e *params.ArgumentCountMismatch
				return errors.As(err, &e) && e.Want == 1 && e.Got == 0
			},
		},
		{
			description: "too many args",
			req:         &bus.GoalRequest{Behavior: "blink", Args: []float64{1}},
			check: func(err error) bool {
				var e *params.ArgumentCountMismatch
				return errors.As(err, &e)
			},
		},
		{
			description: "incomplete behavior",
			req:         &bus.GoalRequest{Behavior: "broken"},
			check: func(err error) bool {
				var e *behavior.Incomplete
				return errors.As(err, &e)
			},
		},
		{
			description: "disallowed expression",
			req:         &bus.GoalRequest{Behavior: "sneaky"},
			check: func(err error) bool {
				var e *params.DisallowedExpression
				return errors.As(err, &e)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			s, r := newTestServer(t)
			ctx, cancel := withLoop(t, s)
			defer cancel()

			g := run(t, ctx, s, tc.req)
			if g.State() != Rejected {
				t.Fatal(g.State())
			}
			if !tc.check(g.Err()) {
				t.Fatalf("got %#v", g.Err())
			}
			if got := JS(r.Kinds()); got != `["feedback"]` {
				t.Fatal(got)
			}
		})
	}
}

func TestPreemptBeforeStart(t *testing.T) {
	s, r := newTestServer(t)
	ctx := context.Background()

	g := NewGoal(&bus.GoalRequest{Behavior: "blink"})
	g.Preempt()
	s.Execute(ctx, g)

	if g.State() != Preempted {
		t.Fatal(g.State())
	}
	if g.Err() != Interrupted {
		t.Fatal(g.Err())
	}
	if n := len(r.Of(bus.KeyframesKind)); n != 0 {
		t.Fatalf("%d keyframe commands", n)
	}
	if got := JS(r.Kinds()); got != `["feedback"]` {
		t.Fatal(got)
	}
}

func TestPreemptBeforePublish(t *testing.T) {
	s, r := newTestServer(t)
	s.beforePublish = func(g *Goal) {
		if err := s.Preempt(""); err != nil {
			t.Error(err)
		}
		if g.State() != Preempting {
			t.Error(g.State())
		}
	}
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Behavior: "blink"})
	if g.State() != Preempted {
		t.Fatal(g.State())
	}
	if n := len(r.Of(bus.KeyframesKind)); n != 0 {
		t.Fatalf("%d keyframe commands", n)
	}
	if n := len(r.Of(bus.ResultKind)); n != 0 {
		t.Fatalf("%d results", n)
	}
	if g.Command != nil {
		t.Fatal("has a command")
	}
}

func TestPreemptAfterCommit(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Behavior: "blink"})
	g.Preempt()
	if g.State() != Succeeded {
		t.Fatal(g.State())
	}
}

func TestContextCanceled(t *testing.T) {
	s, r := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGoal(&bus.GoalRequest{Behavior: "blink"})
	s.Execute(ctx, g)

	if g.State() != Preempted {
		t.Fatal(g.State())
	}
	if g.Err() != context.Canceled {
		t.Fatal(g.Err())
	}
	if n := len(r.Of(bus.KeyframesKind)); n != 0 {
		t.Fatalf("%d keyframe commands", n)
	}
}

func TestDispatchPreempts(t *testing.T) {
	s, r := newTestServer(t)
	entered := make(chan bool)
	s.beforePublish = func(g *Goal) {
		if g.Id != "first" {
			return
		}
		close(entered)
		<-g.preempt
	}
	ctx, cancel := withLoop(t, s)
	defer cancel()

	first, err := s.Dispatch(ctx, &bus.GoalRequest{Id: "first", Behavior: "blink"})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctx.Done():
		t.Fatal("timeout")
	case <-entered:
	}
	if s.Active() != first {
		t.Fatal("first isn't active")
	}

	second := run(t, ctx, s, &bus.GoalRequest{Id: "second", Behavior: "blink"})

	if first.State() != Preempted {
		t.Fatal(first.State())
	}
	if second.State() != Succeeded {
		t.Fatal(second.State())
	}

	ks := r.Of(bus.KeyframesKind)
	if len(ks) != 1 || ks[0].Payload.(*bus.Keyframes).Goal != "second" {
		t.Fatalf("got %s", JS(ks))
	}
	if n := len(r.Of(bus.FeedbackKind)); n != 2 {
		t.Fatalf("%d feedbacks", n)
	}
	fb := r.Of(bus.FeedbackKind)[0].Payload.(*bus.Feedback)
	if fb.Goal != "first" {
		t.Fatalf("got %s", JS(fb))
	}
}

func TestPreemptNotActive(t *testing.T) {
	s, _ := newTestServer(t)
	var na *NotActive
	if err := s.Preempt("g1"); !errors.As(err, &na) {
		t.Fatalf("got %#v", err)
	}
	if err := s.Preempt(""); !errors.As(err, &na) {
		t.Fatalf("got %#v", err)
	}
}

func TestPublishFailure(t *testing.T) {
	s, r := newTestServer(t)
	broken := errors.New("broken")
	r.Fail = func(m *bus.Message) error {
		if m.Kind == bus.KeyframesKind {
			return broken
		}
		return nil
	}
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Behavior: "blink"})
	if g.State() != Rejected || g.Err() != broken {
		t.Fatalf("%s %v", g.State(), g.Err())
	}
	if got := JS(r.Kinds()); got != `["feedback"]` {
		t.Fatal(got)
	}
}

func TestFeedbackFailureAbsorbed(t *testing.T) {
	s, r := newTestServer(t)
	r.Fail = func(m *bus.Message) error {
		if m.Kind == bus.FeedbackKind {
			return bus.Stalled
		}
		return nil
	}
	ctx, cancel := withLoop(t, s)
	defer cancel()

	g := run(t, ctx, s, &bus.GoalRequest{Behavior: "blink"})
	if g.State() != Succeeded {
		t.Fatal(g.State())
	}
	if got := JS(r.Kinds()); got != `["keyframes","result"]` {
		t.Fatal(got)
	}
}

type memStore struct {
	sync.Mutex
	records []*history.Record
}

func (s *memStore) Open(ctx context.Context) error  { return nil }
func (s *memStore) Close(ctx context.Context) error { return nil }

func (s *memStore) Write(ctx context.Context, r *history.Record) error {
	s.Lock()
	defer s.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*history.Record, error) {
	s.Lock()
	defer s.Unlock()
	for _, r := range s.records {
		if r.Id == id {
			return r, nil
		}
	}
	return nil, history.NotFound
}

func (s *memStore) List(ctx context.Context, limit int) ([]*history.Record, error) {
	s.Lock()
	defer s.Unlock()
	return s.records, nil
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(t)
	store := &memStore{}
	s.History = store
	ctx, cancel := withLoop(t, s)
	defer cancel()

	run(t, ctx, s, &bus.GoalRequest{Id: "ok", Behavior: "look", Args: []float64{0.3}})
	run(t, ctx, s, &bus.GoalRequest{Id: "bad", Behavior: "dance"})

	r, err := store.Get(ctx, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if r.State != "Succeeded" || r.Frames != 2 || r.Clamps != 1 || r.Error != "" {
		t.Fatalf("got %s", JS(r))
	}
	if r.Finished.Before(r.Received) {
		t.Fatalf("got %s", JS(r))
	}

	if r, err = store.Get(ctx, "bad"); err != nil {
		t.Fatal(err)
	}
	if r.State != "Rejected" || r.Error == "" || r.Frames != 0 {
		t.Fatalf("got %s", JS(r))
	}
}

func TestNotFiniteArgsWithHistory(t *testing.T) {
	s, _ := newTestServer(t)
	store, err := bolt.NewStorage(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	store.Debug = true
	ctx, cancel := withLoop(t, s)
	defer cancel()
	if err = store.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer store.Close(context.Background())
	s.History = store

	g := run(t, ctx, s, &bus.GoalRequest{Id: "nan", Behavior: "look", Args: []float64{math.NaN()}})
	if g.State() != Rejected {
		t.Fatalf("got %s", g.State())
	}

	// The server keeps going.
	if g = run(t, ctx, s, &bus.GoalRequest{Id: "ok", Behavior: "look", Args: []float64{0.3}}); g.State() != Succeeded {
		t.Fatalf("got %s: %v", g.State(), g.Err())
	}
	if _, err = store.Get(ctx, "ok"); err != nil {
		t.Fatal(err)
	}
}

func TestServe(t *testing.T) {
	s, r := newTestServer(t)
	ctx, cancel := withLoop(t, s)
	defer cancel()

	var (
		in   = make(chan interface{})
		done = make(chan bool)
		errs = make(chan error, 1)
	)
	go func() {
		errs <- Serve(ctx, s, in, done)
	}()

	in <- &bus.CancelRequest{}
	in <- &bus.GoalRequest{Id: "g1", Behavior: "blink"}
	close(done)

	select {
	case <-ctx.Done():
		t.Fatal("timeout")
	case err := <-errs:
		if err != nil {
			t.Fatal(err)
		}
	}

	if got := JS(r.Kinds()); got != `["keyframes","feedback","result"]` {
		t.Fatal(got)
	}
}
