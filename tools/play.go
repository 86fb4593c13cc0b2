package tools

import (
	"context"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/goal"
)

// Play runs one goal against the library without any couplings and
// returns what the server would have published.
func Play(ctx context.Context, lib *behavior.Library, req *bus.GoalRequest, dofs []string) (*goal.Goal, []*bus.Message) {
	r := &bus.Recorder{}
	s := goal.NewServer(lib, r)
	s.Dofs = dofs

	g := goal.NewGoal(req)
	s.Execute(ctx, g)

	return g, r.Messages
}
