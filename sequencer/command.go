package sequencer

import (
	"strconv"
)

// Keyframe is one frame of a Command.
type Keyframe struct {
	Positions []float64 `json:"positions"`
}

// Command is the keyframe request that the face consumes.
type Command struct {
	Dofs   []string   `json:"dofs"`
	Times  []float64  `json:"times"`
	Frames []Keyframe `json:"frames"`
}

// NewCommand makes a Command for the given dofs and frames.
func NewCommand(dofs []string, frames []*Frame) *Command {
	c := &Command{
		Dofs:   dofs,
		Times:  make([]float64, len(frames)),
		Frames: make([]Keyframe, len(frames)),
	}
	for i, f := range frames {
		c.Times[i] = f.Time
		c.Frames[i] = Keyframe{
			Positions: f.Positions,
		}
	}
	return c
}

// Clamp is a warning that a position was out of bounds and was
// forced into [0,1].
type Clamp struct {
	Behavior string  `json:"behavior"`
	Frame    int     `json:"frame"`
	Dof      string  `json:"dof"`
	Value    float64 `json:"value"`
	To       float64 `json:"to"`
}

func (c *Clamp) Error() string {
	return "pose " + strconv.FormatFloat(c.Value, 'f', 2, 64) +
		" for dof \"" + c.Dof + "\" at keyframe " + strconv.Itoa(c.Frame) +
		" of behavior \"" + c.Behavior + "\" is out of bounds (0-1); using " +
		strconv.FormatFloat(c.To, 'f', -1, 64)
}

// FrameError reports which keyframe (and which field) failed to
// evaluate.
type FrameError struct {
	Frame int
	Field string
	Err   error
}

func (e *FrameError) Error() string {
	return e.Field + " at keyframe " + strconv.Itoa(e.Frame) + ": " + e.Err.Error()
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
