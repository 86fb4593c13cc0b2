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

// Package bus defines the messages that flow between a behavior
// server and the outside world, and the Couplings that carry them.
//
// In-bound messages are goal requests and cancel requests.  Out-bound
// messages are feedback, results, and keyframe commands for the face.
//
// This package has a Stdio coupling.  See the subpackages for MQTT and
// WebSocket couplings.
package bus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Comcast/keyframer/sequencer"
)

// GoalRequest asks the server to play a behavior.
type GoalRequest struct {
	// Id is optional.  The server will make one if needed.
	Id       string    `json:"id,omitempty"`
	Behavior string    `json:"behavior"`
	Args     []float64 `json:"args"`
}

// CancelRequest asks the server to preempt a goal.
//
// An empty Id means whatever goal is active.
type CancelRequest struct {
	Id string `json:"cancel"`
}

// Status is the status reported in Feedback.
type Status string

// Playing is the only status currently defined.
const Playing Status = "PLAYING"

// Feedback reports that a goal is being processed.
type Feedback struct {
	Goal   string `json:"goal"`
	Status Status `json:"status"`
}

// Outcome is the outcome reported in a Result.
type Outcome string

// Done is the only outcome currently defined.
const Done Outcome = "DONE"

// Result reports that a goal succeeded.
type Result struct {
	Goal   string  `json:"goal"`
	Result Outcome `json:"result"`
}

// Keyframes is a keyframe command for the face along with the id of
// the goal that generated it.
type Keyframes struct {
	Goal string `json:"goal,omitempty"`
	*sequencer.Command
}

// Kind says what sort of payload a Message carries.
type Kind string

const (
	FeedbackKind  Kind = "feedback"
	ResultKind    Kind = "result"
	KeyframesKind Kind = "keyframes"
)

// Message is an out-bound message.
type Message struct {
	Kind    Kind        `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Publisher sends out-bound messages.
//
// Publishing is fire-and-forget: an error means the message was
// (probably) not delivered, and the caller should just report it.
type Publisher interface {
	Publish(context.Context, *Message) error
}

// Couplings connect a behavior server to some transport.
type Couplings interface {
	// Start initializes the Couplings.
	Start(context.Context) error

	// IO returns the in-bound channel (of *GoalRequest and
	// *CancelRequest values), the out-bound channel, and a
	// channel that's closed when the input is exhausted.
	IO(context.Context) (chan interface{}, chan *Message, chan bool, error)

	// Stop shuts down the Couplings.
	Stop(context.Context) error
}

// BadRequest occurs when an in-bound message is neither a goal request
// nor a cancel request.
type BadRequest struct {
	Msg    interface{}
	Reason string
}

func (e *BadRequest) Error() string {
	return "bad request (" + e.Reason + "): " + JShort(e.Msg)
}

// Decode makes a *GoalRequest or a *CancelRequest from a generic
// (JSON-like) message.
//
// Arguments can be numbers or strings that parse as numbers.
func Decode(x interface{}) (interface{}, error) {
	m, is := x.(map[string]interface{})
	if !is {
		return nil, &BadRequest{x, "not an object"}
	}

	if c, have := m["cancel"]; have {
		id, is := c.(string)
		if !is && c != nil {
			return nil, &BadRequest{x, "cancel id is not a string"}
		}
		return &CancelRequest{Id: id}, nil
	}

	b, have := m["behavior"]
	if !have {
		return nil, &BadRequest{x, "no behavior"}
	}
	name, is := b.(string)
	if !is {
		return nil, &BadRequest{x, "behavior is not a string"}
	}

	req := &GoalRequest{
		Behavior: name,
	}

	if id, is := m["id"].(string); is {
		req.Id = id
	}

	if y, have := m["args"]; have && y != nil {
		xs, is := y.([]interface{})
		if !is {
			return nil, &BadRequest{x, "args is not a list"}
		}
		req.Args = make([]float64, len(xs))
		for i, z := range xs {
			f, err := number(z)
			if err != nil {
				return nil, &BadRequest{x, fmt.Sprintf("arg %d: %s", i, err)}
			}
			req.Args[i] = f
		}
	}

	return req, nil
}

// DecodeCancel makes a *CancelRequest from a message that arrived
// somewhere only cancel requests go.
//
// The message can be a cancel request, an object with an "id", a bare
// goal id, or nothing (which cancels whatever is active).
func DecodeCancel(x interface{}) (*CancelRequest, error) {
	switch vv := x.(type) {
	case nil:
		return &CancelRequest{}, nil
	case string:
		return &CancelRequest{Id: vv}, nil
	case map[string]interface{}:
		if _, have := vv["cancel"]; !have {
			id, is := vv["id"].(string)
			if !is && vv["id"] != nil {
				return nil, &BadRequest{x, "cancel id is not a string"}
			}
			return &CancelRequest{Id: id}, nil
		}
		y, err := Decode(vv)
		if err != nil {
			return nil, err
		}
		return y.(*CancelRequest), nil
	default:
		return nil, &BadRequest{x, "not a cancel request"}
	}
}

// NotFinite is reported for an argument that is NaN or infinite.
var NotFinite = errors.New("not finite")

func number(x interface{}) (float64, error) {
	var f float64
	switch vv := x.(type) {
	case float64:
		f = vv
	case int:
		f = float64(vv)
	case string:
		var err error
		if f, err = strconv.ParseFloat(vv, 64); err != nil {
			return 0, err
		}
	default:
		return 0, errors.New("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, NotFinite
	}
	return f, nil
}
