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

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// JS renders its argument as JSON or as '%#v'.
func JS(x interface{}) string {
	if x == nil {
		return "null"
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}

// JShort renders its argument as JS() but only up to 73 characters.
func JShort(x interface{}) string {
	js := []byte(JS(x))
	if 70 < len(js) {
		js = js[0:70]
		js = append(js, []byte("...")...)
	}
	return string(js)
}

// Stalled is returned by a ChanPublisher when nobody took the message
// in time.
var Stalled = errors.New("publisher stalled")

// ChanPublisher publishes to a channel (usually a Couplings'
// out-bound channel).
type ChanPublisher struct {
	Out chan *Message

	// Timeout is how long to wait for the channel.  Zero means
	// don't wait at all.
	Timeout time.Duration
}

// Publish tries to send the message on the channel.
func (p *ChanPublisher) Publish(ctx context.Context, m *Message) error {
	if p.Timeout <= 0 {
		select {
		case p.Out <- m:
			return nil
		default:
			return Stalled
		}
	}

	to := time.NewTimer(p.Timeout)
	defer to.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.Out <- m:
		return nil
	case <-to.C:
		return Stalled
	}
}

// Recorder is a Publisher that remembers what it was given.
//
// If Fail is not nil, Publish returns Fail(m) instead of recording m
// when Fail(m) isn't nil.
type Recorder struct {
	Fail func(m *Message) error

	sync.Mutex
	Messages []*Message
}

func (r *Recorder) Publish(ctx context.Context, m *Message) error {
	r.Lock()
	defer r.Unlock()
	if r.Fail != nil {
		if err := r.Fail(m); err != nil {
			return err
		}
	}
	r.Messages = append(r.Messages, m)
	return nil
}

// Kinds returns the kinds of the recorded messages in order.
func (r *Recorder) Kinds() []Kind {
	r.Lock()
	defer r.Unlock()
	acc := make([]Kind, len(r.Messages))
	for i, m := range r.Messages {
		acc[i] = m.Kind
	}
	return acc
}

// Of returns the recorded messages of the given kind.
func (r *Recorder) Of(kind Kind) []*Message {
	r.Lock()
	defer r.Unlock()
	acc := make([]*Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Kind == kind {
			acc = append(acc, m)
		}
	}
	return acc
}
