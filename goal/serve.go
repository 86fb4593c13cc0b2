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
	"log"

	"github.com/Comcast/keyframer/bus"
)

// Serve feeds in-bound requests from a Couplings to the server.
//
// Goal requests are dispatched, and cancel requests preempt.  When
// done is closed, Serve waits for the active goal (if any) to finish
// and returns nil.
//
// Someone else should be running s.Loop.
func Serve(ctx context.Context, s *Server, in chan interface{}, done chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			s.Logf("Serve input done")
			return s.Wait(ctx)
		case x := <-in:
			switch vv := x.(type) {
			case *bus.GoalRequest:
				if _, err := s.Dispatch(ctx, vv); err != nil {
					log.Printf("warning: dispatch %s: %s", bus.JShort(vv), err)
				}
			case *bus.CancelRequest:
				if err := s.Preempt(vv.Id); err != nil {
					log.Printf("warning: cancel: %s", err)
				}
			default:
				log.Printf("warning: ignoring %T %s", x, bus.JShort(x))
			}
		}
	}
}

// Wait waits for the active goal (if any) to finish.
func (s *Server) Wait(ctx context.Context) error {
	g := s.Active()
	if g == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.Done():
		return nil
	}
}
