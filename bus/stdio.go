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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Stdio is a fairly simple Couplings that uses stdin for input and
// stdout for output.
//
// Each input line should be a JSON goal request or cancel request.
// Each output line is a JSON Message.
type Stdio struct {
	// In is coupled to server input.
	In io.Reader

	// Out is coupled to server output.
	Out io.Writer

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// EchoInput writes input lines (prepended with "input") to
	// the output.
	EchoInput bool

	// Tags prefixes tags indicating type of output ("input",
	// "feedback", "result", "keyframes").
	Tags bool

	// InputEOF will be closed on EOF from stdin.
	InputEOF chan bool

	WG sync.WaitGroup

	stop chan bool
}

// NewStdio creates a new Stdio.
//
// In and Out are initialized with os.Stdin and os.Stdout
// respectively.
func NewStdio() *Stdio {
	return &Stdio{
		In:       os.Stdin,
		Out:      os.Stdout,
		InputEOF: make(chan bool),
	}
}

// Start does nothing.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

// Stop writes any pending output and then waits until output is
// complete or was terminated via its context.
func (s *Stdio) Stop(ctx context.Context) error {
	if s.stop != nil {
		close(s.stop)
	}
	s.WG.Wait()
	return nil
}

// IO returns channels for reading from stdin and writing to stdout.
func (s *Stdio) IO(ctx context.Context) (chan interface{}, chan *Message, chan bool, error) {
	in := make(chan interface{})
	done := make(chan bool)
	out := make(chan *Message, 8)
	s.stop = make(chan bool)

	if s.InputEOF == nil {
		s.InputEOF = make(chan bool)
	}

	var mu sync.Mutex
	printf := func(tag, format string, args ...interface{}) {
		if s.Tags {
			format = tag + " " + format
		}
		if s.Timestamps {
			ts := fmt.Sprintf("%-31s", time.Now().UTC().Format(time.RFC3339Nano))
			format = ts + " " + format
		}
		mu.Lock()
		fmt.Fprintf(s.Out, format, args...)
		mu.Unlock()
	}

	// The reader isn't in the WaitGroup since it might be stuck
	// reading.
	go func() {
		stdin := bufio.NewReader(s.In)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line, err := stdin.ReadString('\n')
			if err != nil && err != io.EOF {
				log.Printf("stdin error %s", err)
				return
			}
			eof := err == io.EOF
			if !eof && strings.TrimSpace(line) == "quit" {
				eof = true
				line = ""
			}
			if s.EchoInput && line != "" {
				printf("input", "%s\n", strings.TrimRight(line, "\n"))
			}
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				s.forward(ctx, in, trimmed)
			}
			if eof {
				close(done)
				close(s.InputEOF)
				return
			}
		}
	}()

	s.WG.Add(1)
	go func() {
		defer s.WG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-out:
				printf(string(m.Kind), "%s\n", JS(m))
			case <-s.stop:
				for {
					select {
					case m := <-out:
						printf(string(m.Kind), "%s\n", JS(m))
					default:
						return
					}
				}
			}
		}
	}()

	return in, out, done, nil
}

func (s *Stdio) forward(ctx context.Context, in chan interface{}, line string) {
	var x interface{}
	if err := json.Unmarshal([]byte(line), &x); err != nil {
		log.Printf("bad input: %s", err)
		return
	}
	req, err := Decode(x)
	if err != nil {
		log.Printf("warning: %s", err)
		return
	}
	select {
	case <-ctx.Done():
	case in <- req:
	}
}
