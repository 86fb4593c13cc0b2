/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package ws is a bus.Couplings for a WebSocket connection.
//
// Every frame is a JSON text message with a "type" property.  In-bound
// types are "goal" and "cancel".  Out-bound types are the bus.Kinds.
// The rest of the properties are the message itself:
//
//	{"type":"goal","behavior":"nod","args":[0.3]}
//	{"type":"cancel","id":"g1"}
//	{"type":"feedback","goal":"g1","status":"PLAYING"}
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Comcast/keyframer/bus"

	"github.com/gorilla/websocket"
)

type Couplings struct {
	URL string

	// WriteTimeout limits each frame write.
	WriteTimeout time.Duration

	Verbose bool

	in   chan interface{}
	out  chan *bus.Message
	done chan bool
	stop chan bool
	conn *websocket.Conn

	wmu  sync.Mutex
	wg   sync.WaitGroup
	once sync.Once
}

func NewCouplings(u string) *Couplings {
	return &Couplings{
		URL:          u,
		WriteTimeout: time.Second,
		in:           make(chan interface{}),
		out:          make(chan *bus.Message, 8),
		done:         make(chan bool),
		stop:         make(chan bool),
	}
}

// Logf logs if c.Verbose.
func (c *Couplings) Logf(format string, args ...interface{}) {
	if !c.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Start creates the WebSocket session and starts processing it.
func (c *Couplings) Start(ctx context.Context) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}

	log.Println("wsconnect", u.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	c.conn = conn

	go c.readLoop(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-c.out:
				c.send(m)
			case <-c.stop:
				for {
					select {
					case m := <-c.out:
						c.send(m)
					default:
						return
					}
				}
			}
		}
	}()

	return nil
}

// readLoop isn't in the WaitGroup since it might be stuck reading.
func (c *Couplings) readLoop(ctx context.Context) {
	defer c.closeDone()
	for {
		_, bs, err := c.conn.ReadMessage()
		if err != nil {
			c.Logf("ReadMessage %s", err)
			return
		}
		if len(bs) == 0 {
			continue
		}
		c.Logf("heard %s", bs)

		req, err := Decode(bs)
		if err != nil {
			log.Printf("warning: %s", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case c.in <- req:
		}
	}
}

func (c *Couplings) closeDone() {
	c.once.Do(func() {
		close(c.done)
	})
}

// IO returns the channels made by NewCouplings.
func (c *Couplings) IO(ctx context.Context) (chan interface{}, chan *bus.Message, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop writes pending out-bound messages and then closes the
// connection.
func (c *Couplings) Stop(ctx context.Context) error {
	log.Printf("Disconnecting")
	if c.conn == nil {
		return nil
	}
	close(c.stop)
	c.wg.Wait()
	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.WriteTimeout))
	c.wmu.Unlock()
	err := c.conn.Close()
	c.closeDone()
	return err
}

func (c *Couplings) send(m *bus.Message) {
	if err := c.write(m); err != nil {
		log.Printf("warning: WriteMessage %s", err)
	}
}

func (c *Couplings) write(m *bus.Message) error {
	js, err := Encode(m)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if 0 < c.WriteTimeout {
		c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, js)
}

// Encode renders an out-bound message as a frame.
func Encode(m *bus.Message) ([]byte, error) {
	js, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var x map[string]interface{}
	if err := json.Unmarshal(js, &x); err != nil {
		return nil, err
	}
	if x == nil {
		x = make(map[string]interface{}, 1)
	}
	x["type"] = string(m.Kind)
	return json.Marshal(x)
}

// Decode parses an in-bound frame.
//
// A frame without a type is treated as a goal or cancel request based
// on its properties.
func Decode(bs []byte) (interface{}, error) {
	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		return nil, err
	}
	m, is := x.(map[string]interface{})
	if !is {
		return nil, &bus.BadRequest{Msg: x, Reason: "not an object"}
	}
	typ, _ := m["type"].(string)
	delete(m, "type")
	switch typ {
	case "cancel":
		return bus.DecodeCancel(m)
	case "goal", "":
		return bus.Decode(m)
	default:
		return nil, &bus.BadRequest{Msg: x, Reason: "unknown type " + typ}
	}
}
