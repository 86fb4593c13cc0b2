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

// Package mqtt is a bus.Couplings for an MQTT broker.
//
// Goal and cancel requests arrive on two subscribed topics.  Feedback,
// results, and keyframe commands go out on one topic each.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/keyframer/bus"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Topics are the topics used by the Couplings.
//
// A topic can have the form TOPIC:QOS.
type Topics struct {
	Goal      string `toml:"goal"`
	Cancel    string `toml:"cancel"`
	Feedback  string `toml:"feedback"`
	Result    string `toml:"result"`
	Keyframes string `toml:"keyframes"`
}

// DefaultTopics are the topics used when none are given.
var DefaultTopics = Topics{
	Goal:      "behavior/goal",
	Cancel:    "behavior/cancel",
	Feedback:  "behavior/feedback",
	Result:    "behavior/result",
	Keyframes: "face/keyframes",
}

// Options are the settings for a broker session.
//
// The field names follow mosquitto_sub's command line arguments (see
// AddFlags).
type Options struct {
	Broker    string
	Port      int
	ClientId  string
	KeepAlive time.Duration
	Username  string
	Password  string
	Reconnect bool
	Clean     bool

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint

	CertFile string
	KeyFile  string
	CAFile   string
	Insecure bool

	// InTimeout is how long to wait to hand an in-bound request
	// to the server.
	InTimeout time.Duration

	// PubTimeout is how long to wait for the broker to accept an
	// out-bound message.
	PubTimeout time.Duration

	Topics Topics
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Broker:     "tcp://localhost",
		Port:       1883,
		KeepAlive:  10 * time.Second,
		Clean:      true,
		Quiesce:    100,
		InTimeout:  time.Second,
		PubTimeout: time.Second,
		Topics:     DefaultTopics,
	}
}

// AddFlags adds flags for these options to the given FlagSet.
//
// The current values are the flags' defaults.
func (o *Options) AddFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.Broker, "h", o.Broker, "Broker hostname")
	fs.IntVar(&o.Port, "p", o.Port, "Broker port")
	fs.StringVar(&o.ClientId, "i", o.ClientId, "Client id")
	fs.DurationVar(&o.KeepAlive, "k", o.KeepAlive, "Keep-alive")
	fs.StringVar(&o.Username, "u", o.Username, "Username")
	fs.StringVar(&o.Password, "P", o.Password, "Password")
	fs.BoolVar(&o.Reconnect, "reconnect", o.Reconnect, "Automatically attempt to reconnect")
	fs.BoolVar(&o.Clean, "c", o.Clean, "Clean session")
	fs.UintVar(&o.Quiesce, "quiesce", o.Quiesce, "Disconnection quiescence (in milliseconds)")
	fs.StringVar(&o.CertFile, "cert", o.CertFile, "Optional cert filename")
	fs.StringVar(&o.KeyFile, "key", o.KeyFile, "Optional key filename")
	fs.StringVar(&o.CAFile, "cafile", o.CAFile, "Optional CA cert filename")
	fs.BoolVar(&o.Insecure, "insecure", o.Insecure, "Skip broker cert checking")
	fs.DurationVar(&o.InTimeout, "in-timeout", o.InTimeout, "Timeout for in-bound queuing")
	fs.DurationVar(&o.PubTimeout, "pub-timeout", o.PubTimeout, "Timeout for out-bound publishing")
	fs.StringVar(&o.Topics.Goal, "goal-topic", o.Topics.Goal, "Goal request topic")
	fs.StringVar(&o.Topics.Cancel, "cancel-topic", o.Topics.Cancel, "Cancel request topic")
	fs.StringVar(&o.Topics.Feedback, "feedback-topic", o.Topics.Feedback, "Feedback topic")
	fs.StringVar(&o.Topics.Result, "result-topic", o.Topics.Result, "Result topic")
	fs.StringVar(&o.Topics.Keyframes, "keyframes-topic", o.Topics.Keyframes, "Keyframe command topic")
}

// ClientOptions makes Paho client options.
func (o *Options) ClientOptions() (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions()

	broker := o.Broker
	if 0 < o.Port {
		broker = fmt.Sprintf("%s:%d", broker, o.Port)
	}
	opts.AddBroker(broker)
	opts.SetClientID(o.ClientId)
	opts.SetKeepAlive(o.KeepAlive)
	opts.Username = o.Username
	opts.Password = o.Password
	opts.AutoReconnect = o.Reconnect
	opts.CleanSession = o.Clean

	tlsConf := &tls.Config{
		InsecureSkipVerify: o.Insecure,
	}

	if o.CAFile != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := ioutil.ReadFile(o.CAFile)
		if err != nil {
			return nil, err
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			log.Println("No certs appended, using system certs only")
		}
		tlsConf.RootCAs = rootCAs
	}

	if o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client paho.Client, err error) {
		log.Printf("MQTT connection lost: %s", err)
	}

	return opts, nil
}

// Couplings is a bus.Couplings for an MQTT client.
type Couplings struct {
	Client paho.Client
	Topics Topics

	Quiesce    uint
	InTimeout  time.Duration
	PubTimeout time.Duration

	// Verbose turns on logging.
	Verbose bool

	in   chan interface{}
	out  chan *bus.Message
	done chan bool
	stop chan bool
	wg   sync.WaitGroup
	once sync.Once
}

// NewCouplings makes Couplings (and a Paho client) with the given
// options.
func NewCouplings(o *Options) (*Couplings, error) {
	if o == nil {
		o = DefaultOptions()
	}

	paho.ERROR = log.New(os.Stderr, "mqtt.error ", 0)

	opts, err := o.ClientOptions()
	if err != nil {
		return nil, err
	}

	c := newCouplings(o)
	c.Client = paho.NewClient(opts)
	return c, nil
}

func newCouplings(o *Options) *Couplings {
	return &Couplings{
		Topics:     o.Topics,
		Quiesce:    o.Quiesce,
		InTimeout:  o.InTimeout,
		PubTimeout: o.PubTimeout,
		in:         make(chan interface{}),
		out:        make(chan *bus.Message, 8),
		done:       make(chan bool),
		stop:       make(chan bool),
	}
}

// Logf logs if c.Verbose.
func (c *Couplings) Logf(format string, args ...interface{}) {
	if !c.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Start connects to the broker, subscribes to the goal and cancel
// topics, and starts forwarding out-bound messages.
func (c *Couplings) Start(ctx context.Context) error {
	log.Printf("Attempting to connect to broker")
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("Connected to broker")

	for _, s := range []string{c.Topics.Goal, c.Topics.Cancel} {
		topic, qos := parseTopic(s)
		if topic == "" {
			continue
		}
		log.Printf("Subscribing to %s (%d)", topic, qos)
		handler := func(client paho.Client, msg paho.Message) {
			c.handle(ctx, msg.Topic(), msg.Payload())
		}
		if t := c.Client.Subscribe(topic, qos, handler); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.outLoop(ctx)
	}()

	return nil
}

// IO returns the channels made by NewCouplings.
func (c *Couplings) IO(ctx context.Context) (chan interface{}, chan *bus.Message, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop publishes pending out-bound messages and then terminates the
// MQTT session.
func (c *Couplings) Stop(ctx context.Context) error {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
		log.Printf("Disconnecting")
		if c.Client != nil && c.Client.IsConnected() {
			c.Client.Disconnect(c.Quiesce)
		}
		close(c.done)
	})
	return nil
}

// handle forwards an in-bound message to the server.
func (c *Couplings) handle(ctx context.Context, topic string, payload []byte) {
	c.Logf("incoming: %s %s", topic, payload)

	var x interface{}
	if 0 < len(payload) {
		if err := json.Unmarshal(payload, &x); err != nil {
			log.Printf("warning: couldn't JSON-parse payload on %s: %s", topic, payload)
			return
		}
	}

	var (
		req interface{}
		err error
	)
	if t, _ := parseTopic(c.Topics.Cancel); topic == t {
		req, err = bus.DecodeCancel(x)
	} else {
		req, err = bus.Decode(x)
	}
	if err != nil {
		log.Printf("warning: %s", err)
		return
	}

	to := time.NewTimer(c.InTimeout)
	defer to.Stop()

	select {
	case <-ctx.Done():
		log.Printf("warning: not forwarding due to ctx.Done()")
	case c.in <- req:
		c.Logf("forwarded %s", payload)
	case <-to.C:
		log.Printf("warning: not forwarding due to stall")
	}
}

// topicFor returns the out-bound topic for the kind of message.
func (c *Couplings) topicFor(kind bus.Kind) (string, byte, error) {
	var s string
	switch kind {
	case bus.FeedbackKind:
		s = c.Topics.Feedback
	case bus.ResultKind:
		s = c.Topics.Result
	case bus.KeyframesKind:
		s = c.Topics.Keyframes
	}
	topic, qos := parseTopic(s)
	if topic == "" {
		return "", 0, errors.New("no topic for " + string(kind))
	}
	return topic, qos, nil
}

func (c *Couplings) publish(m *bus.Message) error {
	topic, qos, err := c.topicFor(m.Kind)
	if err != nil {
		return err
	}
	js, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	c.Logf("publishing %s %s", topic, js)
	token := c.Client.Publish(topic, qos, false, js)
	if !token.WaitTimeout(c.PubTimeout) {
		return bus.Stalled
	}
	return token.Error()
}

// outLoop publishes out-bound messages until ctx is done or Stop is
// called.
func (c *Couplings) outLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.out:
			if err := c.publish(m); err != nil {
				log.Printf("warning: publish %s: %s", m.Kind, err)
			}
		case <-c.stop:
			for {
				select {
				case m := <-c.out:
					if err := c.publish(m); err != nil {
						log.Printf("warning: publish %s: %s", m.Kind, err)
					}
				default:
					return
				}
			}
		}
	}
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	var qos byte
	if _, err := fmt.Sscanf(s[i+1:], "%d", &qos); err != nil || 2 < qos {
		return s, 0
	}
	return s[:i], qos
}
