// Package config reads a face node's TOML configuration file.
//
// Everything in the file is optional.  Command-line flags override
// what the file says.
//
//	behaviors = "behaviors.yaml"
//	dofs = ["eye", "lid"]
//	io = "mqtt"
//
//	[mqtt]
//	broker = "tcp://localhost"
//	port = 1883
//	keep_alive = "10s"
//
//	[mqtt.topics]
//	goal = "behavior/goal:1"
//
//	[history]
//	path = "history.db"
//
//	[[schedule]]
//	cron = "0/20 * * * * * *"
//	behavior = "blink"
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Comcast/keyframer/bus/mqtt"
	"github.com/Comcast/keyframer/schedule"

	toml "github.com/pelletier/go-toml/v2"
)

// IO names the supported couplings.
var IO = []string{"stdio", "mqtt", "ws"}

// Duration is a time.Duration written as a string like "1.5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	x, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = x
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	// Behaviors is the behavior library filename.
	Behaviors string `toml:"behaviors"`

	// Dofs are the dofs the face accepts.  Empty means all.
	Dofs []string `toml:"dofs"`

	// IO is one of "stdio", "mqtt", or "ws".
	IO string `toml:"io"`

	Verbose bool `toml:"verbose"`

	// PublishTimeout is how long the server waits for the
	// couplings to take an out-bound message.
	PublishTimeout Duration `toml:"publish_timeout"`

	Stdio     StdioConfig     `toml:"stdio"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	WebSocket WebSocketConfig `toml:"websocket"`
	History   HistoryConfig   `toml:"history"`

	Schedule []*schedule.Entry `toml:"schedule"`
}

type StdioConfig struct {
	Timestamps bool `toml:"timestamps"`
	Echo       bool `toml:"echo"`
	Tags       bool `toml:"tags"`
}

type MQTTConfig struct {
	Broker     string      `toml:"broker"`
	Port       int         `toml:"port"`
	ClientId   string      `toml:"client_id"`
	KeepAlive  Duration    `toml:"keep_alive"`
	Username   string      `toml:"username"`
	Password   string      `toml:"password"`
	Reconnect  bool        `toml:"reconnect"`
	Clean      bool        `toml:"clean"`
	Quiesce    uint        `toml:"quiesce"`
	CertFile   string      `toml:"cert"`
	KeyFile    string      `toml:"key"`
	CAFile     string      `toml:"cafile"`
	Insecure   bool        `toml:"insecure"`
	InTimeout  Duration    `toml:"in_timeout"`
	PubTimeout Duration    `toml:"pub_timeout"`
	Topics     mqtt.Topics `toml:"topics"`
}

type WebSocketConfig struct {
	URL          string   `toml:"url"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type HistoryConfig struct {
	// Path is the bbolt database filename.  Empty means don't
	// keep history.
	Path string `toml:"path"`
}

// Default returns the configuration used when there's no file.
func Default() *Config {
	o := mqtt.DefaultOptions()
	return &Config{
		Behaviors:      "behaviors.json",
		IO:             "stdio",
		PublishTimeout: Duration{time.Second},
		Stdio: StdioConfig{
			Tags: true,
		},
		MQTT: MQTTConfig{
			Broker:     o.Broker,
			Port:       o.Port,
			KeepAlive:  Duration{o.KeepAlive},
			Clean:      o.Clean,
			Quiesce:    o.Quiesce,
			InTimeout:  Duration{o.InTimeout},
			PubTimeout: Duration{o.PubTimeout},
			Topics:     o.Topics,
		},
		WebSocket: WebSocketConfig{
			URL:          "ws://localhost:8080",
			WriteTimeout: Duration{time.Second},
		},
	}
}

// Load reads the given file on top of the defaults.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse reads TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if len(strings.TrimSpace(string(data))) != 0 {
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, err
		}
	}
	return c, c.Validate()
}

// Validate checks what can be checked without opening anything.
func (c *Config) Validate() error {
	ok := false
	for _, io := range IO {
		if c.IO == io {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("unknown io %q (want one of %s)", c.IO, strings.Join(IO, ", "))
	}
	if c.Behaviors == "" {
		return errors.New("no behaviors file")
	}
	for _, dof := range c.Dofs {
		if dof == "" {
			return errors.New("empty dof name")
		}
	}
	for i, e := range c.Schedule {
		if e == nil || e.Behavior == "" || e.Cron == "" {
			return fmt.Errorf("schedule entry %d needs a cron and a behavior", i)
		}
	}
	return nil
}

// SplitDofs parses a comma-separated list of dofs.  Blank entries are
// dropped, so an empty string means all dofs.
func SplitDofs(s string) []string {
	var acc []string
	for _, dof := range strings.Split(s, ",") {
		if dof = strings.TrimSpace(dof); dof != "" {
			acc = append(acc, dof)
		}
	}
	return acc
}

// MQTTOptions makes options for the MQTT couplings.
func (c *Config) MQTTOptions() *mqtt.Options {
	m := c.MQTT
	return &mqtt.Options{
		Broker:     m.Broker,
		Port:       m.Port,
		ClientId:   m.ClientId,
		KeepAlive:  m.KeepAlive.Duration,
		Username:   m.Username,
		Password:   m.Password,
		Reconnect:  m.Reconnect,
		Clean:      m.Clean,
		Quiesce:    m.Quiesce,
		CertFile:   m.CertFile,
		KeyFile:    m.KeyFile,
		CAFile:     m.CAFile,
		Insecure:   m.Insecure,
		InTimeout:  m.InTimeout.Duration,
		PubTimeout: m.PubTimeout.Duration,
		Topics:     m.Topics,
	}
}
