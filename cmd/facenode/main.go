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

// Package main is a behavior server for a robot face.
//
// Goal requests arrive via the chosen couplings (stdin, MQTT, or a
// WebSocket).  Keyframe commands, feedback, and results go back out
// the same way.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/bus/mqtt"
	"github.com/Comcast/keyframer/bus/ws"
	"github.com/Comcast/keyframer/config"
	"github.com/Comcast/keyframer/goal"
	"github.com/Comcast/keyframer/history/bolt"
	"github.com/Comcast/keyframer/schedule"
)

func main() {

	var (
		confFile  = flag.String("config", "", "Optional TOML configuration file")
		coupling  = flag.String("io", "", `IO protocol: "stdio", "mqtt", or "ws"`)
		behaviors = flag.String("behaviors", "", "Behavior library filename (JSON or YAML)")
		dofs      = flag.String("dofs", "", "Comma-separated dofs the face accepts (default all)")
		historyDB = flag.String("history", "", "Optional goal history database filename")
		wsURL     = flag.String("url", "", "WebSocket URL for -io ws")
		wait      = flag.Duration("wait", time.Second, "Wait this long after input EOF before shutting down couplings")
		verbose   = flag.Bool("v", false, "Verbose")
		help      = flag.Bool("h", false, "Get usage")
	)

	flag.Parse()

	if *help {
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, "\n-io mqtt:\n\n")
		fs := flag.NewFlagSet("mqtt", flag.ExitOnError)
		mqtt.DefaultOptions().AddFlags(fs)
		fs.PrintDefaults()

		os.Exit(0)
	}

	conf := config.Default()
	if *confFile != "" {
		var err error
		if conf, err = config.Load(*confFile); err != nil {
			log.Fatal(err)
		}
	}

	// Flags override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "io":
			conf.IO = *coupling
		case "behaviors":
			conf.Behaviors = *behaviors
		case "dofs":
			conf.Dofs = config.SplitDofs(*dofs)
		case "history":
			conf.History.Path = *historyDB
		case "url":
			conf.WebSocket.URL = *wsURL
		case "v":
			conf.Verbose = *verbose
		}
	})
	switch conf.IO {
	case "std":
		conf.IO = "stdio"
	case "mq":
		conf.IO = "mqtt"
	}
	if err := conf.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	lib, err := behavior.LoadFile(conf.Behaviors)
	if err != nil {
		log.Fatal(err)
	}

	var cio bus.Couplings
	switch conf.IO {
	case "stdio":
		c := bus.NewStdio()
		c.Timestamps = conf.Stdio.Timestamps
		c.EchoInput = conf.Stdio.Echo
		c.Tags = conf.Stdio.Tags
		cio = c
	case "mqtt":
		o := conf.MQTTOptions()
		fs := flag.NewFlagSet("mqtt", flag.ExitOnError)
		o.AddFlags(fs)
		fs.Parse(flag.Args())
		c, err := mqtt.NewCouplings(o)
		if err != nil {
			log.Fatal(err)
		}
		c.Verbose = conf.Verbose
		cio = c
	case "ws":
		c := ws.NewCouplings(conf.WebSocket.URL)
		c.WriteTimeout = conf.WebSocket.WriteTimeout.Duration
		c.Verbose = conf.Verbose
		cio = c
	}

	if err := cio.Start(ctx); err != nil {
		log.Fatal(err)
	}

	in, out, done, err := cio.IO(ctx)
	if err != nil {
		log.Fatal(err)
	}

	s := goal.NewServer(lib, &bus.ChanPublisher{
		Out:     out,
		Timeout: conf.PublishTimeout.Duration,
	})
	s.Dofs = conf.Dofs
	s.Verbose = conf.Verbose

	if conf.History.Path != "" {
		store, err := bolt.NewStorage(conf.History.Path)
		if err != nil {
			log.Fatal(err)
		}
		if err = store.Open(ctx); err != nil {
			log.Fatal(err)
		}
		defer store.Close(context.Background())
		s.History = store
	}

	sched := schedule.NewSchedule(func() bool {
		return s.Active() == nil
	}, func(ctx context.Context, e *schedule.Entry) {
		if _, err := s.Dispatch(ctx, e.Request()); err != nil {
			log.Printf("warning: schedule %s: %s", e.Id, err)
		}
	})
	sched.Verbose = conf.Verbose
	for _, e := range conf.Schedule {
		if err := sched.Add(ctx, e); err != nil {
			log.Fatal(err)
		}
	}

	go func() {
		if err := s.Loop(ctx); err != nil && err != context.Canceled {
			log.Printf("server loop: %s", err)
		}
	}()

	if err := goal.Serve(ctx, s, in, done); err != nil {
		if err != context.Canceled {
			log.Printf("serve: %s", err)
		}
	} else {
		log.Printf("input EOF (waiting %v)", *wait)
		time.Sleep(*wait)
	}

	cancel()

	if err = cio.Stop(context.Background()); err != nil {
		log.Printf("error from io.Stop: %v", err)
	}
}
