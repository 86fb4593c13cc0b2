// Package main is a command-line tool for behavior libraries.
//
//	behaviortool validate FILE
//	behaviortool html FILE [CSS...]
//	behaviortool yaml FILE
//	behaviortool eval [-dofs DOFS] FILE BEHAVIOR [ARG...]
//	behaviortool history [-n N] [-id ID] DB
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Comcast/keyframer/behavior"
	"github.com/Comcast/keyframer/bus"
	"github.com/Comcast/keyframer/history"
	"github.com/Comcast/keyframer/history/bolt"
	"github.com/Comcast/keyframer/tools"
)

func Usage() {
	fmt.Fprintf(os.Stderr, `Usage:

  %[1]s validate FILE
  %[1]s html FILE [CSS...]
  %[1]s yaml FILE
  %[1]s eval [-dofs DOFS] FILE BEHAVIOR [ARG...]
  %[1]s history [-n N] [-id ID] DB

FILE is a JSON or YAML behavior library.
`, os.Args[0])
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func main() {

	if len(os.Args) < 3 {
		Usage()
		os.Exit(1)
	}

	var (
		cmd  = os.Args[1]
		args = os.Args[2:]
	)

	switch cmd {
	case "validate":
		lib, err := behavior.LoadFile(args[0])
		if err != nil {
			fail(err)
		}
		for _, name := range lib.Names() {
			status := "ok"
			if !lib.Behaviors[name].Complete() {
				status = "incomplete"
			}
			fmt.Printf("%s %s\n", name, status)
		}
		for _, err := range lib.Problems {
			fmt.Printf("problem: %s\n", err)
		}
		if 0 < len(lib.Problems) {
			os.Exit(1)
		}

	case "html":
		if err := tools.ReadAndRenderLibraryPage(args[0], args[1:], os.Stdout); err != nil {
			fail(err)
		}

	case "yaml":
		lib, err := behavior.LoadFile(args[0])
		if err != nil {
			fail(err)
		}
		bs, err := tools.LibraryYAML(lib)
		if err != nil {
			fail(err)
		}
		if _, err = os.Stdout.Write(bs); err != nil {
			fail(err)
		}

	case "eval":
		fs := flag.NewFlagSet("eval", flag.ExitOnError)
		dofs := fs.String("dofs", "", "Comma-separated dofs (default all)")
		fs.Parse(args)
		if fs.NArg() < 2 {
			Usage()
			os.Exit(1)
		}

		lib, err := behavior.LoadFile(fs.Arg(0))
		if err != nil {
			fail(err)
		}

		req := &bus.GoalRequest{
			Behavior: fs.Arg(1),
			Args:     make([]float64, 0, fs.NArg()-2),
		}
		for _, s := range fs.Args()[2:] {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				fail(fmt.Errorf("arg %q: %w", s, err))
			}
			req.Args = append(req.Args, f)
		}

		var requested []string
		if *dofs != "" {
			requested = strings.Split(*dofs, ",")
		}

		g, ms := tools.Play(context.Background(), lib, req, requested)
		for _, m := range ms {
			fmt.Printf("%s %s\n", m.Kind, bus.JS(m.Payload))
		}
		fmt.Printf("%s %s\n", g.Id, g.State())
		if err := g.Err(); err != nil {
			fmt.Printf("%s\n", err)
			os.Exit(1)
		}

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		limit := fs.Int("n", 20, "Maximum number of records (0 means all)")
		id := fs.String("id", "", "Show just this goal")
		fs.Parse(args)
		if fs.NArg() < 1 {
			Usage()
			os.Exit(1)
		}

		ctx := context.Background()
		store, err := bolt.NewStorage(fs.Arg(0))
		if err != nil {
			fail(err)
		}
		if err = store.Open(ctx); err != nil {
			fail(err)
		}
		defer store.Close(ctx)

		var rs []*history.Record
		if *id != "" {
			r, err := store.Get(ctx, *id)
			if err != nil {
				fail(err)
			}
			rs = append(rs, r)
		} else if rs, err = store.List(ctx, *limit); err != nil {
			fail(err)
		}
		for _, r := range rs {
			fmt.Printf("%s\n", bus.JS(r))
		}

	default:
		Usage()
		os.Exit(1)
	}
}
