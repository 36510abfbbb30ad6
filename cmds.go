package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/l7mp/dtable/pkg/batch"
	"github.com/l7mp/dtable/pkg/graph"
	"github.com/l7mp/dtable/pkg/server"
	"github.com/l7mp/dtable/pkg/table"
	"github.com/l7mp/dtable/pkg/visualize"
)

var (
	tableHeader = color.New(color.FgCyan, color.Bold)
	stepHeader  = color.New(color.FgYellow)
)

func fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}

func baseSansExt(fname string) string {
	base := filepath.Base(fname)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Represents the state used when processing a command.
type Action struct {
	cmd   *cobra.Command
	quiet bool
	log   logr.Logger
	start time.Time
}

func newAction(cmd *cobra.Command) *Action {
	result := &Action{cmd: cmd, start: time.Now()}
	result.quiet = result.getBool("quiet")
	result.log = newLogger(result.getInt("verbosity"))
	return result
}

func (a *Action) getBool(name string) bool {
	result, _ := a.cmd.Flags().GetBool(name)
	return result
}

func (a *Action) getInt(name string) int {
	result, _ := a.cmd.Flags().GetInt(name)
	return result
}

func (a *Action) getString(name string) string {
	result, _ := a.cmd.Flags().GetString(name)
	return result
}

func (a *Action) getStringArray(name string) []string {
	result, _ := a.cmd.Flags().GetStringArray(name)
	return result
}

func (a *Action) getDuration(name string) time.Duration {
	result, _ := a.cmd.Flags().GetDuration(name)
	return result
}

// Print a status message to stderr unless quiet.
func (a *Action) Msg(format string, args ...any) {
	if !a.quiet {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// load builds the graph and reads the optional script.
func (a *Action) load(args []string) (*graph.Graph, *graph.Script) {
	spec, err := graph.LoadFile(args[0])
	if err != nil {
		fatal("%s", errors.Wrapf(err, "graph %s", args[0]))
	}
	g, err := graph.Build(spec, a.log)
	if err != nil {
		fatal("%s", errors.Wrapf(err, "graph %s", args[0]))
	}

	script := &graph.Script{}
	if len(args) > 1 {
		if script, err = graph.LoadScript(args[1]); err != nil {
			fatal("%s", errors.Wrapf(err, "script %s", args[1]))
		}
	}
	a.Msg("loaded %d tables and %d views", len(spec.Tables), len(spec.Views))
	return g, script
}

// views returns the views of a graph in build order.
func views(g *graph.Graph) []table.Table {
	ret := []table.Table{}
	for _, name := range g.Names() {
		if g.Kind(name) == "table" {
			continue
		}
		t, _ := g.Table(name)
		ret = append(ret, t)
	}
	return ret
}

func runGraph(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	g, script := action.load(args)
	defer g.Close()

	var adapters []*batch.Adapter
	if action.getBool("watch") {
		for _, t := range views(g) {
			name := t.Name()
			adapters = append(adapters, batch.New(t, table.ObserverFunc(func(ev table.Event) error {
				fmt.Printf("  %s: %s\n", name, ev)
				return nil
			}), batch.Options{Logger: &action.log}))
		}
	}

	runner := graph.NewRunner(g, action.log)
	err := runner.Run(script, func(i int, step graph.Step) error {
		if len(adapters) == 0 {
			return nil
		}
		stepHeader.Printf("step #%d: %s\n", i, step)
		for _, a := range adapters {
			if err := a.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
	for _, a := range adapters {
		a.Close()
	}
	if err != nil {
		fatal("%s", errors.Wrapf(err, "script %s", args[len(args)-1]))
	}

	names := action.getStringArray("table")
	if len(names) == 0 {
		names = g.Names()
	}
	for _, name := range names {
		t, err := g.Table(name)
		if err != nil {
			fatal("%s", err)
		}
		printTable(os.Stdout, t)
	}

	if action.getBool("dump") {
		cfg := spew.ConfigState{Indent: "  ", MaxDepth: 4, DisablePointerAddresses: true, SortKeys: true}
		for _, name := range names {
			t, _ := g.Table(name)
			tableHeader.Printf("# %s\n", name)
			cfg.Fdump(os.Stdout, t)
		}
	}

	action.Msg("done in %s", time.Since(action.start))
}

// printTable prints the live rows of a table in replay order.
func printTable(w io.Writer, t table.Table) {
	tableHeader.Fprintf(w, "%s (%d rows)\n", t.Name(), t.RowCount())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	cols := t.Columns()
	fmt.Fprint(tw, "row")
	for _, c := range cols {
		fmt.Fprintf(tw, "\t%s", c.Name())
	}
	fmt.Fprintln(tw)
	for _, row := range t.Rows() {
		fmt.Fprint(tw, row)
		for _, c := range cols {
			fmt.Fprintf(tw, "\t%v", c.Any(row))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func visualizeGraph(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	spec, err := graph.LoadFile(args[0])
	if err != nil {
		fatal("%s", errors.Wrapf(err, "graph %s", args[0]))
	}
	gen, err := visualize.NewGenerator(action.getString("output"))
	if err != nil {
		fatal("%s", err)
	}
	name := action.getString("name")
	if name == "" {
		name = baseSansExt(args[0])
	}
	fmt.Print(gen.Generate(visualize.BuildGraph(name, spec)))
}

func serveGraph(cmd *cobra.Command, args []string) {
	action := newAction(cmd)
	g, script := action.load(args)
	defer g.Close()

	srv := server.New(action.log)
	for _, name := range g.Names() {
		t, _ := g.Table(name)
		srv.Register(t)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if action.getBool("watch") {
		for _, t := range views(g) {
			name := t.Name()
			a := batch.New(t, table.ObserverFunc(func(ev table.Event) error {
				action.log.Info("change", "table", name, "event", ev.String())
				return nil
			}), batch.Options{Logger: &action.log})
			go func() {
				if err := a.Start(ctx); err != nil {
					action.log.Error(err, "change log stopped", "table", name)
				}
			}()
		}
	}

	interval := action.getDuration("step-interval")
	go func() {
		runner := graph.NewRunner(g, action.log)
		for i, step := range script.Steps {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
			if err := srv.Do(func() error { return runner.Apply(step) }); err != nil {
				action.log.Error(err, "script failed", "step", i)
				cancel()
				return
			}
		}
		action.log.Info("script finished", "steps", len(script.Steps))
	}()

	action.Msg("serving on %s", action.getString("addr"))
	if err := srv.Start(ctx, action.getString("addr")); err != nil {
		fatal("%s", errors.Wrap(err, "server"))
	}
}

func printVersion(cmd *cobra.Command, _ []string) {
	fmt.Printf("dtable %s\n", buildInfo())
}
