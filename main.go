package main

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l7mp/dtable/internal/buildinfo"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

func addCommands(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "run graph [script]",
		Short: "Build a table graph, apply a mutation script and print every table",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runGraph}
	cmd.Flags().StringArray("table", nil, "print only the given tables (default: all)")
	cmd.Flags().Bool("watch", false, "print the change log of every view after each step")
	cmd.Flags().Bool("dump", false, "dump the internal state of the graph after the script")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "visualize graph",
		Short: "Render a table graph as a diagram",
		Args:  cobra.ExactArgs(1),
		Run:   visualizeGraph}
	cmd.Flags().String("output", "dot", "output format, 'dot' or 'mermaid'")
	cmd.Flags().String("name", "", "diagram title (default: graph file name)")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "serve graph [script]",
		Short: "Stream the tables of a graph over WebSocket while applying a mutation script",
		Args:  cobra.RangeArgs(1, 2),
		Run:   serveGraph}
	cmd.Flags().String("addr", ":8089", "listen address")
	cmd.Flags().Duration("step-interval", 0, "delay between script steps")
	cmd.Flags().Bool("watch", false, "log the change events of every view periodically")
	root.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run:   printVersion}
	root.AddCommand(cmd)
}

func newLogger(verbosity int) logr.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zl, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		fatal("cannot create logger: %s", err)
	}
	return zapr.NewLogger(zl).WithName("dtable")
}

func buildInfo() buildinfo.BuildInfo {
	return buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
}

func main() {
	var root = &cobra.Command{Use: "dtable", Short: "Incremental in-memory relational tables"}
	root.PersistentFlags().IntP("verbosity", "v", 0, "log verbosity, 2 for lifecycle, 4 for every event")
	root.PersistentFlags().BoolP("quiet", "q", false, "silence status output")
	addCommands(root)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
