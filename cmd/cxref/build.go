package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/cxref/internal/frontend"
	"github.com/jward/cxref/internal/index"
	cxrt "github.com/jward/cxref/internal/runtime"
	"github.com/jward/cxref/scripts"
)

var flagBuildMarker string

var buildCmd = &cobra.Command{
	Use:   "build <file>",
	Short: "Build the cross-reference database for one file",
	Long:  "Parses a C/C++ file, folds its events into a database and writes it to stdout. Nothing is stored.",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&flagBuildMarker, "indirect-marker", "", "indirect marker policy: address-taken|all|none")
}

func runBuild(cmd *cobra.Command, args []string) error {
	policy := cfg.MarkerPolicy()
	if cmd.Flags().Changed("indirect-marker") {
		p, err := frontend.ParseMarkerPolicy(flagBuildMarker)
		if err != nil {
			return err
		}
		policy = p
	}
	events, err := frontend.New(frontend.WithMarkerPolicy(policy)).ExtractFile(context.Background(), args[0])
	if err != nil {
		return outputError("build", err)
	}
	db, err := index.BuildEvents(events)
	if err != nil {
		return outputError("build", err)
	}
	return outputDatabase(db)
}

var replayCmd = &cobra.Command{
	Use:   "replay [events.jsonl]",
	Short: "Build a database from a recorded event stream",
	Long:  "Reads JSON Lines events (one per line, terminated by an end event) from a file or stdin and writes the built database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	db, err := index.Build(index.NewStreamReader(r))
	if err != nil {
		return outputError("replay", err)
	}
	return outputDatabase(db)
}

var (
	flagScriptsDir string
	flagVars       []string
	flagEmit       bool
)

var scriptCmd = &cobra.Command{
	Use:   "script <path>",
	Short: "Build a database from a Risor event script",
	Long:  "Runs a Risor script whose declare/define/reference/call/end calls form the event stream. Paths resolve against --scripts-dir, or the bundled scripts when it is unset.",
	Args:  cobra.ExactArgs(1),
	RunE:  runScript,
}

func init() {
	scriptCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded")
	scriptCmd.Flags().StringArrayVar(&flagVars, "var", nil, "script global as name=value (repeatable)")
	scriptCmd.Flags().BoolVar(&flagEmit, "emit", false, "write the event stream as JSON Lines instead of building it")
}

func runScript(cmd *cobra.Command, args []string) error {
	extras := make(map[string]any, len(flagVars))
	for _, v := range flagVars {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --var %q: expected name=value", v)
		}
		extras[name] = value
	}

	opts := []cxrt.RuntimeOption{cxrt.WithLogger(slog.Default())}
	if flagScriptsDir == "" {
		opts = append(opts, cxrt.WithRuntimeFS(scripts.FS))
	}
	rt := cxrt.NewRuntime(flagScriptsDir, opts...)
	events, err := rt.RunScript(context.Background(), args[0], extras)
	if err != nil {
		return outputError("script", err)
	}
	if flagEmit {
		return index.NewStreamWriter(stdout).WriteAll(events)
	}
	db, err := index.BuildEvents(events)
	if err != nil {
		return outputError("script", err)
	}
	return outputDatabase(db)
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the stored database for an indexed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return err
	}
	engine, err := openEngine()
	if err != nil {
		return outputError("dump", err)
	}
	defer engine.Close()

	db, err := engine.Query().Unit(file)
	if err != nil {
		return outputError("dump", err)
	}
	if db == nil {
		return outputError("dump", fmt.Errorf("%s is not indexed", file))
	}
	return outputDatabase(db)
}
