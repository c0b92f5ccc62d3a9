package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/cxref"
	"github.com/jward/cxref/internal/config"
)

var (
	flagDB       string
	flagConfig   string
	flagFormat   string
	flagLogLevel string
)

// cfg is the loaded configuration with flag overrides applied.
var cfg *config.Config

// stdout receives command output; tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cxref",
	Short:         "Cross-reference indexer for C and C++",
	Long:          "cxref builds per-file cross-reference databases of types, functions, variables and call edges, and keeps them in a SQLite index.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: from config, relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultFile, "configuration file")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (default: from config)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(unitsCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(usesCmd)
	rootCmd.AddCommand(callersCmd)
	rootCmd.AddCommand(calleesCmd)
}

// loadConfig reads the configuration file, applies flag overrides and
// installs the default logger.
func loadConfig(cmd *cobra.Command) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, _ := config.ParseLevel(c.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	cfg = c
	return nil
}

var (
	flagForce     bool
	flagLanguages string
	flagMarker    string
	flagWorkers   int
	flagSerial    bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index source files into the database",
	Long:  "Builds a database for every changed C/C++ file and stores it. A single directory argument is walked, honoring .gitignore and exclude patterns, and units whose files are gone are pruned.",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
	indexCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. c,cpp)")
	indexCmd.Flags().StringVar(&flagMarker, "indirect-marker", "", "indirect marker policy: address-taken|all|none")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel builds (default: from config, 0 = one per CPU)")
	indexCmd.Flags().BoolVar(&flagSerial, "serial", false, "build files one at a time")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	if len(args) == 0 {
		args = []string{"."}
	}
	targets := make([]string, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return fmt.Errorf("resolving path %q: %w", a, err)
		}
		targets[i] = abs
	}
	dir := ""
	if info, err := os.Stat(targets[0]); err == nil && info.IsDir() {
		if len(targets) > 1 {
			return fmt.Errorf("index takes one directory or a list of files")
		}
		dir = targets[0]
	}

	base := dir
	if base == "" {
		base = filepath.Dir(targets[0])
	}
	dbPath := resolveDBPath(findRepoRoot(base))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database for --force: %w", err)
			}
		}
		slog.Info("cleared database", "path", dbPath)
	}

	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	engine, err := cxref.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	ctx := context.Background()
	var stats cxref.IndexStats
	if dir != "" {
		stats, err = engine.IndexDirectory(ctx, dir)
	} else {
		stats, err = engine.IndexFiles(ctx, targets)
	}
	if err != nil {
		return outputError("index", fmt.Errorf("indexing: %w", err))
	}

	slog.Info("indexed", "target", args, "duration", time.Since(start).Round(time.Millisecond), "database", dbPath)
	return outputResult(CLIResult{Command: "index", Results: statsToCLI(stats)})
}

// engineOptions merges config values with index flags.
func engineOptions(cmd *cobra.Command) ([]cxref.Option, error) {
	langs := cfg.Languages
	if flagLanguages != "" {
		langs = strings.Split(flagLanguages, ",")
		for i := range langs {
			langs[i] = strings.TrimSpace(langs[i])
		}
	}
	c := *cfg
	c.Languages = langs
	if cmd.Flags().Changed("indirect-marker") {
		c.IndirectMarker = flagMarker
	}
	if cmd.Flags().Changed("workers") {
		c.Workers = flagWorkers
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return []cxref.Option{
		cxref.WithLanguages(c.Languages...),
		cxref.WithMarkerPolicy(c.MarkerPolicy()),
		cxref.WithParallel(c.IsParallel() && !flagSerial),
		cxref.WithWorkers(c.Workers),
		cxref.WithExclude(c.Exclude...),
		cxref.WithLogger(slog.Default()),
	}, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from --db or the config,
// relative paths taken from repoRoot.
func resolveDBPath(repoRoot string) string {
	p := flagDB
	if p == "" {
		p = cfg.DB
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}
