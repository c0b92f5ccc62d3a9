package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/cxref"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError("units", err)
		}
		defer engine.Close()

		units, err := engine.Query().Units()
		if err != nil {
			return outputError("units", err)
		}
		out := make([]CLIUnit, 0, len(units))
		for _, u := range units {
			out = append(out, unitToCLI(u))
		}
		return outputResult(CLIResult{Command: "units", Results: out, TotalCount: intPtr(len(out))})
	},
}

var flagByName bool

var symbolsCmd = &cobra.Command{
	Use:   "symbols <usr>",
	Short: "Find the records for a USR across indexed files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError("symbols", err)
		}
		defer engine.Close()

		q := engine.Query()
		var syms []*cxref.UnitSymbol
		if flagByName {
			syms, err = q.SymbolsNamed(args[0])
		} else {
			syms, err = q.Symbols(args[0])
		}
		if err != nil {
			return outputError("symbols", err)
		}
		out := make([]CLISymbol, 0, len(syms))
		for _, s := range syms {
			out = append(out, symbolToCLI(s))
		}
		return outputResult(CLIResult{Command: "symbols", Results: out, TotalCount: intPtr(len(out))})
	},
}

func init() {
	symbolsCmd.Flags().BoolVar(&flagByName, "name", false, "match short or qualified name instead of USR")
}

var usesCmd = &cobra.Command{
	Use:   "uses <usr>",
	Short: "List every occurrence of a USR across indexed files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return outputError("uses", err)
		}
		defer engine.Close()

		uses, err := engine.Query().Occurrences(args[0])
		if err != nil {
			return outputError("uses", err)
		}
		out := make([]CLIUse, 0, len(uses))
		for _, u := range uses {
			out = append(out, CLIUse{File: u.UnitPath, Kind: u.Kind, USR: u.USR, Position: u.Position})
		}
		return outputResult(CLIResult{Command: "uses", Results: out, TotalCount: intPtr(len(out))})
	},
}

var callersCmd = &cobra.Command{
	Use:   "callers <file> <usr>",
	Short: "Who calls this function within a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEdges("callers", args, (*cxref.QueryBuilder).Callers)
	},
}

var calleesCmd = &cobra.Command{
	Use:   "callees <file> <usr>",
	Short: "What does this function call within a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEdges("callees", args, (*cxref.QueryBuilder).Callees)
	},
}

func runEdges(command string, args []string, query func(*cxref.QueryBuilder, string, string) ([]cxref.CallSite, error)) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return outputError(command, err)
	}
	engine, err := openEngine()
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	sites, err := query(engine.Query(), file, args[1])
	if err != nil {
		return outputError(command, err)
	}
	out := make([]CLICallSite, 0, len(sites))
	for _, s := range sites {
		out = append(out, CLICallSite{USR: s.USR, Name: s.QualifiedName, Position: s.Position})
	}
	return outputResult(CLIResult{Command: command, Results: out, TotalCount: intPtr(len(out))})
}

// --- Helpers ---

// openEngine opens the Engine over an existing database from --db or the
// config.
func openEngine() (*cxref.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'cxref index' first)", dbPath)
	}
	return cxref.New(dbPath)
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

func intPtr(n int) *int { return &n }

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputDatabase writes a database in the output format: JSON exactly as
// the builder encodes it, or a symbol table.
func outputDatabase(db *cxref.Database) error {
	if flagFormat == "text" {
		formatDatabaseText(stdout, db)
		return nil
	}
	return db.WriteJSON(stdout)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}
