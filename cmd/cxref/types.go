package main

import (
	"time"

	"github.com/jward/cxref"
)

// CLIResult is the top-level JSON envelope for index and query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIIndexStats reports what an index run did.
type CLIIndexStats struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// CLIUnit is a JSON-friendly stored unit.
type CLIUnit struct {
	ID      int64  `json:"id"`
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	BuildID string `json:"build_id"`
	BuiltAt string `json:"built_at"`
}

// CLISymbol is a symbol record and the file it was built from.
type CLISymbol struct {
	File          string `json:"file"`
	Kind          string `json:"kind"`
	ID            int    `json:"id"`
	USR           string `json:"usr"`
	ShortName     string `json:"short_name"`
	QualifiedName string `json:"qualified_name"`
	Declaration   string `json:"declaration,omitempty"`
	Definition    string `json:"definition,omitempty"`
}

// CLIUse is one occurrence of a symbol.
type CLIUse struct {
	File     string `json:"file"`
	Kind     string `json:"kind"`
	USR      string `json:"usr"`
	Position string `json:"position"`
}

// CLICallSite is the far end of a call edge.
type CLICallSite struct {
	USR      string `json:"usr"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

func statsToCLI(s cxref.IndexStats) CLIIndexStats {
	return CLIIndexStats{Indexed: s.Indexed, Unchanged: s.Unchanged, Skipped: s.Skipped, Failed: s.Failed}
}

func unitToCLI(u *cxref.Unit) CLIUnit {
	return CLIUnit{
		ID:      u.ID,
		Path:    u.Path,
		Hash:    u.Hash,
		BuildID: u.BuildID,
		BuiltAt: u.BuiltAt.UTC().Format(time.RFC3339),
	}
}

func symbolToCLI(s *cxref.UnitSymbol) CLISymbol {
	return CLISymbol{
		File:          s.UnitPath,
		Kind:          s.Kind,
		ID:            s.LocalID,
		USR:           s.USR,
		ShortName:     s.ShortName,
		QualifiedName: s.QualifiedName,
		Declaration:   s.Declaration,
		Definition:    s.Definition,
	}
}
