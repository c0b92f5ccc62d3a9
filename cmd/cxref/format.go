package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jward/cxref"
)

// formatDatabaseText lists every record of a database as aligned columns.
func formatDatabaseText(w io.Writer, db *cxref.Database) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tNAME\tDECLARATION\tDEFINITION\tUSES\tUSR")
	row := func(kind string, id int, name, decl, def string, uses int, usr string) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n", kind, id, name, dash(decl), dash(def), uses, usr)
	}
	for _, t := range db.Types {
		row("type", t.ID, t.QualifiedName, t.Declaration, t.Definition, len(t.AllUses), t.USR)
	}
	for _, f := range db.Functions {
		row("function", f.ID, f.QualifiedName, f.Declaration, f.Definition, len(f.AllUses), f.USR)
	}
	for _, v := range db.Variables {
		row("variable", v.ID, v.QualifiedName, v.Declaration, v.Definition, len(v.AllUses), v.USR)
	}
	tw.Flush()

	for _, f := range db.Functions {
		if len(f.Callees) > 0 {
			fmt.Fprintf(w, "\n%s calls: %s", f.QualifiedName, strings.Join(f.Callees, " "))
		}
	}
	if hasCalls(db) {
		fmt.Fprintln(w)
	}
}

func hasCalls(db *cxref.Database) bool {
	for _, f := range db.Functions {
		if len(f.Callees) > 0 {
			return true
		}
	}
	return false
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatStatsText formats an index summary.
func formatStatsText(w io.Writer, s CLIIndexStats) {
	fmt.Fprintf(w, "indexed %d, unchanged %d, skipped %d, failed %d\n", s.Indexed, s.Unchanged, s.Skipped, s.Failed)
}

// formatUnitsText formats CLIUnit results as aligned columns.
func formatUnitsText(w io.Writer, units []CLIUnit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tBUILT")
	for _, u := range units {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Path, u.BuiltAt)
	}
	tw.Flush()
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKIND\tID\tNAME\tDECLARATION\tDEFINITION")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.File, s.Kind, s.ID, s.QualifiedName, dash(s.Declaration), dash(s.Definition))
	}
	tw.Flush()
}

// formatUsesText formats CLIUse results as "file position" lines.
func formatUsesText(w io.Writer, uses []CLIUse) {
	for _, u := range uses {
		fmt.Fprintf(w, "%s\t%s\n", u.File, u.Position)
	}
}

// formatCallSitesText formats CLICallSite results as aligned columns.
func formatCallSitesText(w io.Writer, sites []CLICallSite) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOSITION\tUSR")
	for _, s := range sites {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Position, s.USR)
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIIndexStats:
		formatStatsText(stdout, v)
	case []CLIUnit:
		formatUnitsText(stdout, v)
	case []CLISymbol:
		formatSymbolsText(stdout, v)
	case []CLIUse:
		formatUsesText(stdout, v)
	case []CLICallSite:
		formatCallSitesText(stdout, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
