package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/jward/cxref/internal/index"
)

const unitColumns = "id, path, hash, build_id, built_at"

func scanUnit(scanner interface{ Scan(...any) error }) (*Unit, error) {
	u := &Unit{}
	if err := scanner.Scan(&u.ID, &u.Path, &u.Hash, &u.BuildID, &u.BuiltAt); err != nil {
		return nil, err
	}
	return u, nil
}

// UnitByPath returns the unit stored for path, or nil when there is none.
func (s *Store) UnitByPath(path string) (*Unit, error) {
	u, err := scanUnit(s.db.QueryRow("SELECT "+unitColumns+" FROM units WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by path: %w", err)
	}
	return u, nil
}

// Units lists every stored unit ordered by path.
func (s *Store) Units() ([]*Unit, error) {
	rows, err := s.db.Query("SELECT " + unitColumns + " FROM units ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}
	defer rows.Close()
	var units []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// PruneUnits deletes every unit whose path is not in keep and returns the
// deleted paths.
func (s *Store) PruneUnits(keep []string) ([]string, error) {
	units, err := s.Units()
	if err != nil {
		return nil, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}
	var ids []int64
	var removed []string
	for _, u := range units {
		if !keepSet[u.Path] {
			ids = append(ids, u.ID)
			removed = append(removed, u.Path)
		}
	}
	if err := s.DeleteUnits(ids); err != nil {
		return nil, err
	}
	return removed, nil
}

// LoadUnit rebuilds the database saved for a unit. Its JSON encoding is
// byte-identical to that of the database passed to SaveUnit.
func (s *Store) LoadUnit(unitID int64) (*index.Database, error) {
	db := index.NewDatabase()

	rows, err := s.db.Query(
		`SELECT kind, local_id, usr, short_name, qualified_name, declaration, definition
		 FROM symbols WHERE unit_id = ? ORDER BY kind, local_id`, unitID)
	if err != nil {
		return nil, fmt.Errorf("load unit: symbols: %w", err)
	}
	for rows.Next() {
		var (
			kindName  string
			r         index.SymbolRecord
			decl, def sql.NullString
		)
		if err := rows.Scan(&kindName, &r.ID, &r.USR, &r.ShortName, &r.QualifiedName, &decl, &def); err != nil {
			rows.Close()
			return nil, fmt.Errorf("load unit: scan symbol: %w", err)
		}
		r.Declaration, r.Definition, r.AllUses = decl.String, def.String, []string{}
		kind, err := index.ParseKind(kindName)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("load unit: %w", err)
		}
		if r.ID != db.Len(kind) {
			rows.Close()
			return nil, fmt.Errorf("load unit: %s ids are not dense at %d", kind, r.ID)
		}
		switch kind {
		case index.Type:
			db.Types = append(db.Types, r)
		case index.Variable:
			db.Variables = append(db.Variables, r)
		case index.Function:
			db.Functions = append(db.Functions, index.FunctionRecord{
				ID: r.ID, USR: r.USR, ShortName: r.ShortName, QualifiedName: r.QualifiedName,
				Declaration: r.Declaration, Definition: r.Definition, AllUses: r.AllUses,
			})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load unit: symbols: %w", err)
	}

	if err := s.loadUses(unitID, db); err != nil {
		return nil, err
	}
	if err := s.loadEdges(unitID, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (s *Store) loadUses(unitID int64, db *index.Database) error {
	rows, err := s.db.Query(
		"SELECT kind, local_id, position FROM uses WHERE unit_id = ? ORDER BY kind, local_id, ordinal", unitID)
	if err != nil {
		return fmt.Errorf("load unit: uses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kindName, pos string
			id            int
		)
		if err := rows.Scan(&kindName, &id, &pos); err != nil {
			return fmt.Errorf("load unit: scan use: %w", err)
		}
		kind, err := index.ParseKind(kindName)
		if err != nil {
			return fmt.Errorf("load unit: %w", err)
		}
		if id < 0 || id >= db.Len(kind) {
			return fmt.Errorf("load unit: use of unknown %s %d", kind, id)
		}
		switch kind {
		case index.Type:
			db.Types[id].AllUses = append(db.Types[id].AllUses, pos)
		case index.Variable:
			db.Variables[id].AllUses = append(db.Variables[id].AllUses, pos)
		case index.Function:
			db.Functions[id].AllUses = append(db.Functions[id].AllUses, pos)
		}
	}
	return rows.Err()
}

func (s *Store) loadEdges(unitID int64, db *index.Database) error {
	rows, err := s.db.Query(
		`SELECT caller_id, callee_id, caller_ordinal, callee_ordinal, position
		 FROM call_edges WHERE unit_id = ? ORDER BY caller_id, caller_ordinal`, unitID)
	if err != nil {
		return fmt.Errorf("load unit: call edges: %w", err)
	}
	defer rows.Close()

	var edges []storedEdge
	n := len(db.Functions)
	for rows.Next() {
		var e storedEdge
		if err := rows.Scan(&e.caller, &e.callee, &e.callerOrdinal, &e.calleeOrdinal, &e.position); err != nil {
			return fmt.Errorf("load unit: scan call edge: %w", err)
		}
		if e.caller < 0 || e.caller >= n || e.callee < 0 || e.callee >= n {
			return fmt.Errorf("load unit: call edge %d->%d names an unknown function", e.caller, e.callee)
		}
		edges = append(edges, e)
		f := &db.Functions[e.caller]
		f.Callees = append(f.Callees, fmt.Sprintf("%d@%s", e.callee, e.position))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load unit: call edges: %w", err)
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].callee != edges[j].callee {
			return edges[i].callee < edges[j].callee
		}
		return edges[i].calleeOrdinal < edges[j].calleeOrdinal
	})
	for _, e := range edges {
		f := &db.Functions[e.callee]
		f.Callers = append(f.Callers, fmt.Sprintf("%d@%s", e.caller, e.position))
	}
	return nil
}

// SymbolsByUSR returns the records stored for usr across all units,
// ordered by unit path.
func (s *Store) SymbolsByUSR(usr string) ([]*UnitSymbol, error) {
	return s.querySymbols("s.usr = ?", usr)
}

// SymbolsByName returns the records whose short or qualified name is name.
func (s *Store) SymbolsByName(name string) ([]*UnitSymbol, error) {
	return s.querySymbols("(s.short_name = ? OR s.qualified_name = ?)", name, name)
}

func (s *Store) querySymbols(where string, args ...any) ([]*UnitSymbol, error) {
	rows, err := s.db.Query(
		`SELECT s.unit_id, u.path, s.kind, s.local_id, s.usr, s.short_name, s.qualified_name, s.declaration, s.definition
		 FROM symbols s JOIN units u ON u.id = s.unit_id
		 WHERE `+where+` ORDER BY u.path, s.kind, s.local_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	var out []*UnitSymbol
	for rows.Next() {
		us := &UnitSymbol{}
		var decl, def sql.NullString
		if err := rows.Scan(&us.UnitID, &us.UnitPath, &us.Kind, &us.LocalID, &us.USR,
			&us.ShortName, &us.QualifiedName, &decl, &def); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		us.Declaration, us.Definition = decl.String, def.String
		out = append(out, us)
	}
	return out, rows.Err()
}

// UsesByUSR returns every stored occurrence of usr, grouped by unit path
// and in use order within a unit.
func (s *Store) UsesByUSR(usr string) ([]*UnitUse, error) {
	rows, err := s.db.Query(
		`SELECT u.path, s.kind, s.usr, x.position
		 FROM symbols s
		 JOIN units u ON u.id = s.unit_id
		 JOIN uses x ON x.unit_id = s.unit_id AND x.kind = s.kind AND x.local_id = s.local_id
		 WHERE s.usr = ?
		 ORDER BY u.path, x.ordinal`, usr)
	if err != nil {
		return nil, fmt.Errorf("uses by usr: %w", err)
	}
	defer rows.Close()
	var out []*UnitUse
	for rows.Next() {
		uu := &UnitUse{}
		if err := rows.Scan(&uu.UnitPath, &uu.Kind, &uu.USR, &uu.Position); err != nil {
			return nil, fmt.Errorf("scan use: %w", err)
		}
		out = append(out, uu)
	}
	return out, rows.Err()
}

// Metadata returns the value stored under key, or "" when unset.
func (s *Store) Metadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
