package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jward/cxref/internal/index"
)

// SaveUnit stores db as the current database of the unit at path,
// replacing whatever was stored for it before, within one transaction.
// Every save gets a fresh build id.
func (s *Store) SaveUnit(path, hash string, db *index.Database) (*Unit, error) {
	edges, err := flattenEdges(db.Functions)
	if err != nil {
		return nil, fmt.Errorf("save unit %s: %w", path, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("save unit: begin: %w", err)
	}
	defer tx.Rollback()

	var oldID int64
	err = tx.QueryRow("SELECT id FROM units WHERE path = ?", path).Scan(&oldID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("save unit: lookup: %w", err)
	default:
		if err := deleteUnitsTx(tx, []int64{oldID}); err != nil {
			return nil, fmt.Errorf("save unit: replace: %w", err)
		}
	}

	u := &Unit{Path: path, Hash: hash, BuildID: uuid.NewString(), BuiltAt: time.Now().UTC().Truncate(time.Second)}
	res, err := tx.Exec(
		"INSERT INTO units (path, hash, build_id, built_at) VALUES (?, ?, ?, ?)",
		u.Path, u.Hash, u.BuildID, u.BuiltAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save unit: insert unit: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("save unit: last insert id: %w", err)
	}

	w, err := newUnitWriter(tx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("save unit: %w", err)
	}
	defer w.close()

	for _, r := range db.Types {
		if err := w.symbol(index.Type, r.ID, r.USR, r.ShortName, r.QualifiedName, r.Declaration, r.Definition, r.AllUses); err != nil {
			return nil, fmt.Errorf("save unit: type %q: %w", r.USR, err)
		}
	}
	for _, r := range db.Functions {
		if err := w.symbol(index.Function, r.ID, r.USR, r.ShortName, r.QualifiedName, r.Declaration, r.Definition, r.AllUses); err != nil {
			return nil, fmt.Errorf("save unit: function %q: %w", r.USR, err)
		}
	}
	for _, r := range db.Variables {
		if err := w.symbol(index.Variable, r.ID, r.USR, r.ShortName, r.QualifiedName, r.Declaration, r.Definition, r.AllUses); err != nil {
			return nil, fmt.Errorf("save unit: variable %q: %w", r.USR, err)
		}
	}
	for _, e := range edges {
		if _, err := w.edge.Exec(u.ID, e.caller, e.callee, e.callerOrdinal, e.calleeOrdinal, e.position); err != nil {
			return nil, fmt.Errorf("save unit: call edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save unit: commit: %w", err)
	}
	return u, nil
}

// unitWriter holds the prepared inserts of one SaveUnit transaction.
type unitWriter struct {
	unitID int64
	sym    *sql.Stmt
	use    *sql.Stmt
	edge   *sql.Stmt
}

func newUnitWriter(tx *sql.Tx, unitID int64) (*unitWriter, error) {
	w := &unitWriter{unitID: unitID}
	var err error
	if w.sym, err = tx.Prepare(
		`INSERT INTO symbols (unit_id, kind, local_id, usr, short_name, qualified_name, declaration, definition)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return nil, err
	}
	if w.use, err = tx.Prepare(
		"INSERT INTO uses (unit_id, kind, local_id, ordinal, position) VALUES (?, ?, ?, ?, ?)"); err != nil {
		w.close()
		return nil, err
	}
	if w.edge, err = tx.Prepare(
		`INSERT INTO call_edges (unit_id, caller_id, callee_id, caller_ordinal, callee_ordinal, position)
		 VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
		w.close()
		return nil, err
	}
	return w, nil
}

func (w *unitWriter) close() {
	for _, st := range []*sql.Stmt{w.sym, w.use, w.edge} {
		if st != nil {
			st.Close()
		}
	}
}

func (w *unitWriter) symbol(kind index.Kind, id int, usr, short, qualified, decl, def string, uses []string) error {
	if _, err := w.sym.Exec(w.unitID, kind.String(), id, usr, short, qualified, nullString(decl), nullString(def)); err != nil {
		return err
	}
	for i, pos := range uses {
		if _, err := w.use.Exec(w.unitID, kind.String(), id, i, pos); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// storedEdge is one call edge with its index in the caller's callees
// list and in the callee's callers list.
type storedEdge struct {
	caller, callee int
	callerOrdinal  int
	calleeOrdinal  int
	position       string
}

// flattenEdges pairs every callees entry with its mirror callers entry.
// Duplicate edges pair up in order.
func flattenEdges(funcs []index.FunctionRecord) ([]storedEdge, error) {
	type key struct {
		caller, callee int
		position       string
	}
	var edges []storedEdge
	pending := make(map[key][]int)
	for _, f := range funcs {
		for i, s := range f.Callees {
			peer, pos, err := splitEdge(s)
			if err != nil {
				return nil, err
			}
			k := key{f.ID, peer, pos}
			pending[k] = append(pending[k], len(edges))
			edges = append(edges, storedEdge{caller: f.ID, callee: peer, callerOrdinal: i, calleeOrdinal: -1, position: pos})
		}
	}
	for _, f := range funcs {
		for i, s := range f.Callers {
			peer, pos, err := splitEdge(s)
			if err != nil {
				return nil, err
			}
			k := key{peer, f.ID, pos}
			q := pending[k]
			if len(q) == 0 {
				return nil, fmt.Errorf("caller edge %q of function %d has no matching callee edge", s, f.ID)
			}
			edges[q[0]].calleeOrdinal = i
			pending[k] = q[1:]
		}
	}
	for _, e := range edges {
		if e.calleeOrdinal < 0 {
			return nil, fmt.Errorf("callee edge %d@%s of function %d has no matching caller edge", e.callee, e.position, e.caller)
		}
	}
	return edges, nil
}

// splitEdge splits "id@position" keeping the position text verbatim.
func splitEdge(s string) (int, string, error) {
	idPart, pos, ok := strings.Cut(s, "@")
	if !ok {
		return 0, "", fmt.Errorf("malformed edge %q", s)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, "", fmt.Errorf("malformed edge %q: %w", s, err)
	}
	return id, pos, nil
}
