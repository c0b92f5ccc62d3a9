package cxref

import (
	"fmt"

	"github.com/jward/cxref/internal/index"
	"github.com/jward/cxref/internal/store"
)

// QueryBuilder answers questions over the stored units.
type QueryBuilder struct {
	store *store.Store
}

// CallSite is one end of a call edge resolved to the function on the other
// side.
type CallSite struct {
	USR           string
	QualifiedName string
	Position      string
}

// Units lists every stored unit ordered by path.
func (q *QueryBuilder) Units() ([]*Unit, error) {
	return q.store.Units()
}

// Unit returns the database stored for path, or nil when the file has not
// been indexed.
func (q *QueryBuilder) Unit(path string) (*Database, error) {
	u, err := q.store.UnitByPath(path)
	if err != nil {
		return nil, fmt.Errorf("unit: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	db, err := q.store.LoadUnit(u.ID)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", path, err)
	}
	return db, nil
}

// Symbols returns the records for usr in every unit that mentions it.
func (q *QueryBuilder) Symbols(usr string) ([]*UnitSymbol, error) {
	return q.store.SymbolsByUSR(usr)
}

// SymbolsNamed returns the records whose short or qualified name is name.
func (q *QueryBuilder) SymbolsNamed(name string) ([]*UnitSymbol, error) {
	return q.store.SymbolsByName(name)
}

// Occurrences returns every stored use of usr across units.
func (q *QueryBuilder) Occurrences(usr string) ([]*UnitUse, error) {
	return q.store.UsesByUSR(usr)
}

// Callers returns the call sites of the function usr within the unit at
// path, in recorded order.
func (q *QueryBuilder) Callers(path, usr string) ([]CallSite, error) {
	return q.edges(path, usr, func(f *index.FunctionRecord) []string { return f.Callers })
}

// Callees returns the calls made by the function usr within the unit at
// path, in recorded order.
func (q *QueryBuilder) Callees(path, usr string) ([]CallSite, error) {
	return q.edges(path, usr, func(f *index.FunctionRecord) []string { return f.Callees })
}

func (q *QueryBuilder) edges(path, usr string, pick func(*index.FunctionRecord) []string) ([]CallSite, error) {
	db, err := q.Unit(path)
	if err != nil || db == nil {
		return nil, err
	}
	f := db.FunctionByUSR(usr)
	if f == nil {
		return nil, nil
	}
	var sites []CallSite
	for _, e := range pick(f) {
		id, pos, err := index.ParseEdge(e)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", e, err)
		}
		if id < 0 || id >= len(db.Functions) {
			return nil, fmt.Errorf("edge %q: function id out of range", e)
		}
		other := db.Functions[id]
		sites = append(sites, CallSite{USR: other.USR, QualifiedName: other.QualifiedName, Position: pos.String()})
	}
	return sites, nil
}
