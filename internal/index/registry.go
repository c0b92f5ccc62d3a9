package index

import (
	"fmt"

	"github.com/jward/cxref/internal/position"
)

// Symbol is the mutable per-USR record a build accumulates. Declaration and
// Definition hold encoded positions; the empty string means absent.
type Symbol struct {
	ID            int
	Kind          Kind
	USR           string
	ShortName     string
	QualifiedName string
	Declaration   string
	Definition    string
	Uses          []string

	// Function records only.
	Callers []Edge
	Callees []Edge
}

// Edge is one end of a call edge: the id of the record at the other end
// and the encoded call-site position.
type Edge struct {
	ID  int
	Pos string
}

func (e Edge) String() string {
	return fmt.Sprintf("%d@%s", e.ID, e.Pos)
}

// Registry holds one record per resolved identity and applies the merge
// policy: every occurrence is appended to Uses, and the most recent
// declaration or definition overwrites the previous one.
type Registry struct {
	resolver *Resolver
	records  [3][]*Symbol
}

// NewRegistry returns a Registry allocating ids through r.
func NewRegistry(r *Resolver) *Registry {
	return &Registry{resolver: r}
}

// Apply folds a declaration, definition, or reference event into the
// matching record and returns it. The event's position is validated and
// encoded before any state changes.
func (g *Registry) Apply(ev Event) (*Symbol, string, error) {
	if ev.Category == End {
		return nil, "", fmt.Errorf("index: end marker is not an occurrence")
	}
	if !ev.Category.valid() {
		return nil, "", fmt.Errorf("index: unknown occurrence category %d", int(ev.Category))
	}
	if !ev.Kind.valid() {
		return nil, "", fmt.Errorf("index: unknown entity kind %d", int(ev.Kind))
	}
	if ev.USR == "" {
		return nil, "", fmt.Errorf("index: %s event without usr", ev.Category)
	}
	pos, err := position.Encode(ev.Pos)
	if err != nil {
		return nil, "", err
	}

	sym, err := g.symbol(ev.Kind, ev.USR)
	if err != nil {
		return nil, "", err
	}
	sym.rename(ev.ShortName, ev.QualifiedName)
	sym.Uses = append(sym.Uses, pos)

	switch ev.Category {
	case Declaration:
		sym.Declaration = pos
	case Definition:
		sym.Definition = pos
	}
	return sym, pos, nil
}

// symbol returns the record for usr, creating it on first sight.
func (g *Registry) symbol(kind Kind, usr string) (*Symbol, error) {
	id, created, err := g.resolver.Resolve(kind, usr)
	if err != nil {
		return nil, err
	}
	if created {
		g.records[kind] = append(g.records[kind], &Symbol{
			ID:   id,
			Kind: kind,
			USR:  usr,
			Uses: []string{},
		})
	}
	return g.records[kind][id], nil
}

// Get returns the record with the given id, or nil.
func (g *Registry) Get(kind Kind, id int) *Symbol {
	if !kind.valid() || id < 0 || id >= len(g.records[kind]) {
		return nil
	}
	return g.records[kind][id]
}

// Records returns the records of kind in ascending id order.
func (g *Registry) Records(kind Kind) []*Symbol {
	return g.records[kind]
}

// rename refreshes the display names. Names are derived from the usr, so an
// empty name from a later event leaves the previous one in place.
func (s *Symbol) rename(short, qualified string) {
	if short != "" {
		s.ShortName = short
	}
	if qualified != "" {
		s.QualifiedName = qualified
	}
}

func (c Category) valid() bool {
	return c >= Declaration && c <= End
}

func (k Kind) valid() bool {
	return k >= Function && k <= Variable
}
