package index

import (
	"errors"
	"fmt"
	"io"
)

// Builder consumes one translation unit's event stream and assembles its
// Database. Each Builder owns its Resolver, Registry and Graph, so builds
// for different units share no mutable state. A Builder is not safe for
// concurrent use; event order is the correctness contract.
type Builder struct {
	resolver *Resolver
	registry *Registry
	graph    *Graph

	seq   int
	ended bool
	err   error
}

// NewBuilder returns a Builder for a fresh build.
func NewBuilder() *Builder {
	r := NewResolver()
	g := NewRegistry(r)
	return &Builder{
		resolver: r,
		registry: g,
		graph:    NewGraph(g),
	}
}

// Apply folds one event into the build. The first failure is sticky: every
// later Apply and Finish returns it.
func (b *Builder) Apply(ev Event) error {
	if b.err != nil {
		return b.err
	}
	seq := b.seq
	b.seq++
	if err := b.apply(ev); err != nil {
		b.err = &EventError{Seq: seq, Err: err}
		return b.err
	}
	return nil
}

func (b *Builder) apply(ev Event) error {
	if b.ended {
		return ErrEventAfterEnd
	}
	if ev.Category == End {
		b.ended = true
		return nil
	}

	// The caller must be kind-stable before the callee record is touched,
	// otherwise a conflicting call would half-apply.
	if ev.IsCall() {
		if err := b.resolver.Check(Function, ev.CallerUSR); err != nil {
			return err
		}
	}

	callee, pos, err := b.registry.Apply(ev)
	if err != nil {
		return err
	}
	if !ev.IsCall() {
		return nil
	}
	caller, err := b.registry.symbol(Function, ev.CallerUSR)
	if err != nil {
		return err
	}
	return b.graph.RecordCall(caller.ID, callee.ID, pos)
}

// Finish returns the finalized Database. It fails with ErrTruncatedStream if
// the end marker was never applied.
func (b *Builder) Finish() (*Database, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.ended {
		return nil, ErrTruncatedStream
	}
	return b.database(), nil
}

// Graph exposes the call graph for inspection after or during a build.
func (b *Builder) Graph() *Graph {
	return b.graph
}

// Registry exposes the symbol records for inspection.
func (b *Builder) Registry() *Registry {
	return b.registry
}

func (b *Builder) database() *Database {
	db := &Database{
		Types:     make([]SymbolRecord, 0, len(b.registry.Records(Type))),
		Functions: make([]FunctionRecord, 0, len(b.registry.Records(Function))),
		Variables: make([]SymbolRecord, 0, len(b.registry.Records(Variable))),
	}
	for _, s := range b.registry.Records(Function) {
		r := symbolRecord(s)
		db.Functions = append(db.Functions, FunctionRecord{
			ID:            r.ID,
			USR:           r.USR,
			ShortName:     r.ShortName,
			QualifiedName: r.QualifiedName,
			Declaration:   r.Declaration,
			Definition:    r.Definition,
			Callers:       edgeStrings(s.Callers),
			Callees:       edgeStrings(s.Callees),
			AllUses:       r.AllUses,
		})
	}
	for _, s := range b.registry.Records(Type) {
		db.Types = append(db.Types, symbolRecord(s))
	}
	for _, s := range b.registry.Records(Variable) {
		db.Variables = append(db.Variables, symbolRecord(s))
	}
	return db
}

func symbolRecord(s *Symbol) SymbolRecord {
	uses := make([]string, len(s.Uses))
	copy(uses, s.Uses)
	return SymbolRecord{
		ID:            s.ID,
		USR:           s.USR,
		ShortName:     s.ShortName,
		QualifiedName: s.QualifiedName,
		Declaration:   s.Declaration,
		Definition:    s.Definition,
		AllUses:       uses,
	}
}

func edgeStrings(edges []Edge) []string {
	if len(edges) == 0 {
		return nil
	}
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.String()
	}
	return out
}

// Build drains src through a fresh Builder. It never returns a partial
// Database: any malformed event, conflict or truncation fails the build.
func Build(src EventSource) (*Database, error) {
	b := NewBuilder()
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index: read event %d: %w", b.seq, err)
		}
		if err := b.Apply(ev); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

// BuildEvents is Build over an in-memory slice.
func BuildEvents(events []Event) (*Database, error) {
	return Build(NewSliceSource(events...))
}
