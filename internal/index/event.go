package index

import (
	"fmt"
	"io"

	"github.com/jward/cxref/internal/position"
)

// Kind is an entity kind. Each kind owns an independent dense id space.
type Kind int

const (
	Function Kind = iota
	Type
	Variable
)

var kindNames = [...]string{"function", "type", "variable"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// Category classifies an occurrence.
type Category int

const (
	Declaration Category = iota
	Definition
	Reference
	// End marks a well-formed end of stream.
	End
)

var categoryNames = [...]string{"declaration", "definition", "reference", "end"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory maps a category name back to its Category.
func ParseCategory(s string) (Category, error) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown occurrence category %q", s)
}

// Event is one occurrence reported by the front end.
//
// A Reference to a Function with Call set and a non-empty CallerUSR is a
// call site: the builder records an edge from CallerUSR to USR at Pos.
// Indirection is carried on Pos.Indirect, never as a separate edge type.
type Event struct {
	Category      Category
	Kind          Kind
	USR           string
	ShortName     string
	QualifiedName string
	Pos           position.Position
	Call          bool
	CallerUSR     string
}

// EndEvent returns the end-of-stream marker.
func EndEvent() Event {
	return Event{Category: End}
}

// IsCall reports whether the event produces a call edge.
func (e Event) IsCall() bool {
	return e.Category == Reference && e.Kind == Function && e.Call && e.CallerUSR != ""
}

// EventSource yields events in stream order. Next returns io.EOF once the
// source is exhausted.
type EventSource interface {
	Next() (Event, error)
}

// SliceSource is an EventSource over an in-memory slice.
type SliceSource struct {
	events []Event
	next   int
}

// NewSliceSource returns a source yielding events in order.
func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next() (Event, error) {
	if s.next >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}
