package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cxref/internal/position"
)

func occurrence(cat Category, kind Kind, usr, pos string) Event {
	return Event{Category: cat, Kind: kind, USR: usr, ShortName: "n", QualifiedName: "n", Pos: position.MustDecode(pos)}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	t.Parallel()
	g := NewRegistry(NewResolver())

	for _, ev := range []Event{
		occurrence(Definition, Variable, "c:@g", "1:1:5"),
		occurrence(Declaration, Variable, "c:@g", "1:2:12"),
		occurrence(Definition, Variable, "c:@g", "1:3:5"),
		occurrence(Declaration, Variable, "c:@g", "1:4:12"),
	} {
		_, _, err := g.Apply(ev)
		require.NoError(t, err)
	}

	sym := g.Get(Variable, 0)
	require.NotNil(t, sym)
	assert.Equal(t, "1:4:12", sym.Declaration)
	assert.Equal(t, "1:3:5", sym.Definition)
	assert.Equal(t, []string{"1:1:5", "1:2:12", "1:3:5", "1:4:12"}, sym.Uses)
}

func TestRegistry_ReferencesAppendWithoutDedup(t *testing.T) {
	t.Parallel()
	g := NewRegistry(NewResolver())

	for range 3 {
		_, _, err := g.Apply(occurrence(Reference, Type, "c:@S@T", "1:9:3"))
		require.NoError(t, err)
	}

	sym := g.Get(Type, 0)
	require.NotNil(t, sym)
	assert.Equal(t, []string{"1:9:3", "1:9:3", "1:9:3"}, sym.Uses)
	assert.Empty(t, sym.Declaration)
	assert.Empty(t, sym.Definition)
}

func TestRegistry_IndirectMarkerPreserved(t *testing.T) {
	t.Parallel()
	g := NewRegistry(NewResolver())

	_, pos, err := g.Apply(occurrence(Definition, Function, "c:@F@f#", "*1:1:6"))
	require.NoError(t, err)
	assert.Equal(t, "*1:1:6", pos)
	assert.Equal(t, "*1:1:6", g.Get(Function, 0).Definition)
}

func TestRegistry_NamesKeepLastNonEmpty(t *testing.T) {
	t.Parallel()
	g := NewRegistry(NewResolver())

	ev := occurrence(Declaration, Function, "c:@N@ns@F@f#", "1:1:6")
	ev.ShortName, ev.QualifiedName = "f", "ns::f"
	_, _, err := g.Apply(ev)
	require.NoError(t, err)

	ev = occurrence(Reference, Function, "c:@N@ns@F@f#", "1:5:3")
	ev.ShortName, ev.QualifiedName = "", ""
	_, _, err = g.Apply(ev)
	require.NoError(t, err)

	sym := g.Get(Function, 0)
	assert.Equal(t, "f", sym.ShortName)
	assert.Equal(t, "ns::f", sym.QualifiedName)
}

func TestRegistry_RejectsMalformedEvents(t *testing.T) {
	t.Parallel()
	g := NewRegistry(NewResolver())

	_, _, err := g.Apply(Event{Category: Definition, Kind: Function, USR: "c:@F@f#"})
	var fe *position.FormatError
	assert.True(t, errors.As(err, &fe), "zero position should be a format error")

	_, _, err = g.Apply(occurrence(Definition, Function, "", "1:1:1"))
	assert.Error(t, err)

	_, _, err = g.Apply(occurrence(Definition, Kind(7), "c:@x", "1:1:1"))
	assert.Error(t, err)

	_, _, err = g.Apply(EndEvent())
	assert.Error(t, err)

	_, _, err = g.Apply(occurrence(Category(9), Function, "c:@F@f#", "1:1:1"))
	assert.ErrorContains(t, err, "unknown occurrence category")

	// None of the rejected events may have created a record.
	assert.Empty(t, g.Records(Function))
}

func TestRegistry_GetOutOfRange(t *testing.T) {
	t.Parallel()
	g := NewRegistry(NewResolver())
	assert.Nil(t, g.Get(Function, 0))
	assert.Nil(t, g.Get(Function, -1))
	assert.Nil(t, g.Get(Kind(9), 0))
}
