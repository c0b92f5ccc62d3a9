package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraphWithFunctions(t *testing.T, usrs ...string) *Graph {
	t.Helper()
	g := NewRegistry(NewResolver())
	for i, usr := range usrs {
		_, _, err := g.Apply(occurrence(Definition, Function, usr, "1:1:1"))
		require.NoError(t, err)
		require.Equal(t, i, g.Get(Function, i).ID)
	}
	return NewGraph(g)
}

func TestGraph_RecordCallWritesBothEnds(t *testing.T) {
	t.Parallel()
	gr := newGraphWithFunctions(t, "c:@F@a#", "c:@F@b#")

	require.NoError(t, gr.RecordCall(0, 1, "1:5:3"))

	assert.Equal(t, []Edge{{ID: 1, Pos: "1:5:3"}}, gr.CalleesOf(0))
	assert.Equal(t, []Edge{{ID: 0, Pos: "1:5:3"}}, gr.CallersOf(1))
	assert.Empty(t, gr.CallersOf(0))
	assert.Empty(t, gr.CalleesOf(1))
	assert.Equal(t, []CallEdge{{Caller: 0, Callee: 1, Pos: "1:5:3"}}, gr.Edges())
}

func TestGraph_RepeatedCallsAreKept(t *testing.T) {
	t.Parallel()
	gr := newGraphWithFunctions(t, "c:@F@a#", "c:@F@b#")

	for range 3 {
		require.NoError(t, gr.RecordCall(0, 1, "1:5:3"))
	}
	assert.Len(t, gr.CalleesOf(0), 3)
	assert.Len(t, gr.CallersOf(1), 3)
}

func TestGraph_Recursion(t *testing.T) {
	t.Parallel()
	gr := newGraphWithFunctions(t, "c:@F@fact#")

	require.NoError(t, gr.RecordCall(0, 0, "1:3:10"))
	assert.Equal(t, []Edge{{ID: 0, Pos: "1:3:10"}}, gr.CallersOf(0))
	assert.Equal(t, []Edge{{ID: 0, Pos: "1:3:10"}}, gr.CalleesOf(0))
}

func TestGraph_UnknownEndpoint(t *testing.T) {
	t.Parallel()
	gr := newGraphWithFunctions(t, "c:@F@a#")

	assert.Error(t, gr.RecordCall(0, 4, "1:1:1"))
	assert.Error(t, gr.RecordCall(4, 0, "1:1:1"))
	assert.Empty(t, gr.CalleesOf(0), "a failed record must not leave half an edge")
	assert.Empty(t, gr.CallersOf(0))
}

func TestEdge_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1@*1:4:13", Edge{ID: 1, Pos: "*1:4:13"}.String())
}
