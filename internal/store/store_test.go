package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cxref/internal/index"
	"github.com/jward/cxref/internal/position"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func fn(cat index.Category, usr, name, pos string) index.Event {
	return index.Event{Category: cat, Kind: index.Function, USR: usr, ShortName: name, QualifiedName: name, Pos: position.MustDecode(pos)}
}

func call(usr, name, caller, pos string) index.Event {
	ev := fn(index.Reference, usr, name, pos)
	ev.Call, ev.CallerUSR = true, caller
	return ev
}

// testDatabase builds a unit with all three kinds, a repeated call edge and
// a caller list whose order differs from the global edge order.
func testDatabase(t *testing.T) *index.Database {
	t.Helper()
	db, err := index.BuildEvents([]index.Event{
		fn(index.Definition, "c:@F@a#", "a", "1:1:6"),
		fn(index.Definition, "c:@F@b#", "b", "1:2:6"),
		fn(index.Declaration, "c:@F@x#", "x", "1:3:6"),
		call("c:@F@x#", "x", "c:@F@a#", "1:4:3"),
		call("c:@F@x#", "x", "c:@F@b#", "*1:5:3"),
		call("c:@F@b#", "b", "c:@F@a#", "1:6:3"),
		call("c:@F@x#", "x", "c:@F@a#", "1:4:3"),
		{Category: index.Definition, Kind: index.Type, USR: "c:@S@s", ShortName: "s", QualifiedName: "s", Pos: position.MustDecode("1:7:8")},
		{Category: index.Declaration, Kind: index.Variable, USR: "c:@g", ShortName: "g", QualifiedName: "g", Pos: position.MustDecode("1:8:12:1")},
		{Category: index.Reference, Kind: index.Variable, USR: "c:@g", Pos: position.MustDecode("*1:9:3")},
		index.EndEvent(),
	})
	require.NoError(t, err)
	return db
}

func jsonOf(t *testing.T, db *index.Database) string {
	t.Helper()
	b, err := db.JSON()
	require.NoError(t, err)
	return string(b)
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"units", "symbols", "uses", "call_edges", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Save / Load
// =============================================================================

func TestSaveUnit_LoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	db := testDatabase(t)

	u, err := s.SaveUnit("src/a.c", "h1", db)
	require.NoError(t, err)
	assert.Positive(t, u.ID)
	assert.NotEmpty(t, u.BuildID)

	loaded, err := s.LoadUnit(u.ID)
	require.NoError(t, err)
	assert.Equal(t, jsonOf(t, db), jsonOf(t, loaded))
}

func TestSaveUnit_EmptyDatabase(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	u, err := s.SaveUnit("empty.c", "h", index.NewDatabase())
	require.NoError(t, err)

	loaded, err := s.LoadUnit(u.ID)
	require.NoError(t, err)
	assert.Equal(t, jsonOf(t, index.NewDatabase()), jsonOf(t, loaded))
}

func TestSaveUnit_ReplacesPreviousBuild(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first, err := s.SaveUnit("a.c", "h1", testDatabase(t))
	require.NoError(t, err)
	second, err := s.SaveUnit("a.c", "h2", index.NewDatabase())
	require.NoError(t, err)
	assert.NotEqual(t, first.BuildID, second.BuildID)

	got, err := s.UnitByPath("a.c")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "h2", got.Hash)

	for _, table := range []string{"symbols", "uses", "call_edges"} {
		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, "stale rows in %s", table)
	}
}

func TestSaveUnit_MismatchedEdgesRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	db := index.NewDatabase()
	db.Functions = []index.FunctionRecord{
		{ID: 0, USR: "c:@F@a#", AllUses: []string{}, Callees: []string{"0@1:1:1"}},
	}
	_, err := s.SaveUnit("bad.c", "h", db)
	require.Error(t, err)

	u, err := s.UnitByPath("bad.c")
	require.NoError(t, err)
	assert.Nil(t, u, "a rejected save must not leave a unit behind")
}

func TestUnitByPath_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	u, err := s.UnitByPath("missing.c")
	require.NoError(t, err)
	assert.Nil(t, u)
}

// =============================================================================
// Deletes
// =============================================================================

func TestDeleteUnit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a, err := s.SaveUnit("a.c", "h", testDatabase(t))
	require.NoError(t, err)
	_, err = s.SaveUnit("b.c", "h", testDatabase(t))
	require.NoError(t, err)

	require.NoError(t, s.DeleteUnit(a.ID))
	require.NoError(t, s.DeleteUnit(a.ID), "deleting twice is not an error")

	units, err := s.Units()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "b.c", units[0].Path)

	syms, err := s.SymbolsByUSR("c:@F@x#")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "b.c", syms[0].UnitPath)
}

func TestPruneUnits(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, p := range []string{"a.c", "b.c", "c.c"} {
		_, err := s.SaveUnit(p, "h", index.NewDatabase())
		require.NoError(t, err)
	}

	removed, err := s.PruneUnits([]string{"b.c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.c", "c.c"}, removed)

	units, err := s.Units()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "b.c", units[0].Path)
}

// =============================================================================
// Cross-unit queries
// =============================================================================

func TestSymbolsByUSR_AcrossUnits(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.SaveUnit("b.c", "h", testDatabase(t))
	require.NoError(t, err)
	_, err = s.SaveUnit("a.c", "h", testDatabase(t))
	require.NoError(t, err)

	syms, err := s.SymbolsByUSR("c:@g")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "a.c", syms[0].UnitPath)
	assert.Equal(t, "variable", syms[0].Kind)
	assert.Equal(t, 0, syms[0].LocalID)
	assert.Equal(t, "1:8:12:1", syms[0].Declaration)
	assert.Empty(t, syms[0].Definition)

	uses, err := s.UsesByUSR("c:@g")
	require.NoError(t, err)
	require.Len(t, uses, 4)
	assert.Equal(t, "a.c", uses[0].UnitPath)
	assert.Equal(t, "1:8:12:1", uses[0].Position)
	assert.Equal(t, "*1:9:3", uses[1].Position)
	assert.Equal(t, "b.c", uses[2].UnitPath)
}

func TestSymbolsByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.SaveUnit("a.c", "h", testDatabase(t))
	require.NoError(t, err)

	syms, err := s.SymbolsByName("s")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "c:@S@s", syms[0].USR)
	assert.Equal(t, "type", syms[0].Kind)

	none, err := s.SymbolsByName("nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// Metadata & hashing
// =============================================================================

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.Metadata("marker_policy")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("marker_policy", "all"))
	require.NoError(t, s.SetMetadata("marker_policy", "none"))

	v, err = s.Metadata("marker_policy")
	require.NoError(t, err)
	assert.Equal(t, "none", v)
}

func TestContentHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ContentHash([]byte("int x;")), ContentHash([]byte("int x;")))
	assert.NotEqual(t, ContentHash([]byte("int x;")), ContentHash([]byte("int y;")))
	assert.Len(t, ContentHash(nil), 64)
}
