package cxref

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cxref/internal/frontend"
	"github.com/jward/cxref/scripts"
)

const callsSource = `int add(int a, int b) { return a + b; }

int twice(int v) { return add(v, v); }

int main(void) {
  return twice(add(1, 2));
}
`

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func golden(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("internal", "index", "testdata", name))
	require.NoError(t, err)
	return string(b)
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestNew_InvalidMarkerPolicy(t *testing.T) {
	t.Parallel()
	_, err := New(filepath.Join(t.TempDir(), "test.db"), WithMarkerPolicy("sometimes"))
	require.Error(t, err)
}

func TestWithLanguages(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, WithLanguages("c"))
	assert.True(t, e.languages["c"])
	assert.False(t, e.languages["cpp"])
}

// =============================================================================
// Builds
// =============================================================================

func TestBuildFile_Golden(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	db, err := e.BuildFile(context.Background(), filepath.Join("internal", "frontend", "testdata", "func.cc"))
	require.NoError(t, err)
	out, err := db.JSON()
	require.NoError(t, err)
	assert.Equal(t, golden(t, "declaration_vs_definition.json"), string(out))
}

func TestBuildFile_Unsupported(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	_, err := e.BuildFile(context.Background(), writeFile(t, t.TempDir(), "notes.txt", "hi"))
	require.Error(t, err)
}

func TestBuildScript_Embedded(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, WithScriptsFS(scripts.FS))

	db, err := e.BuildScript(context.Background(), "events/usage.risor", nil)
	require.NoError(t, err)
	out, err := db.JSON()
	require.NoError(t, err)
	assert.Equal(t, golden(t, "var_usage_call_function.json"), string(out))
}

// =============================================================================
// Incremental indexing
// =============================================================================

func TestIndexFiles_SkipsUnsupportedAndUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, parallel := range []bool{true, false} {
		e := newTestEngine(t, WithParallel(parallel))
		paths := []string{
			writeFile(t, dir, "calls.c", callsSource),
			writeFile(t, dir, "readme.txt", "not code"),
		}

		stats, err := e.IndexFiles(context.Background(), paths)
		require.NoError(t, err)
		assert.Equal(t, IndexStats{Indexed: 1, Skipped: 1}, stats)

		stats, err = e.IndexFiles(context.Background(), paths)
		require.NoError(t, err)
		assert.Equal(t, IndexStats{Unchanged: 1, Skipped: 1}, stats)
	}
}

func TestIndexFiles_ReindexesChangedFile(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeFile(t, t.TempDir(), "calls.c", callsSource)

	_, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	before, err := e.Store().UnitByPath(path)
	require.NoError(t, err)

	writeFile(t, filepath.Dir(path), "calls.c", "int only(void) { return 0; }\n")
	stats, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	after, err := e.Store().UnitByPath(path)
	require.NoError(t, err)
	assert.NotEqual(t, before.BuildID, after.BuildID)

	db, err := e.Query().Unit(path)
	require.NoError(t, err)
	require.Len(t, db.Functions, 1)
	assert.Equal(t, "only", db.Functions[0].ShortName)
}

func TestIndexFiles_MarkerPolicyChangeForcesRebuild(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	path := writeFile(t, t.TempDir(), "calls.c", callsSource)

	e, err := New(dbPath)
	require.NoError(t, err)
	_, err = e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = New(dbPath, WithMarkerPolicy(frontend.MarkNone))
	require.NoError(t, err)
	defer e.Close()
	stats, err := e.IndexFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	v, err := e.Store().Metadata(markerPolicyKey)
	require.NoError(t, err)
	assert.Equal(t, "none", v)
}

func TestIndexFiles_MarkerPolicyChangeRebuildsWholeStore(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	dir := t.TempDir()
	a := writeFile(t, dir, "a.c", "int a;\nint *pa = &a;\n")
	b := writeFile(t, dir, "b.cc", "int b;\nint use() { return b; }\n")
	gone := writeFile(t, dir, "gone.c", "int gone;\n")

	e, err := New(dbPath, WithMarkerPolicy(frontend.MarkNone))
	require.NoError(t, err)
	_, err = e.IndexFiles(context.Background(), []string{a, b, gone})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, os.Remove(gone))

	e, err = New(dbPath, WithMarkerPolicy(frontend.MarkAll), WithLanguages("c"))
	require.NoError(t, err)
	defer e.Close()
	stats, err := e.IndexFiles(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed, "b.cc is rebuilt even though it was not listed")

	db, err := e.Query().Unit(b)
	require.NoError(t, err)
	require.NotNil(t, db)
	out, err := db.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"*1:`)

	u, err := e.Store().UnitByPath(gone)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestIndexFiles_MissingFileFails(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	stats, err := e.IndexFiles(context.Background(), []string{filepath.Join(t.TempDir(), "gone.c")})
	require.Error(t, err)
	assert.Equal(t, 1, stats.Failed)
}

func TestIndexFiles_Cancelled(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	path := writeFile(t, t.TempDir(), "calls.c", callsSource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.IndexFiles(ctx, []string{path})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIndexDirectory_IgnoresAndPrunes(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	e := newTestEngine(t, WithExclude("gen/"))

	writeFile(t, root, ".gitignore", "*.skip.c\n")
	keep := writeFile(t, root, "src/calls.c", callsSource)
	writeFile(t, root, "src/old.skip.c", "int old;\n")
	writeFile(t, root, "gen/tables.c", "int table[4];\n")
	writeFile(t, root, ".hidden/x.c", "int x;\n")
	gone := writeFile(t, root, "src/gone.cc", "int gone() { return 1; }\n")

	stats, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)

	require.NoError(t, os.Remove(gone))
	_, err = e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)

	units, err := e.Query().Units()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, keep, units[0].Path)
}

func TestIndexDirectory_KeepsUnitsOutsideRoot(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	outside := writeFile(t, t.TempDir(), "other.c", "int other;\n")
	_, err := e.IndexFiles(context.Background(), []string{outside})
	require.NoError(t, err)

	_, err = e.IndexDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)

	u, err := e.Store().UnitByPath(outside)
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestIndexDirectory_LanguageFilter(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	e := newTestEngine(t, WithLanguages("cpp"))

	writeFile(t, root, "a.c", "int a;\n")
	writeFile(t, root, "b.cc", "int b;\n")

	stats, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
}

func TestIndexDirectory_LanguageFilterKeepsOtherUnits(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	a := writeFile(t, root, "a.c", "int a;\n")
	b := writeFile(t, root, "b.cc", "int b;\n")

	e, err := New(dbPath)
	require.NoError(t, err)
	stats, err := e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
	require.NoError(t, e.Close())

	e, err = New(dbPath, WithLanguages("c"))
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, os.Remove(a))
	_, err = e.IndexDirectory(context.Background(), root)
	require.NoError(t, err)

	units, err := e.Query().Units()
	require.NoError(t, err)
	require.Len(t, units, 1, "a.c is pruned, b.cc is outside the filter but still on disk")
	assert.Equal(t, b, units[0].Path)
}
