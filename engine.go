package cxref

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/cxref/internal/frontend"
	"github.com/jward/cxref/internal/index"
	cxrt "github.com/jward/cxref/internal/runtime"
	"github.com/jward/cxref/internal/store"
)

// markerPolicyKey is the metadata key holding the marker policy the stored
// units were built with.
const markerPolicyKey = "marker_policy"

// Engine builds per-file cross-reference databases and keeps them in a
// SQLite store.
type Engine struct {
	store      *store.Store
	frontend   *frontend.Frontend
	runtime    *cxrt.Runtime
	scriptsDir string
	scriptsFS  fs.FS
	languages  map[string]bool // nil means all languages
	policy     frontend.MarkerPolicy
	exclude    []string
	logger     *slog.Logger

	useParallel bool
	workers     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will index.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithParallel controls parallel builds. When true (default), units are
// built concurrently and committed to SQLite one at a time in input order.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds the number of concurrent builds. Zero or less means
// one per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithMarkerPolicy sets when the front end marks a reference indirect.
func WithMarkerPolicy(p frontend.MarkerPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithExclude adds gitignore-style patterns skipped by IndexDirectory.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		e.exclude = append(e.exclude, patterns...)
	}
}

// WithLogger sets the logger for the Engine and its script runtime.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithScriptsDir sets the directory BuildScript resolves script paths
// against.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithScriptsFS makes BuildScript load scripts from fsys instead of disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cxref: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("cxref: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		policy:      frontend.MarkAddressTaken,
		logger:      slog.Default(),
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := frontend.ParseMarkerPolicy(string(e.policy)); err != nil {
		s.Close()
		return nil, fmt.Errorf("cxref: %w", err)
	}

	e.frontend = frontend.New(frontend.WithMarkerPolicy(e.policy))
	rtOpts := []cxrt.RuntimeOption{cxrt.WithLogger(e.logger)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, cxrt.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = cxrt.NewRuntime(e.scriptsDir, rtOpts...)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a QueryBuilder over the stored units.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// BuildFile extracts and builds the database for one source file without
// touching the store.
func (e *Engine) BuildFile(ctx context.Context, path string) (*Database, error) {
	events, err := e.frontend.ExtractFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return index.BuildEvents(events)
}

// BuildScript runs a Risor script that emits events and builds them.
func (e *Engine) BuildScript(ctx context.Context, scriptPath string, extras map[string]any) (*Database, error) {
	events, err := e.runtime.RunScript(ctx, scriptPath, extras)
	if err != nil {
		return nil, err
	}
	return index.BuildEvents(events)
}

// IndexStats counts what IndexFiles did with its input paths.
type IndexStats struct {
	Indexed   int
	Unchanged int
	Skipped   int
	Failed    int
}

// workItem is one changed file awaiting a build.
type workItem struct {
	path string
	hash string
	src  []byte
	lang string

	db  *Database
	err error
}

// IndexFiles builds and stores every supported file in paths. Files whose
// content hash matches the stored unit are skipped, unless the marker
// policy differs from the one the store was built with. A policy change
// also rebuilds every other stored unit, whatever its language, and drops
// units whose files are gone, so the whole store matches the new policy.
//
// Errors on individual files are logged and counted; processing continues
// and the first one is returned at the end.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) (IndexStats, error) {
	var stats IndexStats
	force, err := e.policyChanged()
	if err != nil {
		return stats, err
	}

	var stale []string
	if force {
		stale, err = e.staleUnits(paths)
		if err != nil {
			return stats, err
		}
		e.logger.Info("marker policy changed, rebuilding all units",
			"policy", e.policy, "extra", len(stale))
	}

	var items []*workItem
	var errs []error
	for i, path := range append(append([]string(nil), paths...), stale...) {
		item, skip, err := e.prepareFile(path, force, i >= len(paths))
		switch {
		case err != nil:
			stats.Failed++
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
		case skip == skipUnsupported:
			stats.Skipped++
		case skip == skipUnchanged:
			stats.Unchanged++
			e.logger.Debug("unchanged", "path", path)
		default:
			items = append(items, item)
		}
	}

	if err := e.buildItems(ctx, items); err != nil {
		return stats, err
	}

	for _, item := range items {
		if item.err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("build %s: %w", item.path, item.err))
			e.logger.Warn("build failed", "path", item.path, "error", item.err)
			continue
		}
		u, err := e.store.SaveUnit(item.path, item.hash, item.db)
		if err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
			continue
		}
		stats.Indexed++
		e.logger.Debug("indexed", "path", item.path, "build_id", u.BuildID,
			"functions", item.db.Len(index.Function),
			"types", item.db.Len(index.Type),
			"variables", item.db.Len(index.Variable))
	}

	if len(errs) > 0 {
		return stats, fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	if err := e.store.SetMetadata(markerPolicyKey, string(e.policy)); err != nil {
		return stats, err
	}
	return stats, nil
}

type skipReason int

const (
	skipNone skipReason = iota
	skipUnsupported
	skipUnchanged
)

// prepareFile reads path and decides whether it needs a build. stored
// marks a unit picked up by a policy rebuild; those ignore the language
// filter.
func (e *Engine) prepareFile(path string, force, stored bool) (*workItem, skipReason, error) {
	lang, ok := frontend.LanguageForFile(path)
	if !ok {
		return nil, skipUnsupported, nil
	}
	if !stored && e.languages != nil && !e.languages[lang] {
		return nil, skipUnsupported, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, skipNone, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(src)

	if !force {
		existing, err := e.store.UnitByPath(path)
		if err != nil {
			return nil, skipNone, fmt.Errorf("lookup unit: %w", err)
		}
		if existing != nil && existing.Hash == hash {
			return nil, skipUnchanged, nil
		}
	}
	return &workItem{path: path, hash: hash, src: src, lang: lang}, skipNone, nil
}

// buildItems fills in each item's database. Builds share no state, so in
// parallel mode they run on a bounded errgroup; only cancellation aborts
// the group.
func (e *Engine) buildItems(ctx context.Context, items []*workItem) error {
	if !e.useParallel {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.buildItem(ctx, item)
		}
		return nil
	}

	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.buildItem(gctx, item)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) buildItem(ctx context.Context, item *workItem) {
	events, err := e.frontend.Extract(ctx, item.path, item.lang, item.src)
	if err != nil {
		item.err = err
		return
	}
	item.db, item.err = index.BuildEvents(events)
}

// staleUnits returns the stored unit paths not in paths whose files still
// exist. Units whose files are gone are deleted.
func (e *Engine) staleUnits(paths []string) ([]string, error) {
	units, err := e.store.Units()
	if err != nil {
		return nil, err
	}
	listed := make(map[string]bool, len(paths))
	for _, p := range paths {
		listed[p] = true
	}
	var stale []string
	var gone []int64
	for _, u := range units {
		if listed[u.Path] {
			continue
		}
		if _, err := os.Stat(u.Path); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, u.ID)
			continue
		}
		stale = append(stale, u.Path)
	}
	if len(gone) > 0 {
		if err := e.store.DeleteUnits(gone); err != nil {
			return nil, err
		}
		e.logger.Info("dropped units with missing files", "count", len(gone))
	}
	return stale, nil
}

// policyChanged reports whether stored units were built under a different
// marker policy. An empty store never counts as changed.
func (e *Engine) policyChanged() (bool, error) {
	stored, err := e.store.Metadata(markerPolicyKey)
	if err != nil {
		return false, err
	}
	return stored != "" && stored != string(e.policy), nil
}

// IndexDirectory indexes every supported file under root that is not
// ignored, then removes stored units under root whose files are gone.
func (e *Engine) IndexDirectory(ctx context.Context, root string) (IndexStats, error) {
	paths, err := e.discover(root)
	if err != nil {
		return IndexStats{}, err
	}
	stats, err := e.IndexFiles(ctx, paths)
	if err != nil {
		return stats, err
	}
	removed, err := e.pruneUnder(root, paths)
	if err != nil {
		return stats, err
	}
	if len(removed) > 0 {
		e.logger.Info("pruned units", "count", len(removed))
	}
	return stats, nil
}

// pruneUnder deletes units below root that are not in present. Units
// outside root are kept, as are units in a language this Engine does not
// index whose files still exist.
func (e *Engine) pruneUnder(root string, present []string) ([]string, error) {
	units, err := e.store.Units()
	if err != nil {
		return nil, err
	}
	keep := append([]string(nil), present...)
	for _, u := range units {
		if !underRoot(root, u.Path) || e.filteredOut(u.Path) {
			keep = append(keep, u.Path)
		}
	}
	return e.store.PruneUnits(keep)
}

// filteredOut reports whether path exists but is in a language excluded by
// WithLanguages.
func (e *Engine) filteredOut(path string) bool {
	if e.languages == nil {
		return false
	}
	lang, ok := frontend.LanguageForFile(path)
	if !ok || e.languages[lang] {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
