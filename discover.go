package cxref

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/cxref/internal/frontend"
)

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
}

// discover walks root and returns the supported source files that neither
// root's .gitignore nor the exclude patterns ignore, sorted by path.
func (e *Engine) discover(root string) ([]string, error) {
	gi := loadGitignore(root)
	var ex *ignore.GitIgnore
	if len(e.exclude) > 0 {
		ex = ignore.CompileIgnoreLines(e.exclude...)
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] || ignored(gi, ex, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 || ignored(gi, ex, rel) {
			return nil
		}
		lang, ok := frontend.LanguageForFile(path)
		if !ok || (e.languages != nil && !e.languages[lang]) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

func ignored(gi, ex *ignore.GitIgnore, rel string) bool {
	return (gi != nil && gi.MatchesPath(rel)) || (ex != nil && ex.MatchesPath(rel))
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

func underRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
