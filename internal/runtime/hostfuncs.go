package runtime

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/cxref/internal/frontend"
)

// parsedTree is the source and grammar behind one parsed tree.
type parsedTree struct {
	src  []byte
	lang *sitter.Language
}

// sourceStore maps a tree's root node back to its source and grammar.
// go-tree-sitter nodes carry no reference to their tree, so node_text and
// query recover it by walking up to the root.
type sourceStore struct {
	mu    sync.RWMutex
	trees map[uintptr]parsedTree
}

func newSourceStore() *sourceStore {
	return &sourceStore{trees: make(map[uintptr]parsedTree)}
}

func (s *sourceStore) store(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	s.trees[key] = parsedTree{src: src, lang: lang}
	s.mu.Unlock()
}

func (s *sourceStore) lookup(node *sitter.Node) (parsedTree, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	s.mu.RLock()
	pt, ok := s.trees[uintptr(unsafe.Pointer(node))]
	s.mu.RUnlock()
	return pt, ok
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, obj object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected node, got %s", fn, obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func stringArg(fn, what string, obj object.Object) (string, *object.Error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, obj.Type())
	}
	return s.Value(), nil
}

// makeParseFn creates "parse", which reads a C/C++ file and picks the
// grammar from its extension.
//
// parse(path) → *sitter.Tree
func makeParseFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse", 1, len(args))
		}
		path, errObj := stringArg("parse", "path", args[0])
		if errObj != nil {
			return errObj
		}
		lang, ok := frontend.LanguageForFile(path)
		if !ok {
			return object.Errorf("parse: unsupported file %s", path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		return parseSource(ctx, ss, src, lang)
	})
}

// makeParseSrcFn creates "parse_src" for in-memory source.
//
// parse_src(source, language) → *sitter.Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		lang, errObj := stringArg("parse_src", "language", args[1])
		if errObj != nil {
			return errObj
		}
		return parseSource(ctx, ss, []byte(src), lang)
	})
}

func parseSource(ctx context.Context, ss *sourceStore, src []byte, langName string) object.Object {
	lang, ok := frontend.GrammarForLanguage(langName)
	if !ok {
		return object.Errorf("parse: unsupported language %q", langName)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("parse: %v", err)
	}
	ss.store(tree, src, lang)

	proxy, err := object.NewProxy(tree)
	if err != nil {
		return object.Errorf("parse: proxy error: %v", err)
	}
	return proxy
}

// makeNodeTextFn creates "node_text". Scripts cannot pass the []byte
// that Node.Content wants.
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		pt, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(pt.src))
	})
}

// makeNodeChildFn creates "node_child", ChildByFieldName returning nil
// rather than a proxied nil pointer.
//
// node_child(node, field) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: proxy error: %v", err)
		}
		return p
	})
}

// makeNodePosFn creates "node_pos", the 1-based start of a node in the
// shape declare and friends accept.
//
// node_pos(node) → {line, column, offset}
func makeNodePosFn() *object.Builtin {
	return object.NewBuiltin("node_pos", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_pos", 1, len(args))
		}
		node, errObj := nodeArg("node_pos", args[0])
		if errObj != nil {
			return errObj
		}
		p := node.StartPoint()
		return object.NewMap(map[string]object.Object{
			"line":   object.NewInt(int64(p.Row) + 1),
			"column": object.NewInt(int64(p.Column) + 1),
			"offset": object.NewInt(int64(node.StartByte())),
		})
	})
}

// makeQueryFn creates "query". Each match is a map from capture name to
// node.
//
// query(pattern, node) → [{capture: node}]
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		pt, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("query: no source found for node's tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), pt.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, pt.src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: proxy error: %v", err)
				}
				captures[q.CaptureNameForId(c.Index)] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// logObject backs the log global: log.Info, log.Warn, log.Error.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "script")
}

