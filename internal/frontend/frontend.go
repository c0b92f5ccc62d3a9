// Package frontend is a reference C/C++ front end: it parses one
// translation unit with tree-sitter and reports every declaration,
// definition, reference and call it can attribute to a symbol, in source
// order, as an index event stream.
//
// It does no preprocessing, include resolution, or overload resolution.
// Symbol identities follow the shape of clang USRs.
package frontend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/cxref/internal/index"
	"github.com/jward/cxref/internal/position"
)

// MarkerPolicy decides which occurrences carry the indirection marker.
type MarkerPolicy string

const (
	// MarkAddressTaken marks functions used as values (e.g. &f) and calls
	// made through a variable.
	MarkAddressTaken MarkerPolicy = "address-taken"
	// MarkAll marks every occurrence.
	MarkAll MarkerPolicy = "all"
	// MarkNone marks nothing.
	MarkNone MarkerPolicy = "none"
)

// ParseMarkerPolicy validates a policy name.
func ParseMarkerPolicy(s string) (MarkerPolicy, error) {
	switch p := MarkerPolicy(s); p {
	case MarkAddressTaken, MarkAll, MarkNone:
		return p, nil
	}
	return "", fmt.Errorf("frontend: unknown indirect marker policy %q", s)
}

// Frontend turns source files into event streams. It holds no per-unit
// state and is safe for concurrent use.
type Frontend struct {
	policy MarkerPolicy
	fileID int
}

// Option configures a Frontend.
type Option func(*Frontend)

// WithMarkerPolicy sets the indirection marker policy.
func WithMarkerPolicy(p MarkerPolicy) Option {
	return func(f *Frontend) {
		f.policy = p
	}
}

// WithFileID sets the file id stamped on every position (default 1).
func WithFileID(id int) Option {
	return func(f *Frontend) {
		f.fileID = id
	}
}

// New returns a Frontend.
func New(opts ...Option) *Frontend {
	f := &Frontend{policy: MarkAddressTaken, fileID: 1}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ExtractFile reads path, detects its language from the extension, and
// returns its event stream.
func (f *Frontend) ExtractFile(ctx context.Context, path string) ([]index.Event, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("frontend: unsupported file %s", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("frontend: read file: %w", err)
	}
	return f.Extract(ctx, path, lang, src)
}

// Extract parses src as lang and returns the unit's events in source
// order, terminated by the end marker. path only feeds identities of
// file-local symbols.
func (f *Frontend) Extract(ctx context.Context, path, lang string, src []byte) ([]index.Event, error) {
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("frontend: unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("frontend: parse %s: %w", path, err)
	}
	defer tree.Close()

	w := newWalker(src, filepath.Base(path), f.fileID, f.policy)
	w.walk(tree.RootNode())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append(w.events, index.EndEvent()), nil
}

// binding is what a name resolves to.
type binding struct {
	kind      index.Kind
	usr       string
	short     string
	qualified string
}

// scope is one lexical block of local values.
type scope struct {
	parent *scope
	values map[string]*binding
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, values: make(map[string]*binding)}
}

// segment is one level of namespace or record nesting.
type segment struct {
	name   string
	letter string // "N" for namespaces, "S" for records
}

type walker struct {
	src    []byte
	base   string
	fileID int
	policy MarkerPolicy
	events []index.Event

	// Namespace-level symbols keyed by qualified name. Record tags and
	// type names are kept apart since C allows "typedef struct T T".
	globals map[string]*binding
	tags    map[string]*binding
	types   map[string]*binding

	scope *scope
	chain []segment

	// fn is the enclosing function while walking a body.
	fn *binding
	// record is the innermost record whose body is being walked.
	record *binding
	// members maps a qualified record name to its member scope so that
	// out-of-line method bodies can see their siblings.
	members     map[string]*scope
	memberScope *scope
}

func newWalker(src []byte, base string, fileID int, policy MarkerPolicy) *walker {
	return &walker{
		src:     src,
		base:    base,
		fileID:  fileID,
		policy:  policy,
		globals: make(map[string]*binding),
		tags:    make(map[string]*binding),
		types:   make(map[string]*binding),
		members: make(map[string]*scope),
	}
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *walker) pos(n *sitter.Node, indirect bool) position.Position {
	p := n.StartPoint()
	return position.Position{
		File:     w.fileID,
		Line:     int(p.Row) + 1,
		Column:   int(p.Column) + 1,
		Indirect: indirect,
	}
}

// emit records one occurrence of b at the name node. addressed reports a
// function used as a value or a call through a variable.
func (w *walker) emit(cat index.Category, b *binding, name *sitter.Node, call, addressed bool) {
	var indirect bool
	switch w.policy {
	case MarkAll:
		indirect = true
	case MarkAddressTaken:
		indirect = addressed
	}
	ev := index.Event{
		Category:      cat,
		Kind:          b.kind,
		USR:           b.usr,
		ShortName:     b.short,
		QualifiedName: b.qualified,
		Pos:           w.pos(name, indirect),
	}
	if call && b.kind == index.Function && w.fn != nil {
		ev.Call = true
		ev.CallerUSR = w.fn.usr
	}
	w.events = append(w.events, ev)
}

func (w *walker) pushScope() {
	w.scope = newScope(w.scope)
}

func (w *walker) popScope() {
	w.scope = w.scope.parent
}

// lookupValue resolves an unqualified name: locals first, then members of
// the enclosing record, then each enclosing namespace outwards.
func (w *walker) lookupValue(name string) *binding {
	for s := w.scope; s != nil; s = s.parent {
		if b, ok := s.values[name]; ok {
			return b
		}
	}
	if w.memberScope != nil {
		if b, ok := w.memberScope.values[name]; ok {
			return b
		}
	}
	return w.lookupQualified(w.globals, name)
}

// lookupQualified tries name under every prefix of the current chain,
// innermost first.
func (w *walker) lookupQualified(table map[string]*binding, name string) *binding {
	for i := len(w.chain); i >= 0; i-- {
		if b, ok := table[qualify(w.chain[:i], name)]; ok {
			return b
		}
	}
	return nil
}

func (w *walker) walkChildren(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment", "string_literal", "raw_string_literal", "char_literal", "number_literal",
		"preproc_include", "preproc_def", "preproc_function_def", "preproc_call":
		return
	case "namespace_definition":
		w.namespaceDefinition(n)
	case "function_definition":
		w.functionDefinition(n)
	case "declaration":
		w.declaration(n)
	case "field_declaration":
		w.fieldDeclaration(n)
	case "type_definition":
		w.typeDefinition(n)
	case "struct_specifier", "union_specifier", "class_specifier", "enum_specifier":
		w.typeSpecifier(n, emptyDeclaration(n))
	case "alias_declaration":
		w.aliasDeclaration(n)
	case "parameter_declaration", "optional_parameter_declaration":
		w.parameter(n)
	case "compound_statement", "for_statement", "for_range_loop":
		w.pushScope()
		w.walkChildren(n)
		w.popScope()
	case "call_expression":
		w.callExpression(n)
	case "field_expression":
		w.fieldExpression(n, false)
	case "identifier":
		if b := w.lookupValue(w.text(n)); b != nil {
			w.use(b, n, false)
		}
	case "qualified_identifier":
		w.qualifiedUse(n, false)
	case "type_identifier":
		w.typeUse(n)
	default:
		w.walkChildren(n)
	}
}

func (w *walker) namespaceDefinition(n *sitter.Node) {
	body := n.ChildByFieldName("body")
	name := n.ChildByFieldName("name")
	if name == nil {
		w.walk(body)
		return
	}
	w.chain = append(w.chain, segment{name: w.text(name), letter: "N"})
	w.walk(body)
	w.chain = w.chain[:len(w.chain)-1]
}

func (w *walker) functionDefinition(n *sitter.Node) {
	w.walkType(n.ChildByFieldName("type"), false)

	fd := functionDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		w.walk(n.ChildByFieldName("body"))
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	b, scopes := w.functionBinding(nameNode, hasStorage(n, w.src, "static"))
	if b == nil {
		w.walk(n.ChildByFieldName("body"))
		return
	}
	w.emit(index.Definition, b, lastName(nameNode), false, false)

	// Out-of-line members see their record's members and nested names.
	savedChain, savedMembers := w.chain, w.memberScope
	if len(scopes) > 0 {
		w.chain = append(append([]segment(nil), w.chain...), w.segments(scopes)...)
		if ms, ok := w.members[qualify(w.chain, "")]; ok {
			w.memberScope = ms
		}
	}
	savedFn, savedScope := w.fn, w.scope
	w.fn = b
	w.scope = newScope(nil)

	w.walk(fd.ChildByFieldName("parameters"))
	w.walk(n.ChildByFieldName("body"))

	w.fn, w.scope = savedFn, savedScope
	w.chain, w.memberScope = savedChain, savedMembers
}

// functionBinding returns the function named by nameNode, creating it on
// first sight. scopes holds the explicit qualifiers of an out-of-line name.
func (w *walker) functionBinding(nameNode *sitter.Node, static bool) (*binding, []string) {
	if nameNode == nil {
		return nil, nil
	}
	scopes, last := splitQualified(nameNode, w.src)
	if last == nil {
		return nil, nil
	}
	name := w.text(last)
	chain := append(append([]segment(nil), w.chain...), w.segments(scopes)...)
	q := qualify(chain, name)
	if b, ok := w.globals[q]; ok && b.kind == index.Function {
		return b, scopes
	}
	usr := "c:"
	if static && w.record == nil {
		usr += w.base
	}
	b := &binding{
		kind:      index.Function,
		usr:       usr + chainUSR(chain) + "@F@" + name + "#",
		short:     name,
		qualified: q,
	}
	w.globals[q] = b
	if w.memberScope != nil && len(scopes) == 0 {
		w.memberScope.values[name] = b
	}
	return b, scopes
}

// segments maps explicit qualifiers to chain segments, treating known
// records as records and anything else as a namespace.
func (w *walker) segments(scopes []string) []segment {
	out := make([]segment, 0, len(scopes))
	chain := append([]segment(nil), w.chain...)
	for _, s := range scopes {
		letter := "N"
		if _, ok := w.members[qualify(chain, s)]; ok {
			letter = "S"
		}
		seg := segment{name: s, letter: letter}
		chain = append(chain, seg)
		out = append(out, seg)
	}
	return out
}

func (w *walker) parameter(n *sitter.Node) {
	w.walkType(n.ChildByFieldName("type"), false)
	d := n.ChildByFieldName("declarator")
	if d == nil {
		return
	}
	name, _ := unwrapDeclarator(d)
	if name == nil || w.fn == nil || w.scope == nil {
		return
	}
	b := w.local(n, w.text(name))
	w.emit(index.Definition, b, name, false, false)
	w.walk(n.ChildByFieldName("default_value"))
}

// local binds a block-scope variable declared by decl.
func (w *walker) local(decl *sitter.Node, name string) *binding {
	b := &binding{
		kind:      index.Variable,
		usr:       fmt.Sprintf("c:%s@%d%s@%s", w.base, decl.StartByte(), strings.TrimPrefix(w.fn.usr, "c:"), name),
		short:     name,
		qualified: name,
	}
	w.scope.values[name] = b
	return b
}

func (w *walker) declaration(n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	decls := declarators(n, typ)
	w.walkType(typ, len(decls) == 0)

	extern := hasStorage(n, w.src, "extern")
	static := hasStorage(n, w.src, "static")
	for _, d := range decls {
		var value *sitter.Node
		if d.Type() == "init_declarator" {
			value = d.ChildByFieldName("value")
			d = d.ChildByFieldName("declarator")
		}
		name, isFunc := unwrapDeclarator(d)
		if name == nil {
			w.walk(value)
			continue
		}
		if isFunc {
			if b, _ := w.functionBinding(name, static); b != nil {
				w.emit(index.Declaration, b, lastName(name), false, false)
			}
			w.prototypeTypes(d)
			continue
		}

		cat := index.Definition
		if extern {
			cat = index.Declaration
		}
		var b *binding
		if w.fn != nil && !extern {
			b = w.local(n, w.text(name))
		} else {
			b = w.global(name, static)
		}
		w.emit(cat, b, lastName(name), false, false)
		w.walk(value)
	}
}

// global returns the namespace-level variable named by nameNode.
func (w *walker) global(nameNode *sitter.Node, static bool) *binding {
	scopes, last := splitQualified(nameNode, w.src)
	name := w.text(last)
	chain := append(append([]segment(nil), w.chain...), w.segments(scopes)...)
	q := qualify(chain, name)
	if b, ok := w.globals[q]; ok && b.kind == index.Variable {
		if w.fn != nil && w.scope != nil {
			w.scope.values[name] = b
		}
		return b
	}
	usr := "c:"
	if static {
		usr += w.base
	}
	b := &binding{kind: index.Variable, usr: usr + chainUSR(chain) + "@" + name, short: name, qualified: q}
	w.globals[q] = b
	if w.fn != nil && w.scope != nil {
		w.scope.values[name] = b
	}
	return b
}

// prototypeTypes reports type uses in the parameter list of a function
// declaration without binding the parameter names.
func (w *walker) prototypeTypes(d *sitter.Node) {
	fd := functionDeclarator(d)
	if fd == nil {
		return
	}
	params := fd.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		w.walkType(params.NamedChild(i).ChildByFieldName("type"), false)
	}
}

func (w *walker) fieldDeclaration(n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	decls := declarators(n, typ, n.ChildByFieldName("default_value"))
	w.walkType(typ, false)
	if w.record == nil {
		return
	}
	static := hasStorage(n, w.src, "static")
	for _, d := range decls {
		name, isFunc := unwrapDeclarator(d)
		if name == nil {
			continue
		}
		if isFunc {
			if b, _ := w.functionBinding(name, static); b != nil {
				w.emit(index.Declaration, b, lastName(name), false, false)
			}
			w.prototypeTypes(d)
			continue
		}
		short := w.text(name)
		b := &binding{
			kind:      index.Variable,
			usr:       w.record.usr + "@FI@" + short,
			short:     short,
			qualified: qualify(w.chain, short),
		}
		w.globals[b.qualified] = b
		w.memberScope.values[short] = b
		w.emit(index.Definition, b, name, false, false)
	}
	w.walk(n.ChildByFieldName("default_value"))
}

func (w *walker) typeDefinition(n *sitter.Node) {
	typ := n.ChildByFieldName("type")
	w.walkType(typ, false)
	for _, d := range declarators(n, typ) {
		name, _ := unwrapDeclarator(d)
		if name == nil {
			continue
		}
		w.defineTypeName(name)
	}
}

func (w *walker) aliasDeclaration(n *sitter.Node) {
	w.walk(n.ChildByFieldName("type"))
	if name := n.ChildByFieldName("name"); name != nil {
		w.defineTypeName(name)
	}
}

func (w *walker) defineTypeName(name *sitter.Node) {
	short := w.text(name)
	b := &binding{
		kind:      index.Type,
		usr:       "c:" + chainUSR(w.chain) + "@T@" + short,
		short:     short,
		qualified: qualify(w.chain, short),
	}
	w.types[b.qualified] = b
	w.emit(index.Definition, b, name, false, false)
}

// walkType handles the type of a declaration. forward is set when the
// declaration declares nothing else, as in "struct S;".
func (w *walker) walkType(t *sitter.Node, forward bool) {
	if t == nil {
		return
	}
	switch t.Type() {
	case "struct_specifier", "union_specifier", "class_specifier", "enum_specifier":
		w.typeSpecifier(t, forward)
	default:
		w.walk(t)
	}
}

func (w *walker) typeSpecifier(n *sitter.Node, forward bool) {
	letter := "S"
	switch n.Type() {
	case "union_specifier":
		letter = "U"
	case "enum_specifier":
		letter = "E"
	}
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil && body == nil {
		return
	}

	var b *binding
	if nameNode != nil {
		scopes, last := splitQualified(nameNode, w.src)
		short := w.text(last)
		chain := append(append([]segment(nil), w.chain...), w.segments(scopes)...)
		q := qualify(chain, short)
		if body == nil && len(scopes) == 0 {
			b = w.lookupQualified(w.tags, short)
		} else {
			b = w.tags[q]
		}
		if b == nil {
			b = &binding{kind: index.Type, usr: "c:" + chainUSR(chain) + "@" + letter + "@" + short, short: short, qualified: q}
			w.tags[q] = b
			if _, ok := w.types[q]; !ok {
				w.types[q] = b
			}
		}
		switch {
		case body != nil:
			w.emit(index.Definition, b, last, false, false)
		case forward:
			w.emit(index.Declaration, b, last, false, false)
		default:
			w.emit(index.Reference, b, last, false, false)
		}
	} else {
		b = &binding{kind: index.Type, usr: fmt.Sprintf("c:%s@%sA@%d", chainUSR(w.chain), letter, n.StartByte())}
	}
	if body == nil {
		return
	}

	if letter == "E" {
		w.enumBody(n, body, b)
		return
	}
	w.walk(n.ChildByFieldName("base_class_clause"))

	savedRecord, savedMembers, savedChain := w.record, w.memberScope, w.chain
	ms := newScope(nil)
	if b.qualified != "" {
		w.chain = append(append([]segment(nil), w.chain...), segment{name: b.short, letter: "S"})
		w.members[b.qualified] = ms
	}
	w.record, w.memberScope = b, ms
	w.walkChildren(body)
	w.record, w.memberScope, w.chain = savedRecord, savedMembers, savedChain

	// Members of anonymous records are reached through the enclosing one.
	if b.qualified == "" && savedMembers != nil {
		for k, v := range ms.values {
			savedMembers.values[k] = v
		}
	}
}

func (w *walker) enumBody(n, body *sitter.Node, enum *binding) {
	scoped := false
	for i := 0; i < int(n.ChildCount()); i++ {
		if t := n.Child(i).Type(); t == "class" || t == "struct" {
			scoped = true
		}
	}
	w.walk(n.ChildByFieldName("base"))
	for i := 0; i < int(body.NamedChildCount()); i++ {
		e := body.NamedChild(i)
		if e.Type() != "enumerator" {
			continue
		}
		name := e.ChildByFieldName("name")
		if name == nil {
			continue
		}
		short := w.text(name)
		q := qualify(w.chain, short)
		if scoped {
			q = enum.qualified + "::" + short
		}
		b := &binding{kind: index.Variable, usr: enum.usr + "@" + short, short: short, qualified: q}
		w.globals[q] = b
		if w.memberScope != nil && !scoped {
			w.memberScope.values[short] = b
		}
		w.emit(index.Definition, b, name, false, false)
		w.walk(e.ChildByFieldName("value"))
	}
}

func (w *walker) callExpression(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	switch {
	case fn == nil:
	case fn.Type() == "identifier":
		name := w.text(fn)
		b := w.lookupValue(name)
		if b == nil {
			// Implicit declaration of an unknown external function.
			b = &binding{kind: index.Function, usr: "c:@F@" + name + "#", short: name, qualified: name}
		}
		w.use(b, fn, true)
	case fn.Type() == "qualified_identifier":
		w.qualifiedUse(fn, true)
	case fn.Type() == "field_expression":
		w.fieldExpression(fn, true)
	default:
		w.walk(fn)
	}
	w.walk(n.ChildByFieldName("arguments"))
}

// fieldExpression resolves member accesses through this. Other receivers
// would need type information and only have their operand walked.
func (w *walker) fieldExpression(n *sitter.Node, callee bool) {
	arg := n.ChildByFieldName("argument")
	w.walk(arg)
	if arg == nil || arg.Type() != "this" || w.memberScope == nil {
		return
	}
	field := n.ChildByFieldName("field")
	if field == nil {
		return
	}
	if b, ok := w.memberScope.values[w.text(field)]; ok {
		w.use(b, field, callee)
	}
}

func (w *walker) qualifiedUse(n *sitter.Node, callee bool) {
	scopes, last := splitQualified(n, w.src)
	if last == nil {
		return
	}
	name := w.text(last)
	q := strings.Join(append(append([]string(nil), scopes...), name), "::")
	table := w.globals
	if last.Type() == "type_identifier" {
		table = w.types
	}
	if b := w.lookupQualified(table, q); b != nil {
		w.use(b, last, callee)
	}
}

func (w *walker) typeUse(n *sitter.Node) {
	name := w.text(n)
	b := w.lookupQualified(w.types, name)
	if b == nil {
		b = w.lookupQualified(w.tags, name)
	}
	if b != nil {
		w.use(b, n, false)
	}
}

// use reports a reference to b. Functions referenced from a body are call
// edges whether called or taken by address; the latter, like a call made
// through a variable, counts as indirect.
func (w *walker) use(b *binding, n *sitter.Node, callee bool) {
	switch b.kind {
	case index.Function:
		w.emit(index.Reference, b, n, true, !callee)
	case index.Variable:
		w.emit(index.Reference, b, n, false, callee)
	default:
		w.emit(index.Reference, b, n, false, false)
	}
}
