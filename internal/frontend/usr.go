package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// qualify joins the chain and name with "::". An empty name yields the
// chain's own qualified name.
func qualify(chain []segment, name string) string {
	parts := make([]string, 0, len(chain)+1)
	for _, s := range chain {
		parts = append(parts, s.name)
	}
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, "::")
}

// chainUSR renders the nesting prefix of a USR, e.g. "@N@ns@S@Foo".
func chainUSR(chain []segment) string {
	var b strings.Builder
	for _, s := range chain {
		b.WriteString("@")
		b.WriteString(s.letter)
		b.WriteString("@")
		b.WriteString(s.name)
	}
	return b.String()
}

func hasStorage(n *sitter.Node, src []byte, word string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "storage_class_specifier" && c.Content(src) == word {
			return true
		}
	}
	return false
}

// emptyDeclaration reports a record specifier standing alone as a
// statement, as in "struct S;" or "struct S { ... };".
func emptyDeclaration(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "translation_unit", "declaration_list", "compound_statement", "field_declaration_list":
		return true
	}
	return false
}

// splitQualified splits a possibly qualified name into its scope
// qualifiers and the final name node.
func splitQualified(n *sitter.Node, src []byte) ([]string, *sitter.Node) {
	var scopes []string
	for n != nil && n.Type() == "qualified_identifier" {
		if s := n.ChildByFieldName("scope"); s != nil {
			scopes = append(scopes, s.Content(src))
		}
		n = n.ChildByFieldName("name")
	}
	return scopes, n
}

func lastName(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "qualified_identifier" {
		n = n.ChildByFieldName("name")
	}
	return n
}

var declaratorTypes = map[string]bool{
	"identifier":               true,
	"field_identifier":         true,
	"type_identifier":          true,
	"qualified_identifier":     true,
	"operator_name":            true,
	"destructor_name":          true,
	"init_declarator":          true,
	"pointer_declarator":       true,
	"reference_declarator":     true,
	"array_declarator":         true,
	"function_declarator":      true,
	"parenthesized_declarator": true,
	"attributed_declarator":    true,
}

// declarators returns the declarator children of a declaration-like node,
// leaving out the nodes in skip (its type and default value).
func declarators(n *sitter.Node, skip ...*sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if !declaratorTypes[c.Type()] || sameNode(c, skip) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sameNode(n *sitter.Node, among []*sitter.Node) bool {
	for _, o := range among {
		if o != nil && o.StartByte() == n.StartByte() && o.EndByte() == n.EndByte() {
			return true
		}
	}
	return false
}

// unwrapDeclarator finds the declared name and whether it names a
// function rather than an object (a function pointer is an object).
func unwrapDeclarator(d *sitter.Node) (*sitter.Node, bool) {
	name, fn, _ := unwrap(d)
	return name, fn
}

func unwrap(d *sitter.Node) (*sitter.Node, bool, bool) {
	if d == nil {
		return nil, false, false
	}
	switch d.Type() {
	case "identifier", "field_identifier", "type_identifier", "qualified_identifier",
		"operator_name", "destructor_name":
		return d, false, false
	case "function_declarator":
		name, innerFn, innerPtr := unwrap(d.ChildByFieldName("declarator"))
		return name, innerFn || !innerPtr, false
	case "pointer_declarator":
		name, fn, _ := unwrap(d.ChildByFieldName("declarator"))
		return name, fn, true
	case "reference_declarator":
		if d.NamedChildCount() == 0 {
			return nil, false, false
		}
		name, fn, _ := unwrap(d.NamedChild(0))
		return name, fn, true
	case "parenthesized_declarator":
		if d.NamedChildCount() == 0 {
			return nil, false, false
		}
		return unwrap(d.NamedChild(0))
	case "array_declarator", "attributed_declarator", "init_declarator":
		return unwrap(d.ChildByFieldName("declarator"))
	}
	return nil, false, false
}

// functionDeclarator digs the function declarator out of a definition's
// declarator, e.g. through the pointer of "int *f(void)".
func functionDeclarator(d *sitter.Node) *sitter.Node {
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			return d
		case "pointer_declarator", "array_declarator", "attributed_declarator":
			d = d.ChildByFieldName("declarator")
		case "reference_declarator", "parenthesized_declarator":
			if d.NamedChildCount() == 0 {
				return nil
			}
			d = d.NamedChild(0)
		default:
			return nil
		}
	}
	return nil
}
