// Package fixtures parses the fixture types declaration into the
// bidirectional mapping between fixture keys and POM class names.
package fixtures

import (
	"context"
	"os"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"tia/internal/tsmodel"
)

// Map is the bidirectional fixture binding table.
type Map struct {
	// ClassToKeys maps a class name to the fixture keys bound to it
	ClassToKeys map[string]map[string]bool
	// KeyToClass is the inverse mapping
	KeyToClass map[string]string
}

// NewMap returns an empty fixture map.
func NewMap() *Map {
	return &Map{
		ClassToKeys: map[string]map[string]bool{},
		KeyToClass:  map[string]string{},
	}
}

// KeysForClasses collects the fixture keys bound to any of the classes.
func (m *Map) KeysForClasses(classes map[string]bool) map[string]bool {
	keys := make(map[string]bool)
	for class := range classes {
		for key := range m.ClassToKeys[class] {
			keys[key] = true
		}
	}
	return keys
}

// SortedKeys returns all fixture keys in lexicographic order.
func (m *Map) SortedKeys() []string {
	keys := make([]string, 0, len(m.KeyToClass))
	for k := range m.KeyToClass {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) add(key, class string) {
	if key == "" || class == "" {
		return
	}
	if m.ClassToKeys[class] == nil {
		m.ClassToKeys[class] = map[string]bool{}
	}
	m.ClassToKeys[class][key] = true
	m.KeyToClass[key] = class
}

// Load parses the declaration file at path. A missing file yields an
// empty map; unreadable or unparseable content returns the error.
func Load(ctx context.Context, path string) (*Map, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMap(), nil
		}
		return nil, err
	}
	return Parse(ctx, path, content)
}

// Parse extracts fixture bindings from declaration file content.
func Parse(ctx context.Context, path string, content []byte) (*Map, error) {
	parser := tsmodel.NewParser()
	lang, ok := tsmodel.LanguageForPath(path)
	if !ok {
		lang = tsmodel.LangTypeScript
	}
	root, err := parser.Parse(ctx, content, lang)
	if err != nil {
		return nil, err
	}

	r := &resolver{
		source:       content,
		declarations: map[string]*sitter.Node{},
		memo:         map[string][]pair{},
		resolving:    map[string]bool{},
	}
	r.indexDeclarations(root)

	m := NewMap()
	for _, stmt := range tsmodel.NamedChildren(root) {
		decl := unwrapExport(stmt)
		if decl == nil {
			continue
		}
		for _, p := range r.declarationPairs(decl) {
			m.add(p.key, p.class)
		}
	}

	return m, nil
}

type pair struct {
	key   string
	class string
}

// resolver walks declared types, dereferencing local type references with
// memoization and a cycle guard.
type resolver struct {
	source       []byte
	declarations map[string]*sitter.Node
	memo         map[string][]pair
	resolving    map[string]bool
}

func unwrapExport(stmt *sitter.Node) *sitter.Node {
	switch stmt.Type() {
	case "type_alias_declaration", "interface_declaration":
		return stmt
	case "export_statement":
		if decl := stmt.ChildByFieldName("declaration"); decl != nil {
			switch decl.Type() {
			case "type_alias_declaration", "interface_declaration":
				return decl
			}
		}
	}
	return nil
}

func (r *resolver) indexDeclarations(root *sitter.Node) {
	for _, stmt := range tsmodel.NamedChildren(root) {
		decl := unwrapExport(stmt)
		if decl == nil {
			continue
		}
		if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
			r.declarations[nameNode.Content(r.source)] = decl
		}
	}
}

// declarationPairs resolves one named declaration, memoized and guarded
// against reference cycles.
func (r *resolver) declarationPairs(decl *sitter.Node) []pair {
	name := ""
	if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(r.source)
	}

	if name != "" {
		if cached, ok := r.memo[name]; ok {
			return cached
		}
		if r.resolving[name] {
			return nil
		}
		r.resolving[name] = true
		defer delete(r.resolving, name)
	}

	var pairs []pair
	switch decl.Type() {
	case "type_alias_declaration":
		if value := decl.ChildByFieldName("value"); value != nil {
			pairs = r.typePairs(value)
		}
	case "interface_declaration":
		pairs = r.interfacePairs(decl)
	}

	if name != "" {
		r.memo[name] = pairs
	}
	return pairs
}

// typePairs flattens a type expression into its fixture pairs.
func (r *resolver) typePairs(typeNode *sitter.Node) []pair {
	switch typeNode.Type() {
	case "object_type", "interface_body":
		return r.literalPairs(typeNode)
	case "intersection_type", "union_type":
		var pairs []pair
		for _, child := range tsmodel.NamedChildren(typeNode) {
			pairs = append(pairs, r.typePairs(child)...)
		}
		return pairs
	case "parenthesized_type":
		for _, child := range tsmodel.NamedChildren(typeNode) {
			return r.typePairs(child)
		}
		return nil
	case "type_identifier", "nested_type_identifier":
		return r.referencePairs(referenceName(typeNode, r.source))
	case "generic_type":
		if nameNode := typeNode.ChildByFieldName("name"); nameNode != nil {
			return r.referencePairs(referenceName(nameNode, r.source))
		}
		return nil
	default:
		return nil
	}
}

// referencePairs dereferences a named type to its local declaration.
func (r *resolver) referencePairs(name string) []pair {
	if name == "" {
		return nil
	}
	decl, ok := r.declarations[name]
	if !ok {
		return nil
	}
	return r.declarationPairs(decl)
}

// literalPairs reads (property-name, class-name) pairs from a type
// literal or interface body.
func (r *resolver) literalPairs(body *sitter.Node) []pair {
	var pairs []pair
	for _, member := range tsmodel.NamedChildren(body) {
		if member.Type() != "property_signature" {
			continue
		}
		nameNode := member.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		key := propertyName(nameNode, r.source)

		annotation := member.ChildByFieldName("type")
		if annotation == nil {
			annotation = tsmodel.FirstChildOfType(member, "type_annotation")
		}
		class := annotatedReference(annotation, r.source)
		if key == "" || class == "" {
			continue
		}
		pairs = append(pairs, pair{key: key, class: class})
	}
	return pairs
}

// interfacePairs resolves an interface body plus its extends clause.
func (r *resolver) interfacePairs(decl *sitter.Node) []pair {
	var pairs []pair

	for _, clauseType := range []string{"extends_type_clause", "extends_clause"} {
		clause := tsmodel.FirstChildOfType(decl, clauseType)
		if clause == nil {
			continue
		}
		for _, ref := range tsmodel.NamedChildren(clause) {
			switch ref.Type() {
			case "type_identifier", "nested_type_identifier", "identifier":
				pairs = append(pairs, r.referencePairs(referenceName(ref, r.source))...)
			case "generic_type":
				if nameNode := ref.ChildByFieldName("name"); nameNode != nil {
					pairs = append(pairs, r.referencePairs(referenceName(nameNode, r.source))...)
				}
			}
		}
	}

	if body := decl.ChildByFieldName("body"); body != nil {
		pairs = append(pairs, r.literalPairs(body)...)
	}
	return pairs
}

func propertyName(nameNode *sitter.Node, source []byte) string {
	if lit, ok := tsmodel.StringLiteralValue(nameNode, source); ok {
		return lit
	}
	return nameNode.Content(source)
}

// referenceName yields the rightmost identifier of a possibly qualified
// type reference.
func referenceName(node *sitter.Node, source []byte) string {
	text := node.Content(source)
	if idx := strings.LastIndex(text, "."); idx >= 0 {
		text = text[idx+1:]
	}
	return text
}

// annotatedReference extracts the class name referenced by a property's
// type annotation. Only identifiers starting with an uppercase letter are
// accepted as class names.
func annotatedReference(annotation *sitter.Node, source []byte) string {
	if annotation == nil {
		return ""
	}
	for _, child := range tsmodel.NamedChildren(annotation) {
		var name string
		switch child.Type() {
		case "type_identifier", "nested_type_identifier":
			name = referenceName(child, source)
		case "generic_type":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				name = referenceName(nameNode, source)
			}
		}
		if tsmodel.IsClassName(name) {
			return name
		}
	}
	return ""
}
