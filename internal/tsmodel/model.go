package tsmodel

import (
	"context"
	"sort"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

// MemberKind distinguishes members that share a name. A getter and a
// setter with the same name diff separately; a property replaced by a
// method of the same name is a change.
type MemberKind string

const (
	// KindConstructor is the class constructor
	KindConstructor MemberKind = "constructor"
	// KindCall is an ordinary method
	KindCall MemberKind = "call"
	// KindGet is a getter accessor
	KindGet MemberKind = "get"
	// KindSet is a setter accessor
	KindSet MemberKind = "set"
	// KindField is a property declaration
	KindField MemberKind = "field"
)

// MemberIdentity keys a member inside its class.
type MemberIdentity struct {
	Kind MemberKind
	Name string
}

// Member models one class member across its overloads and implementation.
type Member struct {
	ClassName string
	Name      string
	Kind      MemberKind
	// Callable is true for constructors, methods, accessors, and fields
	// whose declared value is a function expression.
	Callable bool
	// OverloadNodes are body-less signature declarations
	OverloadNodes []*sitter.Node
	// ImplementationNode is the declaration carrying the body, if any
	ImplementationNode *sitter.Node
}

// Class models one class declaration.
type Class struct {
	Name string
	// Parent is the directly extended class name, or ""
	Parent  string
	Members map[MemberIdentity]*Member
	// ComposedFields maps field name to the class name of its instance,
	// from type annotations and constructor `this.<f> = new <T>()` bodies.
	ComposedFields map[string]string
}

// CallableByName resolves a callable member by bare name, the projection
// used by call-graph and impact resolution.
func (c *Class) CallableByName(name string) *Member {
	for _, kind := range []MemberKind{KindCall, KindGet, KindSet, KindConstructor, KindField} {
		if m, ok := c.Members[MemberIdentity{Kind: kind, Name: name}]; ok && m.Callable {
			return m
		}
	}
	return nil
}

// CallableNames returns the sorted names of all callable members.
func (c *Class) CallableNames() []string {
	seen := make(map[string]bool)
	for id, m := range c.Members {
		if m.Callable {
			seen[id.Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FileModel is the parsed model of one source file revision.
type FileModel struct {
	Path    string
	Source  []byte
	Root    *sitter.Node
	Classes map[string]*Class
}

// ClassNames returns the sorted class names defined in the file.
func (f *FileModel) ClassNames() []string {
	names := make([]string, 0, len(f.Classes))
	for n := range f.Classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EmptyFileModel is the model of a missing or unparseable revision.
func EmptyFileModel(path string) *FileModel {
	return &FileModel{Path: path, Classes: map[string]*Class{}}
}

// IsClassName reports whether an identifier names a class by the engine's
// convention: first letter uppercase.
func IsClassName(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper(rune(name[0]))
}

// BuildFileModel parses source and extracts every class defined in it.
func (p *Parser) BuildFileModel(ctx context.Context, path string, source []byte) (*FileModel, error) {
	lang, ok := LanguageForPath(path)
	if !ok {
		lang = LangTypeScript
	}

	root, err := p.Parse(ctx, source, lang)
	if err != nil {
		return nil, err
	}

	model := &FileModel{
		Path:    path,
		Source:  source,
		Root:    root,
		Classes: map[string]*Class{},
	}

	for _, node := range FindNodes(root, "class_declaration", "abstract_class_declaration", "class") {
		cls := extractClass(node, source)
		if cls == nil {
			continue
		}
		model.Classes[cls.Name] = cls
	}

	return model, nil
}

// extractClass builds the Class model from a class declaration node.
func extractClass(node *sitter.Node, source []byte) *Class {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(source)
	if !IsClassName(name) {
		return nil
	}

	cls := &Class{
		Name:           name,
		Members:        map[MemberIdentity]*Member{},
		ComposedFields: map[string]string{},
	}

	if heritage := FirstChildOfType(node, "class_heritage"); heritage != nil {
		if ext := FirstChildOfType(heritage, "extends_clause"); ext != nil {
			cls.Parent = extendsClassName(ext, source)
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return cls
	}

	for i := uint32(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(int(i))
		switch member.Type() {
		case "method_definition":
			addMethodNode(cls, member, source, true)
		case "method_signature", "abstract_method_signature":
			addMethodNode(cls, member, source, false)
		case "public_field_definition", "field_definition":
			addFieldNode(cls, member, source)
		}
	}

	if ctor, ok := cls.Members[MemberIdentity{Kind: KindConstructor, Name: "constructor"}]; ok {
		collectConstructorCompositions(cls, ctor, source)
	}

	return cls
}

// extendsClassName extracts the extended class name from an extends
// clause. Qualified names keep the rightmost identifier; expression-valued
// heritage (mixin calls) is ignored.
func extendsClassName(ext *sitter.Node, source []byte) string {
	for i := uint32(0); i < ext.NamedChildCount(); i++ {
		child := ext.NamedChild(int(i))
		switch child.Type() {
		case "identifier", "type_identifier":
			name := child.Content(source)
			if IsClassName(name) {
				return name
			}
		case "member_expression", "nested_type_identifier", "nested_identifier":
			name := rightmostIdentifier(child, source)
			if IsClassName(name) {
				return name
			}
		}
	}
	return ""
}

// rightmostIdentifier returns the final identifier of a qualified name.
func rightmostIdentifier(node *sitter.Node, source []byte) string {
	text := node.Content(source)
	if idx := strings.LastIndex(text, "."); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// memberName resolves a member's declared name. Computed names with a
// literal key use the literal; dynamic computed names use the raw text.
func memberName(nameNode *sitter.Node, source []byte) string {
	if nameNode == nil {
		return ""
	}
	switch nameNode.Type() {
	case "computed_property_name":
		for i := uint32(0); i < nameNode.NamedChildCount(); i++ {
			if lit, ok := StringLiteralValue(nameNode.NamedChild(int(i)), source); ok {
				return lit
			}
		}
		return nameNode.Content(source)
	case "string":
		if lit, ok := StringLiteralValue(nameNode, source); ok {
			return lit
		}
		return nameNode.Content(source)
	default:
		return nameNode.Content(source)
	}
}

// addMethodNode records a method, accessor, or constructor declaration.
// Body-carrying declarations become the implementation; signatures stack
// as overloads of the same identity.
func addMethodNode(cls *Class, node *sitter.Node, source []byte, hasBody bool) {
	name := memberName(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}

	kind := KindCall
	switch {
	case name == "constructor":
		kind = KindConstructor
	case HasChildOfType(node, "get"):
		kind = KindGet
	case HasChildOfType(node, "set"):
		kind = KindSet
	}

	id := MemberIdentity{Kind: kind, Name: name}
	m, ok := cls.Members[id]
	if !ok {
		m = &Member{ClassName: cls.Name, Name: name, Kind: kind, Callable: true}
		cls.Members[id] = m
	}

	if hasBody && node.ChildByFieldName("body") != nil {
		m.ImplementationNode = node
	} else {
		m.OverloadNodes = append(m.OverloadNodes, node)
	}
}

// addFieldNode records a field declaration. Function-valued fields are
// callable; type-annotated fields with a class-named type contribute a
// composed field.
func addFieldNode(cls *Class, node *sitter.Node, source []byte) {
	name := memberName(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}

	id := MemberIdentity{Kind: KindField, Name: name}
	m, ok := cls.Members[id]
	if !ok {
		m = &Member{ClassName: cls.Name, Name: name, Kind: KindField}
		cls.Members[id] = m
	}
	m.ImplementationNode = node

	if value := node.ChildByFieldName("value"); value != nil {
		switch value.Type() {
		case "arrow_function", "function", "function_expression", "generator_function":
			m.Callable = true
		}
	}

	if annotation := FirstChildOfType(node, "type_annotation"); annotation != nil {
		if typeName := annotatedClassName(annotation, source); typeName != "" {
			cls.ComposedFields[name] = typeName
		}
	}
}

// annotatedClassName extracts a class name from a type annotation when the
// declared type is a plain (possibly qualified or generic) reference.
func annotatedClassName(annotation *sitter.Node, source []byte) string {
	for i := uint32(0); i < annotation.NamedChildCount(); i++ {
		child := annotation.NamedChild(int(i))
		switch child.Type() {
		case "type_identifier":
			if name := child.Content(source); IsClassName(name) {
				return name
			}
		case "nested_type_identifier":
			if name := rightmostIdentifier(child, source); IsClassName(name) {
				return name
			}
		case "generic_type":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				if name := rightmostIdentifier(nameNode, source); IsClassName(name) {
					return name
				}
			}
		}
	}
	return ""
}

// collectConstructorCompositions scans the constructor body for
// `this.<field> = new <Type>(...)` assignments.
func collectConstructorCompositions(cls *Class, ctor *Member, source []byte) {
	if ctor.ImplementationNode == nil {
		return
	}
	body := ctor.ImplementationNode.ChildByFieldName("body")
	if body == nil {
		return
	}

	for _, assign := range FindNodes(body, "assignment_expression") {
		left := assign.ChildByFieldName("left")
		right := assign.ChildByFieldName("right")
		if left == nil || right == nil || right.Type() != "new_expression" {
			continue
		}
		if left.Type() != "member_expression" {
			continue
		}
		obj := left.ChildByFieldName("object")
		prop := left.ChildByFieldName("property")
		if obj == nil || prop == nil || obj.Type() != "this" {
			continue
		}

		ctorNode := right.ChildByFieldName("constructor")
		if ctorNode == nil {
			continue
		}
		typeName := rightmostIdentifier(ctorNode, source)
		if !IsClassName(typeName) {
			continue
		}
		cls.ComposedFields[prop.Content(source)] = typeName
	}
}
