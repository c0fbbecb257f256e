package tsmodel

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// FindNodes finds all nodes of the given types anywhere under root.
func FindNodes(root *sitter.Node, types ...string) []*sitter.Node {
	if len(types) == 0 {
		return nil
	}

	var result []*sitter.Node

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		for _, t := range types {
			if node.Type() == t {
				result = append(result, node)
				break
			}
		}

		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)))
		}
	}

	walk(root)
	return result
}

// Walk visits every node under root in document order. Returning false
// from fn prunes the subtree.
func Walk(root *sitter.Node, fn func(*sitter.Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for i := uint32(0); i < root.ChildCount(); i++ {
		Walk(root.Child(int(i)), fn)
	}
}

// NamedChildren returns the named children of a node.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint32(0); i < node.NamedChildCount(); i++ {
		out = append(out, node.NamedChild(int(i)))
	}
	return out
}

// FirstChildOfType returns the first direct child (named or not) with the
// given type, or nil.
func FirstChildOfType(node *sitter.Node, typ string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		child := node.Child(int(i))
		if child != nil && child.Type() == typ {
			return child
		}
	}
	return nil
}

// HasChildOfType reports whether the node has a direct child of the type.
func HasChildOfType(node *sitter.Node, typ string) bool {
	return FirstChildOfType(node, typ) != nil
}

// StringLiteralValue returns the unquoted text of a string node, or
// ("", false) when the node is not a plain string literal.
func StringLiteralValue(node *sitter.Node, source []byte) (string, bool) {
	if node == nil || node.Type() != "string" {
		return "", false
	}
	for i := uint32(0); i < node.NamedChildCount(); i++ {
		frag := node.NamedChild(int(i))
		if frag.Type() == "string_fragment" {
			return frag.Content(source), true
		}
	}
	// Empty string literal has no fragment child
	text := node.Content(source)
	if len(text) >= 2 {
		return text[1 : len(text)-1], true
	}
	return "", true
}
