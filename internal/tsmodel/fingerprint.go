package tsmodel

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Fingerprint renders an AST subtree as normalized text: comments are
// dropped and every remaining token is joined with a single space. Two
// fingerprints are equal iff the subtrees are semantically equivalent
// under this normalization, which makes whitespace- and comment-only
// edits invisible.
func Fingerprint(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}

	var tokens []string
	Walk(node, func(n *sitter.Node) bool {
		if n.Type() == "comment" {
			return false
		}
		if n.ChildCount() == 0 {
			text := strings.TrimSpace(n.Content(source))
			if text != "" {
				tokens = append(tokens, text)
			}
		}
		return true
	})

	return strings.Join(tokens, " ")
}

// MemberFingerprint combines a member's overload-signature fingerprints
// with its implementation-body fingerprint.
func MemberFingerprint(m *Member, source []byte) string {
	if m == nil {
		return ""
	}

	parts := make([]string, 0, len(m.OverloadNodes)+1)
	for _, overload := range m.OverloadNodes {
		parts = append(parts, Fingerprint(overload, source))
	}
	if m.ImplementationNode != nil {
		parts = append(parts, Fingerprint(m.ImplementationNode, source))
	}

	return strings.Join(parts, "|")
}

// TopLevelRuntimeFingerprint concatenates the fingerprints of every
// runtime top-level statement. Type-only imports and exports, interface
// and type-alias declarations, and class declarations are excluded —
// class bodies diff member by member so a single-method edit does not
// read as a file-wide change.
func TopLevelRuntimeFingerprint(model *FileModel) string {
	if model.Root == nil {
		return ""
	}

	var parts []string
	for _, stmt := range NamedChildren(model.Root) {
		if !isRuntimeStatement(stmt, model.Source) {
			continue
		}
		parts = append(parts, Fingerprint(stmt, model.Source))
	}

	return strings.Join(parts, "\n")
}

func isRuntimeStatement(stmt *sitter.Node, source []byte) bool {
	switch stmt.Type() {
	case "comment",
		"interface_declaration",
		"type_alias_declaration",
		"class_declaration",
		"abstract_class_declaration",
		"ambient_declaration":
		return false
	case "import_statement":
		return !isTypeOnly(stmt, source)
	case "export_statement":
		if isTypeOnly(stmt, source) {
			return false
		}
		if decl := stmt.ChildByFieldName("declaration"); decl != nil {
			switch decl.Type() {
			case "class_declaration", "abstract_class_declaration",
				"interface_declaration", "type_alias_declaration":
				return false
			}
		}
		return true
	default:
		return true
	}
}

// isTypeOnly reports whether an import/export statement is declared with
// the `type` keyword (`import type {...}`, `export type {...}`).
func isTypeOnly(stmt *sitter.Node, source []byte) bool {
	fields := strings.Fields(stmt.Content(source))
	if len(fields) < 3 {
		return false
	}
	return (fields[0] == "import" || fields[0] == "export") && fields[1] == "type" && fields[2] != "from"
}
