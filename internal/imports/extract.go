// Package imports extracts module references from sources and resolves
// them to in-repo files using relative paths, tsconfig-style aliases, and
// asset-name fallbacks.
package imports

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"tia/internal/tsmodel"
)

// filenameLiteral matches string literals that look like file names with
// an extension: path characters only, a dot-suffixed extension, no spaces.
var filenameLiteral = regexp.MustCompile(`^[\w@~./-]+\.[A-Za-z0-9]{1,6}$`)

// ExtractRefs collects every module reference in a parsed file: static
// imports, re-exports, dynamic imports, require-like calls, and string
// literals that look like filenames. Order follows the document; each
// reference appears once.
func ExtractRefs(model *tsmodel.FileModel) []string {
	if model.Root == nil {
		return nil
	}

	var refs []string
	seen := map[string]bool{}
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	tsmodel.Walk(model.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement", "export_statement":
			if src := n.ChildByFieldName("source"); src != nil {
				if lit, ok := tsmodel.StringLiteralValue(src, model.Source); ok {
					add(lit)
				}
			}
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil {
				return true
			}
			isDynamicImport := fn.Type() == "import"
			isRequire := fn.Type() == "identifier" && fn.Content(model.Source) == "require"
			if !isDynamicImport && !isRequire {
				return true
			}
			if args := n.ChildByFieldName("arguments"); args != nil {
				for _, arg := range tsmodel.NamedChildren(args) {
					if lit, ok := tsmodel.StringLiteralValue(arg, model.Source); ok {
						add(lit)
					}
				}
			}
		case "string":
			if lit, ok := tsmodel.StringLiteralValue(n, model.Source); ok {
				if filenameLiteral.MatchString(lit) {
					add(lit)
				}
			}
			return false
		}
		return true
	})

	return refs
}
