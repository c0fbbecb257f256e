// Package inherit builds the class inheritance graph from the analysis
// roots. Only direct single-class `extends` is modeled; the relation is a
// forest.
package inherit

import (
	"context"
	"os"
	"sort"

	"tia/internal/logging"
	"tia/internal/paths"
	"tia/internal/tsmodel"
)

// Graph holds the parent-child class relation. Immutable after Scan.
type Graph struct {
	// ParentsByChild maps each class to its single direct parent
	ParentsByChild map[string]string
	// ChildrenByParent is the transposed view
	ChildrenByParent map[string]map[string]bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		ParentsByChild:   map[string]string{},
		ChildrenByParent: map[string]map[string]bool{},
	}
}

func (g *Graph) add(child, parent string) {
	if child == "" || parent == "" {
		return
	}
	g.ParentsByChild[child] = parent
	if g.ChildrenByParent[parent] == nil {
		g.ChildrenByParent[parent] = map[string]bool{}
	}
	g.ChildrenByParent[parent][child] = true
}

// Lineage returns the class itself followed by each ancestor. A defensive
// cycle guard caps the walk; POM hierarchies are shallow.
func (g *Graph) Lineage(class string) []string {
	var lineage []string
	seen := map[string]bool{}
	for current := class; current != "" && !seen[current]; current = g.ParentsByChild[current] {
		seen[current] = true
		lineage = append(lineage, current)
	}
	return lineage
}

// Descendants returns every transitive child of the class.
func (g *Graph) Descendants(class string) map[string]bool {
	result := map[string]bool{}
	queue := []string{class}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for child := range g.ChildrenByParent[current] {
			if !result[child] {
				result[child] = true
				queue = append(queue, child)
			}
		}
	}
	return result
}

// Scanner builds inheritance graphs from source trees.
type Scanner struct {
	cache  *tsmodel.Cache
	logger *logging.Logger
}

// NewScanner creates a scanner sharing the given model cache, so files
// parsed here are not re-parsed by later stages.
func NewScanner(cache *tsmodel.Cache, logger *logging.Logger) *Scanner {
	return &Scanner{cache: cache, logger: logger}
}

// Scan reads every source file under the analysis roots and extracts
// `extends` relations. Unreadable or unparseable files are skipped with a
// warning. The returned file list is the sorted union of scanned files.
func (s *Scanner) Scan(ctx context.Context, repoRoot string, rootsRel []string, extensions []string) (*Graph, []string, []string) {
	graph := NewGraph()
	var warnings []string
	fileSet := map[string]bool{}

	for _, rootRel := range rootsRel {
		files, err := paths.ListSourceFiles(repoRoot, rootRel, extensions)
		if err != nil {
			warnings = append(warnings, "analysis root walk failed: "+rootRel+": "+err.Error())
			continue
		}

		for _, rel := range files {
			if fileSet[rel] {
				continue
			}
			fileSet[rel] = true

			content, err := os.ReadFile(paths.JoinRepoPath(repoRoot, rel))
			if err != nil {
				warnings = append(warnings, "unreadable source file: "+rel)
				continue
			}

			model, ok := s.cache.Model(ctx, "", rel, content)
			if !ok {
				warnings = append(warnings, "unparseable source file: "+rel)
				continue
			}

			for _, name := range model.ClassNames() {
				cls := model.Classes[name]
				if cls.Parent != "" {
					graph.add(cls.Name, cls.Parent)
				}
			}
		}
	}

	files := make([]string, 0, len(fileSet))
	for f := range fileSet {
		files = append(files, f)
	}
	sort.Strings(files)

	s.logger.Debug("inheritance scan complete", map[string]interface{}{
		"files":   len(files),
		"classes": len(graph.ParentsByChild),
	})

	return graph, files, warnings
}
