package analyzer

import (
	"context"
	"os"
	"sort"
	"strings"

	"tia/internal/imports"
	"tia/internal/logging"
	"tia/internal/paths"
	"tia/internal/tsmodel"
)

// importGraph is the reverse-dependency graph seeded from spec files.
type importGraph struct {
	// reverse maps a dependency to the files that import it
	reverse map[string]map[string]bool
	// specs is the seed set the graph was built from
	specs    map[string]bool
	warnings []string
}

// buildImportGraph parses every spec, follows its dependency chain, and
// records a reverse edge for each resolved in-repo dependency.
func buildImportGraph(ctx context.Context, repoRoot string, specFiles []string, resolver *imports.Resolver, cache *tsmodel.Cache, logger *logging.Logger) *importGraph {
	g := &importGraph{
		reverse: map[string]map[string]bool{},
		specs:   map[string]bool{},
	}
	for _, spec := range specFiles {
		g.specs[spec] = true
	}

	visited := map[string]bool{}
	queue := append([]string{}, specFiles...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		content, err := os.ReadFile(paths.JoinRepoPath(repoRoot, current))
		if err != nil {
			// Spec read errors surface through the selection pipeline;
			// transitive files just stop the chain here
			continue
		}
		model, ok := cache.Model(ctx, "", current, content)
		if !ok {
			g.warnings = append(g.warnings, "unparseable file in import graph: "+current)
			continue
		}

		for _, ref := range imports.ExtractRefs(model) {
			resolved, ok := resolver.Resolve(ref, current)
			if !ok {
				// Parent-directory fallback for bare asset literals
				if strings.Contains(ref, ".") && !strings.HasPrefix(ref, ".") {
					resolved, ok = resolver.ResolveAsset(ref, current)
				}
				if !ok {
					continue
				}
			}

			if g.reverse[resolved] == nil {
				g.reverse[resolved] = map[string]bool{}
			}
			g.reverse[resolved][current] = true

			if resolver.IsTraversable(resolved) && !visited[resolved] {
				queue = append(queue, resolved)
			}
		}
	}

	logger.Debug("import graph built", map[string]interface{}{
		"files": len(visited),
		"deps":  len(g.reverse),
	})

	return g
}

// matchSpecs traverses reverse edges from the changed source seed set and
// returns every spec reached, sorted.
func (g *importGraph) matchSpecs(changedPaths []string) []string {
	matched := map[string]bool{}
	visited := map[string]bool{}
	queue := append([]string{}, changedPaths...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		if g.specs[current] {
			matched[current] = true
		}
		for dependent := range g.reverse[current] {
			if !visited[dependent] {
				queue = append(queue, dependent)
			}
		}
	}

	result := make([]string, 0, len(matched))
	for spec := range matched {
		result = append(result, spec)
	}
	sort.Strings(result)
	return result
}
