// Package globwatch decides whether a change set touches a force-all
// watch target: a configured glob pattern or anything in the transitive
// import closure of the pattern-matched files.
package globwatch

import (
	"context"
	"os"
	"sort"

	"tia/internal/globmatch"
	"tia/internal/imports"
	"tia/internal/logging"
	"tia/internal/paths"
	"tia/internal/tsmodel"
)

// Mode selects global-watch behavior.
type Mode string

const (
	// ModeForceAll selects every spec when a watch target changes
	ModeForceAll Mode = "force-all-in-project"
	// ModeDisabled suppresses the evaluator entirely
	ModeDisabled Mode = "disabled"
)

// DefaultPatterns is the built-in watch list.
var DefaultPatterns = []string{
	"playwright.*.config.*",
	"playwright.config.*",
	"src/fixtures/**",
	"package.json",
	"tsconfig*.json",
}

// Evaluation is the evaluator's verdict.
type Evaluation struct {
	// ForceAll is true when any changed path is a watch target
	ForceAll bool
	// MatchedPaths lists the changed paths that triggered force-all, sorted
	MatchedPaths []string
	// WatchedFiles counts pattern-matched repo files
	WatchedFiles int
	// ClosureSize counts files in the transitive import closure
	ClosureSize int
	Warnings    []string
}

// Evaluator computes force-all verdicts.
type Evaluator struct {
	mode       Mode
	patterns   *globmatch.Set
	resolver   *imports.Resolver
	cache      *tsmodel.Cache
	repoRoot   string
	extensions []string
	logger     *logging.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(mode Mode, patterns []string, resolver *imports.Resolver, cache *tsmodel.Cache, repoRoot string, extensions []string, logger *logging.Logger) *Evaluator {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Evaluator{
		mode:       mode,
		patterns:   globmatch.CompileSet(patterns),
		resolver:   resolver,
		cache:      cache,
		repoRoot:   repoRoot,
		extensions: extensions,
		logger:     logger,
	}
}

// Evaluate checks the changed paths against the watch patterns and the
// import closure of every pattern-matched file in the repository.
func (e *Evaluator) Evaluate(ctx context.Context, changedPaths []string) *Evaluation {
	eval := &Evaluation{}
	if e.mode == ModeDisabled {
		return eval
	}

	repoFiles, err := paths.ListAllFiles(e.repoRoot, ".")
	if err != nil {
		eval.Warnings = append(eval.Warnings, "repository walk failed: "+err.Error())
	}

	// Watch roots: every repo file matching a pattern
	watchSet := map[string]bool{}
	for _, f := range repoFiles {
		if e.patterns.MatchAny(f) {
			watchSet[f] = true
		}
	}
	eval.WatchedFiles = len(watchSet)

	closure := e.importClosure(ctx, watchSet, eval)
	eval.ClosureSize = len(closure)

	matched := map[string]bool{}
	for _, p := range changedPaths {
		// Direct pattern match also covers deleted watch files that no
		// longer appear in the repository listing
		if e.patterns.MatchAny(p) || watchSet[p] || closure[p] {
			matched[p] = true
		}
	}

	for p := range matched {
		eval.MatchedPaths = append(eval.MatchedPaths, p)
	}
	sort.Strings(eval.MatchedPaths)
	eval.ForceAll = len(eval.MatchedPaths) > 0

	if eval.ForceAll {
		e.logger.Info("global watch triggered", map[string]interface{}{
			"matched": eval.MatchedPaths,
		})
	}

	return eval
}

// importClosure expands the watch set through module references. Asset
// dependencies are included but not traversed.
func (e *Evaluator) importClosure(ctx context.Context, watchSet map[string]bool, eval *Evaluation) map[string]bool {
	closure := map[string]bool{}
	var queue []string
	for f := range watchSet {
		if e.resolver.IsTraversable(f) {
			queue = append(queue, f)
		}
	}
	sort.Strings(queue)

	visited := map[string]bool{}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		content, err := os.ReadFile(paths.JoinRepoPath(e.repoRoot, current))
		if err != nil {
			eval.Warnings = append(eval.Warnings, "unreadable watch file: "+current)
			continue
		}
		model, ok := e.cache.Model(ctx, "", current, content)
		if !ok {
			eval.Warnings = append(eval.Warnings, "unparseable watch file: "+current)
			continue
		}

		for _, ref := range imports.ExtractRefs(model) {
			resolved, ok := e.resolver.Resolve(ref, current)
			if !ok {
				continue
			}
			if !closure[resolved] {
				closure[resolved] = true
				if e.resolver.IsTraversable(resolved) {
					queue = append(queue, resolved)
				}
			}
		}
	}

	return closure
}
