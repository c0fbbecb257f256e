// Package analyzer orchestrates the selection pipeline: change-set
// normalization, global watch, fixture map, inheritance scan, semantic
// change detection, impact propagation, import-graph matching, spec
// selection, and result assembly.
package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tia/internal/changeset"
	"tia/internal/config"
	"tia/internal/detect"
	tiaerrors "tia/internal/errors"
	"tia/internal/fixtures"
	"tia/internal/gitio"
	"tia/internal/globwatch"
	"tia/internal/imports"
	"tia/internal/inherit"
	"tia/internal/logging"
	"tia/internal/paths"
	"tia/internal/propagate"
	"tia/internal/specmatch"
	"tia/internal/tsmodel"
)

// Options is the invocation configuration record.
type Options struct {
	// RepoRoot is the absolute repository root; required
	RepoRoot string
	// BaseRef enables the base-vs-head comparison; empty means
	// working-tree only
	BaseRef string
	// Profile selects what to analyze; required
	Profile *config.Profile

	// DiffFile, when set, supplies a pre-computed unified diff instead of
	// invoking the base-vs-head comparison
	DiffFile string

	// IncludeUntrackedSpecs counts untracked spec files as direct changes
	IncludeUntrackedSpecs bool
	// IncludeWorkingTreeWithBase unions the working-tree comparison with
	// the base-vs-head comparison
	IncludeWorkingTreeWithBase bool

	// SelectionBias is the uncertain-site policy
	SelectionBias specmatch.Bias

	// TsconfigRel is the alias declaration file; default tsconfig.json
	TsconfigRel string

	// Store optionally persists member fingerprints across runs
	Store detect.FingerprintStore

	Logger *logging.Logger
}

// NewOptions returns Options with the documented defaults.
func NewOptions(repoRoot string, profile *config.Profile) Options {
	return Options{
		RepoRoot:                   repoRoot,
		Profile:                    profile,
		IncludeUntrackedSpecs:      true,
		IncludeWorkingTreeWithBase: true,
		SelectionBias:              specmatch.BiasFailOpen,
		TsconfigRel:                "tsconfig.json",
	}
}

func (o *Options) validate() error {
	if o.RepoRoot == "" {
		return tiaerrors.Newf(tiaerrors.ConfigInvalid, "repoRoot is required")
	}
	if !filepath.IsAbs(o.RepoRoot) {
		return tiaerrors.Newf(tiaerrors.ConfigInvalid, "repoRoot must be absolute: %s", o.RepoRoot)
	}
	if o.Profile == nil {
		return tiaerrors.Newf(tiaerrors.ProfileMissing, "no analysis profile resolved")
	}
	o.Profile.ApplyDefaults()
	if err := o.Profile.Validate(); err != nil {
		return tiaerrors.New(tiaerrors.ConfigInvalid, "invalid profile", err)
	}

	if o.TsconfigRel == "" {
		o.TsconfigRel = "tsconfig.json"
	}
	if o.SelectionBias == "" {
		o.SelectionBias = specmatch.BiasFailOpen
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return nil
}

// Analyze runs the full pipeline once. All state is per-invocation.
func Analyze(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	profile := opts.Profile

	result := &Result{
		InvocationID: uuid.NewString(),
		GlobalWatch:  GlobalWatchSummary{Mode: profile.GlobalWatchMode},
	}
	asm := newAssembler(opts.RepoRoot)
	runner := gitio.NewRunner(opts.RepoRoot, logger)

	entries, err := enumerateChanges(&opts, runner, asm)
	if err != nil {
		return nil, err
	}

	entries = changeset.Normalize(entries, func(path string) bool {
		return !strings.HasPrefix(path, "..")
	})
	changedPaths := changeset.Paths(entries)

	result.Stats.ChangeEntries = len(entries)
	result.Stats.CountsByStatus, result.Stats.ChangeSources = statusCounts(entries)

	cache := tsmodel.NewCache()
	resolver := imports.NewResolver(opts.RepoRoot, opts.TsconfigRel, profile.FileExtensions, logger)

	specFiles, err := paths.ListSpecFiles(opts.RepoRoot, profile.TestsRoot, profile.FileExtensions)
	if err != nil {
		asm.warn("tests root walk failed: " + err.Error())
	}
	result.Stats.SpecFilesTotal = len(specFiles)

	// Global watch: a matched change short-circuits to every spec
	watchMode := globwatch.ModeForceAll
	if profile.GlobalWatchMode == string(globwatch.ModeDisabled) {
		watchMode = globwatch.ModeDisabled
	}
	evaluator := globwatch.NewEvaluator(watchMode, profile.GlobalWatchPatterns, resolver, cache, opts.RepoRoot, profile.FileExtensions, logger)
	evaluation := evaluator.Evaluate(ctx, changedPaths)
	asm.warn(evaluation.Warnings...)
	result.GlobalWatch.MatchedPaths = evaluation.MatchedPaths
	result.GlobalWatch.WatchedFiles = evaluation.WatchedFiles
	result.GlobalWatch.ClosureSize = evaluation.ClosureSize

	if evaluation.ForceAll {
		result.ForcedAllSpecs = true
		for _, spec := range specFiles {
			asm.selectSpec(spec, specmatch.ReasonGlobalWatch)
		}
		return asm.finish(result), nil
	}

	// Fixture map and inheritance graph are independent inputs
	fixtureMap, err := fixtures.Load(ctx, paths.JoinRepoPath(opts.RepoRoot, profile.FixturesTypes))
	if err != nil {
		asm.warn("fixture map unreadable: " + profile.FixturesTypes + ": " + err.Error())
		fixtureMap = fixtures.NewMap()
	}

	scanner := inherit.NewScanner(cache, logger)
	graph, analysisFiles, scanWarnings := scanner.Scan(ctx, opts.RepoRoot, profile.AnalysisRoots, profile.FileExtensions)
	asm.warn(scanWarnings...)
	result.Stats.AnalysisFiles = len(analysisFiles)

	// Semantic change detection over the relevant changed sources
	detector := detect.NewDetector(cache, runner, opts.BaseRef, logger)
	if opts.Store != nil {
		detector.SetStore(opts.Store)
	}
	detection := detector.Detect(ctx, entries, profile.IsRelevantPOMPath(), profile.FileExtensions)
	asm.warn(detection.Warnings...)
	result.Stats.SemanticChangedMethodsCount = detection.ChangedMethodCount()
	result.Stats.TopLevelRuntimeChangedFiles = len(detection.TopLevelRuntimeChangedFiles)
	result.Stats.AnalyzedChangedFiles = detection.AnalyzedFiles

	// Impact propagation over the call and composition graphs
	engine := propagate.NewEngine(cache, graph, logger)
	engine.Build(ctx, opts.RepoRoot, analysisFiles)
	asm.warn(engine.Warnings...)
	impact := engine.Propagate(detection.ChangedMethodsByClass)
	result.Stats.CallGraphEdges = engine.EdgeCount()
	result.Stats.ImpactedClasses = len(impact.ImpactedClasses)
	result.Stats.ImpactedMethodsCount = impact.MethodCount()

	fixtureKeys := fixtureMap.KeysForClasses(impact.ImpactedClasses)
	result.Stats.FixtureKeys = len(fixtureKeys)

	// Directly-changed specs
	directChanged := map[string]bool{}
	for _, entry := range entries {
		if entry.Status == changeset.StatusDeleted {
			continue
		}
		if entry.Source == changeset.SourceUntracked && !opts.IncludeUntrackedSpecs {
			continue
		}
		if strings.HasPrefix(entry.EffectivePath, profile.ChangedSpecPrefix) &&
			paths.IsSpecFile(entry.EffectivePath, profile.FileExtensions) {
			directChanged[entry.EffectivePath] = true
		}
	}
	result.Stats.DirectChangedSpecs = len(directChanged)

	// Import-graph matching
	graphSel := buildImportGraph(ctx, opts.RepoRoot, specFiles, resolver, cache, logger)
	asm.warn(graphSel.warnings...)
	importMatched := map[string]bool{}
	for _, spec := range graphSel.matchSpecs(changedPaths) {
		importMatched[spec] = true
	}
	result.Stats.ImportMatchedSpecs = len(importMatched)

	// Spec selection pipeline
	pipeline := specmatch.NewPipeline(cache, fixtureMap, opts.RepoRoot, opts.SelectionBias, logger)
	output := pipeline.Run(ctx, specmatch.Input{
		SpecFiles:              specFiles,
		DirectChanged:          directChanged,
		ImportMatched:          importMatched,
		FixtureKeys:            fixtureKeys,
		ImpactedMethodsByClass: impact.ImpactedMethodsByClass,
	})
	asm.warn(output.Warnings...)
	result.Stats.PrefilterMatches = output.PrefilterCount
	result.Coverage.UncertainCallSites = output.UncertainSites

	for _, decision := range output.Selected {
		asm.selectSpec(decision.Path, decision.Reason)
	}

	return asm.finish(result), nil
}

// enumerateChanges gathers raw entries from the configured sources.
func enumerateChanges(opts *Options, runner *gitio.Runner, asm *assembler) ([]changeset.Entry, error) {
	var entries []changeset.Entry

	switch {
	case opts.DiffFile != "":
		content, err := os.ReadFile(opts.DiffFile)
		if err != nil {
			return nil, tiaerrors.New(tiaerrors.SourceEnumerationFailed, "unreadable diff file", err)
		}
		parsed, err := gitio.ParseUnifiedDiff(content, changeset.SourceBaseHead)
		if err != nil {
			return nil, err
		}
		entries = append(entries, parsed...)

		// A supplied diff is the sole source: CI environments handing
		// over a diff file may not have a git checkout at all
		return entries, nil

	case opts.BaseRef != "":
		baseHead, warnings, err := runner.DiffBaseHead(opts.BaseRef)
		if err != nil {
			return nil, err
		}
		asm.warn(warnings...)
		entries = append(entries, baseHead...)
	}

	if opts.BaseRef == "" || opts.IncludeWorkingTreeWithBase {
		workingTree, warnings, err := runner.DiffWorkingTree()
		if err != nil {
			return nil, err
		}
		asm.warn(warnings...)
		entries = append(entries, workingTree...)
	}

	untracked, warnings := runner.ListUntracked()
	asm.warn(warnings...)
	entries = append(entries, untracked...)

	return entries, nil
}
