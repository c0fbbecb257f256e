package analyzer

import (
	"sort"
	"strings"

	"tia/internal/changeset"
	"tia/internal/paths"
)

// Result is the assembled selection output for one invocation.
type Result struct {
	// InvocationID uniquely identifies this run
	InvocationID string `json:"invocationId"`

	// SelectedSpecs are repo-relative spec paths, sorted, deduplicated
	SelectedSpecs []string `json:"selectedSpecs"`
	// SelectedSpecsAbsolute mirrors SelectedSpecs resolved against the
	// repo root
	SelectedSpecsAbsolute []string `json:"selectedSpecsAbsolute"`
	// ReasonsBySpec maps each selected spec to its selection reason
	ReasonsBySpec map[string]string `json:"reasonsBySpec"`

	// HasAnythingToRun is true iff SelectedSpecs is non-empty
	HasAnythingToRun bool `json:"hasAnythingToRun"`
	// ForcedAllSpecs is true when global watch short-circuited the run
	ForcedAllSpecs bool `json:"forcedAllSpecs"`

	GlobalWatch GlobalWatchSummary `json:"globalWatch"`
	Stats       Stats              `json:"stats"`
	Coverage    CoverageStats      `json:"coverage"`

	// Warnings is the sorted, deduplicated warning list
	Warnings []string `json:"warnings"`
}

// GlobalWatchSummary reports the force-all evaluation.
type GlobalWatchSummary struct {
	Mode         string   `json:"mode"`
	MatchedPaths []string `json:"matchedPaths,omitempty"`
	WatchedFiles int      `json:"watchedFiles"`
	ClosureSize  int      `json:"closureSize"`
}

// Stats carries the per-stage size statistics.
type Stats struct {
	ChangeEntries  int            `json:"changeEntries"`
	CountsByStatus map[string]int `json:"countsByStatus"`
	ChangeSources  map[string]int `json:"changeSources"`

	SemanticChangedMethodsCount int `json:"semanticChangedMethodsCount"`
	TopLevelRuntimeChangedFiles int `json:"topLevelRuntimeChangedFiles"`
	AnalyzedChangedFiles        int `json:"analyzedChangedFiles"`

	AnalysisFiles        int `json:"analysisFiles"`
	CallGraphEdges       int `json:"callGraphEdges"`
	ImpactedClasses      int `json:"impactedClasses"`
	ImpactedMethodsCount int `json:"impactedMethodsCount"`
	FixtureKeys          int `json:"fixtureKeys"`

	SpecFilesTotal     int `json:"specFilesTotal"`
	PrefilterMatches   int `json:"prefilterMatches"`
	DirectChangedSpecs int `json:"directChangedSpecs"`
	ImportMatchedSpecs int `json:"importMatchedSpecs"`
}

// CoverageStats counts the uncertainty signals of the run.
type CoverageStats struct {
	UncertainCallSites int `json:"uncertainCallSites"`
	StatusFallbacks    int `json:"statusFallbacks"`
}

// assembler accumulates selections and warnings, then produces the
// deterministic Result.
type assembler struct {
	repoRoot string
	reasons  map[string]string
	warnings map[string]bool
}

func newAssembler(repoRoot string) *assembler {
	return &assembler{
		repoRoot: repoRoot,
		reasons:  map[string]string{},
		warnings: map[string]bool{},
	}
}

// selectSpec records a spec with its reason. The first reason recorded
// for a path wins.
func (a *assembler) selectSpec(path, reason string) {
	if _, exists := a.reasons[path]; !exists {
		a.reasons[path] = reason
	}
}

func (a *assembler) warn(warnings ...string) {
	for _, w := range warnings {
		if w != "" {
			a.warnings[w] = true
		}
	}
}

// finish sorts everything and fills the derived fields.
func (a *assembler) finish(result *Result) *Result {
	specs := make([]string, 0, len(a.reasons))
	for spec := range a.reasons {
		specs = append(specs, spec)
	}
	sort.Strings(specs)

	result.SelectedSpecs = specs
	result.SelectedSpecsAbsolute = make([]string, len(specs))
	for i, spec := range specs {
		result.SelectedSpecsAbsolute[i] = paths.JoinRepoPath(a.repoRoot, spec)
	}
	result.ReasonsBySpec = a.reasons
	result.HasAnythingToRun = len(specs) > 0

	warnings := make([]string, 0, len(a.warnings))
	for w := range a.warnings {
		warnings = append(warnings, w)
	}
	sort.Strings(warnings)
	result.Warnings = warnings

	result.Coverage.StatusFallbacks = 0
	for _, w := range warnings {
		if strings.HasPrefix(w, "status fallback:") {
			result.Coverage.StatusFallbacks++
		}
	}

	return result
}

// statusCounts converts the typed tallies to the report's string keys.
func statusCounts(entries []changeset.Entry) (byStatus, bySource map[string]int) {
	byStatus = map[string]int{}
	for status, count := range changeset.CountByStatus(entries) {
		byStatus[string(status)] = count
	}
	bySource = map[string]int{}
	for source, count := range changeset.CountBySource(entries) {
		bySource[string(source)] = count
	}
	return byStatus, bySource
}
