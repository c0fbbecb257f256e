// Package specmatch maps impacted members to spec files: a fixture-key
// prefilter followed by method-level AST matching that classifies each
// call site as precise or uncertain and applies the selection bias.
package specmatch

import (
	"context"
	"fmt"
	"os"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"tia/internal/fixtures"
	"tia/internal/logging"
	"tia/internal/paths"
	"tia/internal/tsmodel"
)

// Input carries everything the pipeline needs for one run.
type Input struct {
	// SpecFiles is every spec under the tests root, sorted
	SpecFiles []string
	// DirectChanged are spec paths present in the change set
	DirectChanged map[string]bool
	// ImportMatched are specs reached through the import graph
	ImportMatched map[string]bool
	// FixtureKeys are the impacted fixture keys
	FixtureKeys map[string]bool
	// ImpactedMethodsByClass is the propagation output
	ImpactedMethodsByClass map[string]map[string]bool
}

// Decision records one selected spec.
type Decision struct {
	Path           string `json:"path"`
	Reason         string `json:"reason"`
	PreciseMatches int    `json:"preciseMatches,omitempty"`
	UncertainSites int    `json:"uncertainSites,omitempty"`
}

// Output is the pipeline result.
type Output struct {
	// Selected holds one decision per kept spec, sorted by path
	Selected []Decision
	// PrefilterCount is the number of Stage A survivors
	PrefilterCount int
	// UncertainSites totals uncertain call sites across analyzed specs
	UncertainSites int
	Warnings       []string
}

// Pipeline selects specs for one invocation.
type Pipeline struct {
	cache      *tsmodel.Cache
	fixtureMap *fixtures.Map
	repoRoot   string
	bias       Bias
	logger     *logging.Logger
}

// NewPipeline creates the selection pipeline.
func NewPipeline(cache *tsmodel.Cache, fixtureMap *fixtures.Map, repoRoot string, bias Bias, logger *logging.Logger) *Pipeline {
	return &Pipeline{cache: cache, fixtureMap: fixtureMap, repoRoot: repoRoot, bias: bias, logger: logger}
}

// specAnalysis is the parsed view of one spec file.
type specAnalysis struct {
	readErr bool
	// bindings maps local fixture variable names to class names
	bindings map[string]string
	// boundKeys are the fixture keys destructured anywhere in the spec
	boundKeys map[string]bool
	// aliases are names whose identity is deliberately uncertain:
	// member aliases, destructured members, nested pattern bindings
	aliases map[string]bool
	model   *tsmodel.FileModel
}

// Run applies both stages and merges the direct and import-matched sets.
func (p *Pipeline) Run(ctx context.Context, in Input) *Output {
	out := &Output{}

	analyses := map[string]*specAnalysis{}
	candidates := map[string]bool{}

	for _, spec := range in.SpecFiles {
		analysis := p.analyzeSpec(ctx, spec, out)
		analyses[spec] = analysis

		if analysis.readErr {
			// A spec that cannot be read cannot be proven unaffected
			candidates[spec] = true
			continue
		}
		for key := range analysis.boundKeys {
			if in.FixtureKeys[key] {
				candidates[spec] = true
				out.PrefilterCount++
				break
			}
		}
	}

	for spec := range in.DirectChanged {
		candidates[spec] = true
	}
	for spec := range in.ImportMatched {
		candidates[spec] = true
	}

	specs := make([]string, 0, len(candidates))
	for spec := range candidates {
		specs = append(specs, spec)
	}
	sort.Strings(specs)

	for _, spec := range specs {
		analysis, ok := analyses[spec]
		if !ok {
			analysis = p.analyzeSpec(ctx, spec, out)
		}
		if decision, keep := p.decide(spec, analysis, in, out); keep {
			out.Selected = append(out.Selected, decision)
		}
	}

	return out
}

// decide applies the Stage B ladder to one candidate spec.
func (p *Pipeline) decide(spec string, analysis *specAnalysis, in Input, out *Output) (Decision, bool) {
	switch {
	case in.DirectChanged[spec]:
		return Decision{Path: spec, Reason: ReasonDirectChangedSpec}, true
	case in.ImportMatched[spec]:
		return Decision{Path: spec, Reason: ReasonImportGraph}, true
	case analysis.readErr:
		return Decision{Path: spec, Reason: ReasonReadError}, true
	case len(analysis.bindings) == 0:
		return Decision{Path: spec, Reason: ReasonNoBindings}, true
	case len(in.ImpactedMethodsByClass) == 0:
		return Decision{Path: spec, Reason: ReasonNoImpactedMethods}, true
	}

	precise, uncertain := p.classifyCalls(analysis, in.ImpactedMethodsByClass)
	out.UncertainSites += uncertain

	switch {
	case precise > 0:
		return Decision{Path: spec, Reason: ReasonPrecise, PreciseMatches: precise, UncertainSites: uncertain}, true
	case uncertain > 0 && p.bias.keepsUncertain():
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("uncertain call sites retained %s fail-open (%d sites)", spec, uncertain))
		return Decision{Path: spec, Reason: ReasonUncertainFailOpen, UncertainSites: uncertain}, true
	default:
		return Decision{}, false
	}
}

// analyzeSpec parses one spec and extracts fixture bindings and aliases.
func (p *Pipeline) analyzeSpec(ctx context.Context, spec string, out *Output) *specAnalysis {
	analysis := &specAnalysis{
		bindings:  map[string]string{},
		boundKeys: map[string]bool{},
		aliases:   map[string]bool{},
	}

	content, err := os.ReadFile(paths.JoinRepoPath(p.repoRoot, spec))
	if err != nil {
		out.Warnings = append(out.Warnings, "unreadable spec: "+spec)
		analysis.readErr = true
		return analysis
	}

	model, ok := p.cache.Model(ctx, "", spec, content)
	if !ok {
		out.Warnings = append(out.Warnings, "unparseable spec: "+spec)
		analysis.readErr = true
		return analysis
	}
	analysis.model = model

	p.extractBindings(analysis)
	p.extractAliases(analysis)
	return analysis
}

// extractBindings reads fixture keys from object-destructuring patterns
// in the parameter list of any function, arrow, or method. Supports
// aliasing (`fixtureKey: localName`), defaults, and nested patterns.
func (p *Pipeline) extractBindings(a *specAnalysis) {
	source := a.model.Source

	for _, params := range tsmodel.FindNodes(a.model.Root, "formal_parameters") {
		for _, pattern := range tsmodel.FindNodes(params, "object_pattern") {
			p.bindPattern(a, pattern, source)
		}
	}
}

// bindPattern records one object pattern's bindings.
func (p *Pipeline) bindPattern(a *specAnalysis, pattern *sitter.Node, source []byte) {
	for _, entry := range tsmodel.NamedChildren(pattern) {
		switch entry.Type() {
		case "shorthand_property_identifier_pattern":
			p.bindKey(a, entry.Content(source), entry.Content(source))

		case "object_assignment_pattern":
			// Shorthand with default: `{ myPage = fallback }`
			if left := entry.ChildByFieldName("left"); left != nil &&
				left.Type() == "shorthand_property_identifier_pattern" {
				p.bindKey(a, left.Content(source), left.Content(source))
			}

		case "pair_pattern":
			keyNode := entry.ChildByFieldName("key")
			valueNode := entry.ChildByFieldName("value")
			if keyNode == nil || valueNode == nil {
				continue
			}
			key := keyNode.Content(source)
			if lit, ok := tsmodel.StringLiteralValue(keyNode, source); ok {
				key = lit
			}

			switch valueNode.Type() {
			case "identifier":
				p.bindKey(a, key, valueNode.Content(source))
			case "assignment_pattern":
				if left := valueNode.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
					p.bindKey(a, key, left.Content(source))
				}
			case "object_pattern":
				// Nested pattern: the key is bound, but the inner names
				// are member aliases with uncertain identity
				if _, isFixture := p.fixtureMap.KeyToClass[key]; isFixture {
					a.boundKeys[key] = true
					for _, inner := range tsmodel.FindNodes(valueNode, "shorthand_property_identifier_pattern") {
						a.aliases[inner.Content(source)] = true
					}
				}
			}
		}
	}
}

func (p *Pipeline) bindKey(a *specAnalysis, key, local string) {
	class, ok := p.fixtureMap.KeyToClass[key]
	if !ok {
		return
	}
	a.boundKeys[key] = true
	a.bindings[local] = class
}

// extractAliases finds alias creations over fixture variables:
// `const f = var.name` and `const { name } = var`.
func (p *Pipeline) extractAliases(a *specAnalysis) {
	source := a.model.Source

	for _, declarator := range tsmodel.FindNodes(a.model.Root, "variable_declarator") {
		nameNode := declarator.ChildByFieldName("name")
		valueNode := declarator.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}

		switch {
		case nameNode.Type() == "identifier" && rootsAtFixtureVar(valueNode, a, source):
			a.aliases[nameNode.Content(source)] = true

		case nameNode.Type() == "object_pattern" &&
			valueNode.Type() == "identifier" &&
			a.bindings[valueNode.Content(source)] != "":
			for _, inner := range tsmodel.FindNodes(nameNode, "shorthand_property_identifier_pattern") {
				a.aliases[inner.Content(source)] = true
			}
		}
	}
}

// rootsAtFixtureVar reports whether an expression is a member or
// subscript chain rooted at a fixture variable.
func rootsAtFixtureVar(node *sitter.Node, a *specAnalysis, source []byte) bool {
	current := node
	hops := 0
	for current != nil {
		switch current.Type() {
		case "member_expression", "subscript_expression":
			current = current.ChildByFieldName("object")
			hops++
		case "identifier":
			return hops > 0 && a.bindings[current.Content(source)] != ""
		default:
			return false
		}
	}
	return false
}

// chain describes a call's callee relative to a root identifier.
type chain struct {
	root    string
	depth   int
	name    string
	dynamic bool
}

// calleeChain decomposes a callee into (root identifier, chain depth,
// final name). Depth counts every property or index access between the
// callee name and the root.
func calleeChain(callee *sitter.Node, source []byte) (chain, bool) {
	var c chain
	current := callee

	var segments []struct {
		name    string
		dynamic bool
	}
	for current != nil {
		if current.Type() == "member_expression" {
			prop := current.ChildByFieldName("property")
			name := ""
			if prop != nil {
				name = prop.Content(source)
			}
			segments = append(segments, struct {
				name    string
				dynamic bool
			}{name: name})
			current = current.ChildByFieldName("object")
			continue
		}
		if current.Type() == "subscript_expression" {
			index := current.ChildByFieldName("index")
			if lit, ok := tsmodel.StringLiteralValue(index, source); ok {
				segments = append(segments, struct {
					name    string
					dynamic bool
				}{name: lit})
			} else {
				segments = append(segments, struct {
					name    string
					dynamic bool
				}{dynamic: true})
			}
			current = current.ChildByFieldName("object")
			continue
		}
		break
	}

	if current == nil || current.Type() != "identifier" || len(segments) == 0 {
		return c, false
	}

	c.root = current.Content(source)
	c.depth = len(segments)
	// segments[0] is the outermost access, the callee name
	c.name = segments[0].name
	for _, s := range segments {
		if s.dynamic {
			c.dynamic = true
		}
	}
	return c, true
}

// classifyCalls walks the spec body and tallies precise matches and
// uncertain sites against the impacted method table.
func (p *Pipeline) classifyCalls(a *specAnalysis, impacted map[string]map[string]bool) (precise, uncertain int) {
	source := a.model.Source

	for _, call := range tsmodel.FindNodes(a.model.Root, "call_expression") {
		callee := call.ChildByFieldName("function")
		if callee == nil {
			continue
		}

		// Alias invocation: identity deliberately uncertain
		if callee.Type() == "identifier" && a.aliases[callee.Content(source)] {
			uncertain++
			continue
		}

		c, ok := calleeChain(callee, source)
		if !ok {
			continue
		}
		class, isFixtureVar := a.bindings[c.root]
		if !isFixtureVar {
			continue
		}

		switch {
		case c.dynamic:
			uncertain++
		case c.depth > 2:
			uncertain++
		case impacted[class][c.name]:
			precise++
		}
	}

	return precise, uncertain
}
