package specmatch

// Selection reasons attached to each selected spec.
const (
	// ReasonDirectChangedSpec marks a spec selected because it changed
	ReasonDirectChangedSpec = "direct-changed-spec"
	// ReasonImportGraph marks a spec reached through the import graph
	ReasonImportGraph = "matched-import-graph"
	// ReasonPrecise marks a spec with at least one precise call match
	ReasonPrecise = "matched-precise"
	// ReasonUncertainFailOpen marks a spec kept only by the fail-open bias
	ReasonUncertainFailOpen = "matched-uncertain-fail-open"
	// ReasonNoImpactedMethods marks a fixture-bound spec retained because
	// no impacted methods were computed
	ReasonNoImpactedMethods = "retained-no-impacted-methods"
	// ReasonNoBindings marks a spec retained because its fixture bindings
	// could not be extracted
	ReasonNoBindings = "retained-no-bindings"
	// ReasonReadError marks a spec retained because it could not be read
	ReasonReadError = "retained-read-error"
	// ReasonGlobalWatch marks a spec selected by force-all
	ReasonGlobalWatch = "global-watch-force-all"
)

// Bias is the uncertain-site policy.
type Bias string

const (
	// BiasFailOpen keeps specs with uncertain call sites
	BiasFailOpen Bias = "fail-open"
	// BiasBalanced is reserved; it behaves as fail-closed
	BiasBalanced Bias = "balanced"
	// BiasFailClosed drops specs whose only evidence is uncertain
	BiasFailClosed Bias = "fail-closed"
)

// ParseBias validates a bias string, defaulting to fail-open.
func ParseBias(s string) Bias {
	switch Bias(s) {
	case BiasFailOpen, BiasBalanced, BiasFailClosed:
		return Bias(s)
	default:
		return BiasFailOpen
	}
}

// keepsUncertain reports whether the bias retains uncertain-only specs.
func (b Bias) keepsUncertain() bool {
	return b == BiasFailOpen
}
