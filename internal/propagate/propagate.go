// Package propagate builds the class-scoped call and composition graphs
// and expands the detector's changed members through reverse edges into
// the full impacted set.
package propagate

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"tia/internal/inherit"
	"tia/internal/logging"
	"tia/internal/paths"
	"tia/internal/tsmodel"
)

// MemberKey identifies a callable as "<Class>#<member>".
func MemberKey(class, member string) string {
	return class + "#" + member
}

func splitKey(key string) (class, member string) {
	idx := strings.Index(key, "#")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}

// Engine owns the graphs for one invocation.
type Engine struct {
	cache  *tsmodel.Cache
	graph  *inherit.Graph
	logger *logging.Logger

	// classes maps class name to its model; first definition in sorted
	// file order wins
	classes map[string]*classEntry

	// composedOwners reverses the composition relation: composed class
	// name -> classes owning an instance of it
	composedOwners map[string]map[string]bool

	// directEdges maps caller member key to callee member keys;
	// reverseEdges is the transposed view used by propagation
	directEdges  map[string]map[string]bool
	reverseEdges map[string]map[string]bool

	Warnings []string
}

type classEntry struct {
	class  *tsmodel.Class
	source []byte
}

// NewEngine creates an engine over a shared model cache and inheritance
// graph.
func NewEngine(cache *tsmodel.Cache, graph *inherit.Graph, logger *logging.Logger) *Engine {
	return &Engine{
		cache:          cache,
		graph:          graph,
		logger:         logger,
		classes:        map[string]*classEntry{},
		composedOwners: map[string]map[string]bool{},
		directEdges:    map[string]map[string]bool{},
		reverseEdges:   map[string]map[string]bool{},
	}
}

// Build parses every analysis file once, collects class models, and
// extracts direct call edges.
func (e *Engine) Build(ctx context.Context, repoRoot string, files []string) {
	for _, rel := range files {
		content, err := os.ReadFile(paths.JoinRepoPath(repoRoot, rel))
		if err != nil {
			e.Warnings = append(e.Warnings, "unreadable source file: "+rel)
			continue
		}
		model, ok := e.cache.Model(ctx, "", rel, content)
		if !ok {
			e.Warnings = append(e.Warnings, "unparseable source file: "+rel)
			continue
		}
		for _, name := range model.ClassNames() {
			if _, exists := e.classes[name]; exists {
				continue
			}
			e.classes[name] = &classEntry{class: model.Classes[name], source: model.Source}
		}
	}

	for class, entry := range e.classes {
		for _, composed := range entry.class.ComposedFields {
			if e.composedOwners[composed] == nil {
				e.composedOwners[composed] = map[string]bool{}
			}
			e.composedOwners[composed][class] = true
		}
	}

	e.extractEdges()

	e.logger.Debug("call graph built", map[string]interface{}{
		"classes": len(e.classes),
		"edges":   len(e.directEdges),
	})
}

// resolveCallable walks a class lineage for a callable member, returning
// its member key.
func (e *Engine) resolveCallable(class, name string) (string, bool) {
	for _, c := range e.graph.Lineage(class) {
		entry, ok := e.classes[c]
		if !ok {
			continue
		}
		if entry.class.CallableByName(name) != nil {
			return MemberKey(c, name), true
		}
	}
	return "", false
}

// composedFieldClass resolves a field name to its composed class through
// the lineage.
func (e *Engine) composedFieldClass(class, field string) (string, bool) {
	for _, c := range e.graph.Lineage(class) {
		entry, ok := e.classes[c]
		if !ok {
			continue
		}
		if composed, ok := entry.class.ComposedFields[field]; ok {
			return composed, true
		}
	}
	return "", false
}

func (e *Engine) addEdge(caller, callee string) {
	if e.directEdges[caller] == nil {
		e.directEdges[caller] = map[string]bool{}
	}
	e.directEdges[caller][callee] = true

	if e.reverseEdges[callee] == nil {
		e.reverseEdges[callee] = map[string]bool{}
	}
	e.reverseEdges[callee][caller] = true
}

// addAllCallablesEdges links the caller to every callable of its own
// class, the conservative fail-open choice for dynamic dispatch.
func (e *Engine) addAllCallablesEdges(callerKey, callerClass string) {
	entry, ok := e.classes[callerClass]
	if !ok {
		return
	}
	for _, name := range entry.class.CallableNames() {
		e.addEdge(callerKey, MemberKey(callerClass, name))
	}
}

func (e *Engine) extractEdges() {
	classNames := make([]string, 0, len(e.classes))
	for name := range e.classes {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)

	for _, class := range classNames {
		entry := e.classes[class]

		ids := make([]tsmodel.MemberIdentity, 0, len(entry.class.Members))
		for id := range entry.class.Members {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if ids[i].Name != ids[j].Name {
				return ids[i].Name < ids[j].Name
			}
			return ids[i].Kind < ids[j].Kind
		})

		// A getter and setter sharing a name contribute edges from both
		// bodies under the same caller key
		for _, id := range ids {
			member := entry.class.Members[id]
			if !member.Callable || member.ImplementationNode == nil {
				continue
			}
			callerKey := MemberKey(class, id.Name)
			e.extractBodyEdges(callerKey, class, member.ImplementationNode, entry.source)
		}
	}
}

// segment is one hop of a callee chain after the root.
type segment struct {
	name    string
	dynamic bool
}

// segmentize decomposes a callee expression into its root and access
// chain. Returns root "this", "super", or "" for anything else.
func segmentize(callee *sitter.Node, source []byte) (string, []segment) {
	var hops []segment
	current := callee

	for current != nil {
		if current.Type() == "member_expression" {
			prop := current.ChildByFieldName("property")
			name := ""
			if prop != nil {
				name = prop.Content(source)
			}
			hops = append(hops, segment{name: name})
			current = current.ChildByFieldName("object")
			continue
		}
		if current.Type() == "subscript_expression" {
			index := current.ChildByFieldName("index")
			if lit, ok := tsmodel.StringLiteralValue(index, source); ok {
				hops = append(hops, segment{name: lit})
			} else {
				hops = append(hops, segment{dynamic: true})
			}
			current = current.ChildByFieldName("object")
			continue
		}
		break
	}

	root := ""
	if current != nil {
		switch current.Type() {
		case "this":
			root = "this"
		case "super":
			root = "super"
		}
	}

	// hops were collected outermost-first; reverse to root-outward order
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	return root, hops
}

// extractBodyEdges walks one callable body and records every resolvable
// call edge per the dispatch table: this-calls and super-calls resolve up
// the lineage, single-field chains resolve through composition, dynamic
// and deep chains degrade to every callable of the caller's class.
func (e *Engine) extractBodyEdges(callerKey, callerClass string, impl *sitter.Node, source []byte) {
	body := impl.ChildByFieldName("body")
	if body == nil {
		body = impl
	}

	for _, call := range tsmodel.FindNodes(body, "call_expression") {
		callee := call.ChildByFieldName("function")
		if callee == nil {
			continue
		}
		root, segments := segmentize(callee, source)
		if root == "" || len(segments) == 0 {
			continue
		}

		lineageStart := callerClass
		if root == "super" {
			parent, ok := e.graph.ParentsByChild[callerClass]
			if !ok {
				e.Warnings = append(e.Warnings,
					fmt.Sprintf("unresolvable super call in %s: no parent class", callerKey))
				continue
			}
			lineageStart = parent
		}

		switch {
		case len(segments) == 1 && segments[0].dynamic:
			e.Warnings = append(e.Warnings,
				fmt.Sprintf("dynamic this[...] call in %s: every callable of %s treated as callee", callerKey, callerClass))
			e.addAllCallablesEdges(callerKey, callerClass)

		case len(segments) == 1:
			name := segments[0].name
			if key, ok := e.resolveCallable(lineageStart, name); ok {
				e.addEdge(callerKey, key)
			} else {
				e.Warnings = append(e.Warnings,
					fmt.Sprintf("unresolvable %s.%s call in %s", root, name, callerKey))
			}

		case len(segments) == 2 && !segments[0].dynamic && !segments[1].dynamic:
			field, name := segments[0].name, segments[1].name
			composed, ok := e.composedFieldClass(lineageStart, field)
			if !ok {
				e.Warnings = append(e.Warnings,
					fmt.Sprintf("unknown composed field type for this.%s in %s", field, callerKey))
				continue
			}
			if key, ok := e.resolveCallable(composed, name); ok {
				e.addEdge(callerKey, key)
			} else {
				e.Warnings = append(e.Warnings,
					fmt.Sprintf("unresolvable this.%s.%s call in %s", field, name, callerKey))
			}

		default:
			e.Warnings = append(e.Warnings,
				fmt.Sprintf("deep this.* chain in %s: every callable of %s treated as callee", callerKey, callerClass))
			e.addAllCallablesEdges(callerKey, callerClass)
		}
	}
}

// Result is the propagation output.
type Result struct {
	// ImpactedMethodsByClass maps class name to impacted member names
	ImpactedMethodsByClass map[string]map[string]bool
	// ImpactedClasses is the projected class closure
	ImpactedClasses map[string]bool
	// VisitedKeys is the BFS-visited member-key set
	VisitedKeys map[string]bool
}

// MethodCount returns the total number of impacted (class, member) pairs.
func (r *Result) MethodCount() int {
	count := 0
	for _, members := range r.ImpactedMethodsByClass {
		count += len(members)
	}
	return count
}

// Propagate seeds the reverse-edge BFS from the changed members and
// projects the visited keys back to classes.
func (e *Engine) Propagate(changed map[string]map[string]bool) *Result {
	result := &Result{
		ImpactedMethodsByClass: map[string]map[string]bool{},
		ImpactedClasses:        map[string]bool{},
		VisitedKeys:            map[string]bool{},
	}

	// Seed: resolve each changed (class, member) through the lineage.
	// Unresolvable members (removed or renamed away) still participate
	// in projection by name.
	var queue []string
	changedNames := map[string]bool{}
	for class, members := range changed {
		result.ImpactedClasses[class] = true
		for member := range members {
			changedNames[member] = true
			if key, ok := e.resolveCallable(class, member); ok {
				if !result.VisitedKeys[key] {
					result.VisitedKeys[key] = true
					queue = append(queue, key)
				}
			} else {
				// Keep the pair visible even without a resolvable key
				result.VisitedKeys[MemberKey(class, member)] = true
			}
		}
	}

	// BFS on reverse edges; the visited set guarantees termination on
	// recursive and mutually-recursive call graphs
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for caller := range e.reverseEdges[current] {
			if !result.VisitedKeys[caller] {
				result.VisitedKeys[caller] = true
				queue = append(queue, caller)
			}
		}
	}

	// Candidate member names: every visited key's member plus every
	// directly-changed name
	candidateNames := map[string]bool{}
	for name := range changedNames {
		candidateNames[name] = true
	}
	for key := range result.VisitedKeys {
		class, member := splitKey(key)
		result.ImpactedClasses[class] = true
		candidateNames[member] = true
	}

	// Class closure: composition owners and descendants of impacted
	// classes are equally impacted
	e.closeOverOwnersAndDescendants(result.ImpactedClasses)

	classes := make([]string, 0, len(result.ImpactedClasses))
	for class := range result.ImpactedClasses {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	names := make([]string, 0, len(candidateNames))
	for name := range candidateNames {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, class := range classes {
		for _, name := range names {
			if e.pairImpacted(class, name, result.VisitedKeys, changed) {
				if result.ImpactedMethodsByClass[class] == nil {
					result.ImpactedMethodsByClass[class] = map[string]bool{}
				}
				result.ImpactedMethodsByClass[class][name] = true
			}
		}
	}

	return result
}

func (e *Engine) closeOverOwnersAndDescendants(impacted map[string]bool) {
	for {
		grew := false
		var current []string
		for class := range impacted {
			current = append(current, class)
		}
		for _, class := range current {
			for owner := range e.composedOwners[class] {
				if !impacted[owner] {
					impacted[owner] = true
					grew = true
				}
			}
			for descendant := range e.graph.Descendants(class) {
				if !impacted[descendant] {
					impacted[descendant] = true
					grew = true
				}
			}
		}
		if !grew {
			return
		}
	}
}

// pairImpacted decides whether (class, name) belongs to the projection:
// the name resolves in the class lineage to a visited key, or it was
// directly changed in the lineage without a resolvable key, or a composed
// field's class satisfies either condition.
func (e *Engine) pairImpacted(class, name string, visited map[string]bool, changed map[string]map[string]bool) bool {
	if e.lineageNameImpacted(class, name, visited, changed) {
		return true
	}

	for _, c := range e.graph.Lineage(class) {
		entry, ok := e.classes[c]
		if !ok {
			continue
		}
		for _, composed := range entry.class.ComposedFields {
			if e.lineageNameImpacted(composed, name, visited, changed) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) lineageNameImpacted(class, name string, visited map[string]bool, changed map[string]map[string]bool) bool {
	if key, ok := e.resolveCallable(class, name); ok {
		return visited[key]
	}

	// No resolvable key: the member was removed or renamed somewhere;
	// a direct change anywhere in the lineage keeps the pair
	for _, c := range e.graph.Lineage(class) {
		if changed[c][name] {
			return true
		}
	}
	return false
}

// EdgeCount returns the number of direct caller->callee edges.
func (e *Engine) EdgeCount() int {
	count := 0
	for _, callees := range e.directEdges {
		count += len(callees)
	}
	return count
}

// ClassCount returns the number of collected classes.
func (e *Engine) ClassCount() int {
	return len(e.classes)
}
