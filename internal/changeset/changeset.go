// Package changeset defines canonical change entries and the normalizer
// that merges entries from multiple enumeration sources.
package changeset

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the canonical change status of a path.
type Status string

const (
	// StatusAdded marks a path created on the head side
	StatusAdded Status = "A"
	// StatusModified marks a path whose content changed
	StatusModified Status = "M"
	// StatusDeleted marks a path removed on the head side
	StatusDeleted Status = "D"
	// StatusRenamed marks a path moved between revisions
	StatusRenamed Status = "R"
)

// mergePriority orders statuses for duplicate resolution:
// Deleted > Renamed > Modified > Added.
var mergePriority = map[Status]int{
	StatusDeleted:  3,
	StatusRenamed:  2,
	StatusModified: 1,
	StatusAdded:    0,
}

// Source identifies which enumeration produced an entry.
type Source string

const (
	// SourceBaseHead is the base-vs-head comparison
	SourceBaseHead Source = "base-head"
	// SourceWorkingTree is the working-tree-vs-head comparison
	SourceWorkingTree Source = "working-tree"
	// SourceUntracked is the untracked file listing
	SourceUntracked Source = "untracked"
)

// Entry is one normalized change record.
type Entry struct {
	Status Status `json:"status"`
	// OldPath is the base-side path (renames and deletes)
	OldPath string `json:"oldPath,omitempty"`
	// NewPath is the head-side path
	NewPath string `json:"newPath,omitempty"`
	// EffectivePath is the head-side path, or the deleted path for deletes.
	// Exactly one entry exists per effective path after normalization.
	EffectivePath string `json:"effectivePath"`
	// RawStatus preserves the untransformed upstream classifier
	RawStatus string `json:"rawStatus"`
	// Source records which enumeration produced the entry
	Source Source `json:"source"`
}

// ParseStatus maps an upstream classifier to the canonical status set.
// `C` (copy) maps to Added, `T` and `U` map to Modified; anything else
// maps to Modified with a fallback warning. Rename scores (`R087`) keep
// their `R` classification.
func ParseStatus(raw string) (status Status, warning string) {
	switch {
	case raw == "A":
		return StatusAdded, ""
	case raw == "M":
		return StatusModified, ""
	case raw == "D":
		return StatusDeleted, ""
	case strings.HasPrefix(raw, "R"):
		return StatusRenamed, ""
	case strings.HasPrefix(raw, "C"):
		return StatusAdded, fmt.Sprintf("status fallback: copy status %q treated as added", raw)
	case raw == "T" || raw == "U":
		return StatusModified, ""
	default:
		return StatusModified, fmt.Sprintf("status fallback: unknown status %q treated as modified", raw)
	}
}

// richness scores how much of an entry's record is populated; on a merge
// priority tie, the richer record wins (a rename with both paths beats a
// bare rename).
func richness(e Entry) int {
	score := 0
	if e.OldPath != "" {
		score++
	}
	if e.NewPath != "" {
		score++
	}
	return score
}

// Normalize deduplicates and merges entries, drops entries rejected by
// keep, and sorts the result lexicographically by effective path.
// keep may be nil to retain everything.
func Normalize(entries []Entry, keep func(string) bool) []Entry {
	byPath := make(map[string]Entry)

	for _, e := range entries {
		if e.EffectivePath == "" {
			continue
		}
		if keep != nil && !keep(e.EffectivePath) {
			continue
		}

		prev, exists := byPath[e.EffectivePath]
		if !exists {
			byPath[e.EffectivePath] = e
			continue
		}

		pPrev, pNew := mergePriority[prev.Status], mergePriority[e.Status]
		switch {
		case pNew > pPrev:
			byPath[e.EffectivePath] = e
		case pNew == pPrev && richness(e) > richness(prev):
			byPath[e.EffectivePath] = e
		}
	}

	result := make([]Entry, 0, len(byPath))
	for _, e := range byPath {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EffectivePath < result[j].EffectivePath
	})

	return result
}

// Paths returns the effective paths of the entries, in order.
func Paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.EffectivePath
	}
	return out
}

// CountByStatus tallies entries per canonical status.
func CountByStatus(entries []Entry) map[Status]int {
	counts := make(map[Status]int)
	for _, e := range entries {
		counts[e.Status]++
	}
	return counts
}

// CountBySource tallies entries per enumeration source.
func CountBySource(entries []Entry) map[Source]int {
	counts := make(map[Source]int)
	for _, e := range entries {
		counts[e.Source]++
	}
	return counts
}
