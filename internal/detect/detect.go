// Package detect compares base and head revisions of changed source files
// at the syntax-tree level and classifies which class members changed.
package detect

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"tia/internal/changeset"
	"tia/internal/logging"
	"tia/internal/tsmodel"
)

// FileReader reads file content keyed by (revision, path). The empty
// revision reads the working tree.
type FileReader interface {
	ShowFile(revision, path string) ([]byte, error)
}

// FingerprintStore persists member fingerprints across invocations.
// Advisory: every miss or failure recomputes.
type FingerprintStore interface {
	Get(revision, path, contentHash string) (map[string]string, bool)
	Put(revision, path, contentHash string, fps map[string]string)
}

// Result is the detector output.
type Result struct {
	// ChangedMethodsByClass maps class name to the set of changed
	// callable member names
	ChangedMethodsByClass map[string]map[string]bool
	// TopLevelRuntimeChangedFiles lists files whose runtime top-level
	// fingerprint changed, sorted
	TopLevelRuntimeChangedFiles []string
	// AnalyzedFiles counts entries that reached fingerprint comparison
	AnalyzedFiles int
	Warnings      []string
}

// ChangedMethodCount returns the total number of (class, member) pairs.
func (r *Result) ChangedMethodCount() int {
	count := 0
	for _, members := range r.ChangedMethodsByClass {
		count += len(members)
	}
	return count
}

func (r *Result) record(class, member string) {
	if r.ChangedMethodsByClass[class] == nil {
		r.ChangedMethodsByClass[class] = map[string]bool{}
	}
	r.ChangedMethodsByClass[class][member] = true
}

// recordAllCallables marks every callable member of the class in both
// revisions as changed.
func (r *Result) recordAllCallables(class string, models ...*tsmodel.FileModel) {
	for _, model := range models {
		cls, ok := model.Classes[class]
		if !ok {
			continue
		}
		for _, name := range cls.CallableNames() {
			r.record(class, name)
		}
	}
}

// Detector computes member-level semantic changes.
type Detector struct {
	cache  *tsmodel.Cache
	reader FileReader
	store  FingerprintStore
	logger *logging.Logger

	// baseRevision is the revision the base side of each comparison is
	// read from: the configured base ref, or HEAD for working-tree runs.
	baseRevision string
}

// NewDetector creates a detector.
func NewDetector(cache *tsmodel.Cache, reader FileReader, baseRevision string, logger *logging.Logger) *Detector {
	if baseRevision == "" {
		baseRevision = "HEAD"
	}
	return &Detector{cache: cache, reader: reader, baseRevision: baseRevision, logger: logger}
}

// SetStore attaches a persistent fingerprint cache.
func (d *Detector) SetStore(store FingerprintStore) {
	d.store = store
}

// Detect processes every relevant changed source entry.
func (d *Detector) Detect(ctx context.Context, entries []changeset.Entry, isRelevant func(string) bool, extensions []string) *Result {
	result := &Result{ChangedMethodsByClass: map[string]map[string]bool{}}

	for _, entry := range entries {
		if !isRelevant(entry.EffectivePath) {
			continue
		}
		if _, ok := tsmodel.LanguageForPath(entry.EffectivePath); !ok {
			continue
		}
		d.detectEntry(ctx, entry, result)
	}

	sort.Strings(result.TopLevelRuntimeChangedFiles)
	return result
}

// loadSides reads the base and head contents for an entry. Missing sides
// (adds, deletes, unborn base paths) are empty.
func (d *Detector) loadSides(entry changeset.Entry, result *Result) (base, head []byte) {
	readBase := func(path string) []byte {
		content, err := d.reader.ShowFile(d.baseRevision, path)
		if err != nil {
			// The path may legitimately not exist at base (e.g. an added
			// file promoted to Modified by a working-tree edit)
			return nil
		}
		return content
	}
	readHead := func(path string) []byte {
		content, err := d.reader.ShowFile("", path)
		if err != nil {
			result.Warnings = append(result.Warnings, "unreadable head revision: "+path)
			return nil
		}
		return content
	}

	switch entry.Status {
	case changeset.StatusAdded:
		return nil, readHead(entry.EffectivePath)
	case changeset.StatusDeleted:
		return readBase(entry.EffectivePath), nil
	case changeset.StatusRenamed:
		basePath := entry.OldPath
		if basePath == "" {
			basePath = entry.EffectivePath
		}
		return readBase(basePath), readHead(entry.EffectivePath)
	default:
		return readBase(entry.EffectivePath), readHead(entry.EffectivePath)
	}
}

func (d *Detector) detectEntry(ctx context.Context, entry changeset.Entry, result *Result) {
	baseContent, headContent := d.loadSides(entry, result)

	// A rename with byte-identical content is pure movement
	if bytes.Equal(baseContent, headContent) {
		return
	}
	result.AnalyzedFiles++

	basePath := entry.OldPath
	if basePath == "" {
		basePath = entry.EffectivePath
	}

	baseModel := tsmodel.EmptyFileModel(basePath)
	if len(baseContent) > 0 {
		model, ok := d.cache.Model(ctx, "base:"+d.baseRevision, basePath, baseContent)
		if !ok {
			result.Warnings = append(result.Warnings, "unparseable base revision: "+basePath)
		}
		baseModel = model
	}

	headModel := tsmodel.EmptyFileModel(entry.EffectivePath)
	if len(headContent) > 0 {
		model, ok := d.cache.Model(ctx, "head", entry.EffectivePath, headContent)
		if !ok {
			result.Warnings = append(result.Warnings, "unparseable head revision: "+entry.EffectivePath)
		}
		headModel = model
	}

	// Top-level runtime change expands to every callable of every class
	// in either revision: module-scope state is reachable from anywhere.
	baseRuntime := tsmodel.TopLevelRuntimeFingerprint(baseModel)
	headRuntime := tsmodel.TopLevelRuntimeFingerprint(headModel)
	if baseRuntime != headRuntime {
		result.TopLevelRuntimeChangedFiles = append(result.TopLevelRuntimeChangedFiles, entry.EffectivePath)
		for _, class := range unionClassNames(baseModel, headModel) {
			result.recordAllCallables(class, baseModel, headModel)
		}
	}

	baseFPs := d.memberFingerprints("base:"+d.baseRevision, basePath, baseContent, baseModel)
	headFPs := d.memberFingerprints("head", entry.EffectivePath, headContent, headModel)

	for _, class := range unionClassNames(baseModel, headModel) {
		d.diffClass(class, baseModel, headModel, baseFPs, headFPs, result)
	}
}

// memberFingerprints computes (or loads from the persistent store) the
// fingerprint of every member in the file, keyed by class, kind, and name.
func (d *Detector) memberFingerprints(revision, path string, content []byte, model *tsmodel.FileModel) map[string]string {
	var contentHash string
	if d.store != nil && len(content) > 0 {
		contentHash = tsmodel.ContentHash(content)
		if fps, ok := d.store.Get(revision, path, contentHash); ok {
			return fps
		}
	}

	fps := map[string]string{}
	for _, class := range model.ClassNames() {
		cls := model.Classes[class]
		for id, member := range cls.Members {
			key := fpKey(class, id)
			fps[key] = d.cache.MemberFingerprint(revision, path, member, model.Source)
		}
	}

	if d.store != nil && contentHash != "" {
		d.store.Put(revision, path, contentHash, fps)
	}
	return fps
}

func fpKey(class string, id tsmodel.MemberIdentity) string {
	return class + "\x00" + string(id.Kind) + "\x00" + id.Name
}

// diffClass iterates the union of member identities of one class across
// revisions.
func (d *Detector) diffClass(class string, baseModel, headModel *tsmodel.FileModel, baseFPs, headFPs map[string]string, result *Result) {
	baseClass := baseModel.Classes[class]
	headClass := headModel.Classes[class]

	for _, id := range unionMemberIdentities(baseClass, headClass) {
		key := fpKey(class, id)
		if baseFPs[key] == headFPs[key] {
			continue
		}

		var baseMember, headMember *tsmodel.Member
		if baseClass != nil {
			baseMember = baseClass.Members[id]
		}
		if headClass != nil {
			headMember = headClass.Members[id]
		}

		callable := (baseMember != nil && baseMember.Callable) || (headMember != nil && headMember.Callable)
		if callable {
			result.record(class, id.Name)
		} else {
			// A non-callable field's value is reachable from any method
			// via `this`
			result.recordAllCallables(class, baseModel, headModel)
		}
	}
}

func unionClassNames(models ...*tsmodel.FileModel) []string {
	seen := map[string]bool{}
	for _, model := range models {
		for name := range model.Classes {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func unionMemberIdentities(classes ...*tsmodel.Class) []tsmodel.MemberIdentity {
	seen := map[tsmodel.MemberIdentity]bool{}
	for _, cls := range classes {
		if cls == nil {
			continue
		}
		for id := range cls.Members {
			seen[id] = true
		}
	}
	ids := make([]tsmodel.MemberIdentity, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		return ids[i].Kind < ids[j].Kind
	})
	return ids
}

// Summary renders a compact debug description of the result.
func (r *Result) Summary() string {
	return fmt.Sprintf("changed members: %d across %d classes, runtime-changed files: %d",
		r.ChangedMethodCount(), len(r.ChangedMethodsByClass), len(r.TopLevelRuntimeChangedFiles))
}
