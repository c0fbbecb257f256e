package analyzer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"tia/internal/config"
	tiaerrors "tia/internal/errors"
	"tia/internal/specmatch"
)

// repo is a throwaway git repository for end-to-end pipeline tests.
type repo struct {
	t    *testing.T
	root string
}

func newRepo(t *testing.T) *repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	r := &repo{t: t, root: t.TempDir()}
	r.git("init", "-q")
	r.git("config", "user.name", "t")
	r.git("config", "user.email", "t@t")
	return r
}

func (r *repo) git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.root
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func (r *repo) write(rel, content string) {
	r.t.Helper()
	full := filepath.Join(r.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

func (r *repo) commitAll(msg string) string {
	r.t.Helper()
	r.git("add", "-A")
	r.git("commit", "-q", "-m", msg)
	return r.git("rev-parse", "HEAD")
}

func testProfile() *config.Profile {
	return &config.Profile{
		Name:              "e2e",
		TestsRoot:         "tests",
		ChangedSpecPrefix: "tests/",
		RelevantPaths:     []string{"src/**"},
		AnalysisRoots:     []string{"src/pages", "src/widgets"},
		FixturesTypes:     "src/fixtures/types.ts",
	}
}

// baseRepo builds the canonical POM fixture: one page class, a fixture
// binding, and one spec exercising it.
func baseRepo(t *testing.T) *repo {
	r := newRepo(t)
	r.write("src/pages/my.page.ts", `export class MyPage {
  open() { return 1; }
  close() { return 0; }
}
`)
	r.write("src/fixtures/types.ts", `export type Fixtures = {
  myPage: MyPage;
};
`)
	r.write("tests/basic.spec.ts", `test('basic', async ({ myPage }) => {
  await myPage.open();
});
`)
	r.write("playwright.config.ts", `export default { retries: 1 };
`)
	r.commitAll("base")
	return r
}

func analyze(t *testing.T, r *repo, mutate func(opts *Options)) *Result {
	t.Helper()
	opts := NewOptions(r.root, testProfile())
	if mutate != nil {
		mutate(&opts)
	}
	result, err := Analyze(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestDirectSpecChange(t *testing.T) {
	r := baseRepo(t)
	r.write("tests/basic.spec.ts", `test('basic', async ({ myPage }) => {
  await myPage.open();
  await myPage.open();
});
`)

	result := analyze(t, r, nil)

	if !reflect.DeepEqual(result.SelectedSpecs, []string{"tests/basic.spec.ts"}) {
		t.Fatalf("SelectedSpecs = %v", result.SelectedSpecs)
	}
	if result.ReasonsBySpec["tests/basic.spec.ts"] != specmatch.ReasonDirectChangedSpec {
		t.Errorf("reason = %q", result.ReasonsBySpec["tests/basic.spec.ts"])
	}
	if !result.HasAnythingToRun {
		t.Error("HasAnythingToRun must follow a non-empty selection")
	}
}

func TestMethodChangePropagatesThroughCallChain(t *testing.T) {
	r := newRepo(t)
	r.write("src/pages/a.page.ts", `export class APage {
  leaf() { return 1; }
  mid() { return this.leaf(); }
  top() { return this.mid(); }
}
`)
	r.write("src/fixtures/types.ts", `export type Fixtures = { aPage: APage };
`)
	r.write("tests/chain.spec.ts", `test('chain', async ({ aPage }) => {
  await aPage.top();
});
`)
	r.commitAll("base")

	r.write("src/pages/a.page.ts", `export class APage {
  leaf() { return 2; }
  mid() { return this.leaf(); }
  top() { return this.mid(); }
}
`)

	result := analyze(t, r, nil)

	if result.ReasonsBySpec["tests/chain.spec.ts"] != specmatch.ReasonPrecise {
		t.Errorf("leaf change should reach top() caller precisely: %v", result.ReasonsBySpec)
	}
	if result.Stats.SemanticChangedMethodsCount != 1 {
		t.Errorf("SemanticChangedMethodsCount = %d, want 1", result.Stats.SemanticChangedMethodsCount)
	}
	if result.Stats.ImpactedMethodsCount < 3 {
		t.Errorf("ImpactedMethodsCount = %d, want >= 3 (leaf, mid, top)", result.Stats.ImpactedMethodsCount)
	}
}

func TestDynamicDispatchBias(t *testing.T) {
	build := func(t *testing.T) *repo {
		r := baseRepo(t)
		r.write("tests/dynamic.spec.ts", `test('dyn', async ({ myPage }) => {
  const k = "open";
  await myPage[k]();
});
`)
		r.commitAll("add dynamic spec")
		r.write("src/pages/my.page.ts", `export class MyPage {
  open() { return 42; }
  close() { return 0; }
}
`)
		return r
	}

	openResult := analyze(t, build(t), func(o *Options) { o.SelectionBias = specmatch.BiasFailOpen })
	if openResult.ReasonsBySpec["tests/dynamic.spec.ts"] != specmatch.ReasonUncertainFailOpen {
		t.Errorf("fail-open reasons = %v", openResult.ReasonsBySpec)
	}
	if openResult.Coverage.UncertainCallSites < 1 {
		t.Errorf("UncertainCallSites = %d", openResult.Coverage.UncertainCallSites)
	}

	closedResult := analyze(t, build(t), func(o *Options) { o.SelectionBias = specmatch.BiasFailClosed })
	if _, selected := closedResult.ReasonsBySpec["tests/dynamic.spec.ts"]; selected {
		t.Errorf("fail-closed must drop the dynamic spec: %v", closedResult.ReasonsBySpec)
	}

	// Monotonicity of bias
	if len(openResult.SelectedSpecs) < len(closedResult.SelectedSpecs) {
		t.Error("fail-open must select at least as much as fail-closed")
	}
}

func TestRenameOnlyVersusRenameWithEdit(t *testing.T) {
	r := baseRepo(t)
	base := r.git("rev-parse", "HEAD")
	r.git("mv", "src/pages/my.page.ts", "src/pages/renamed.page.ts")
	r.commitAll("rename only")

	result := analyze(t, r, func(o *Options) { o.BaseRef = base })

	if result.Stats.CountsByStatus["R"] != 1 {
		t.Errorf("CountsByStatus = %v, want one rename", result.Stats.CountsByStatus)
	}
	if result.Stats.SemanticChangedMethodsCount != 0 {
		t.Errorf("rename-only must have zero semantic changes: %d", result.Stats.SemanticChangedMethodsCount)
	}
	if len(result.SelectedSpecs) != 0 {
		t.Errorf("rename-only must select nothing: %v", result.SelectedSpecs)
	}
	if result.HasAnythingToRun {
		t.Error("empty result is valid and must report nothing to run")
	}

	// Same rename plus a body edit
	r2 := baseRepo(t)
	base2 := r2.git("rev-parse", "HEAD")
	r2.git("mv", "src/pages/my.page.ts", "src/pages/renamed.page.ts")
	r2.write("src/pages/renamed.page.ts", `export class MyPage {
  open() { return 99; }
  close() { return 0; }
}
`)
	r2.commitAll("rename with edit")

	result2 := analyze(t, r2, func(o *Options) { o.BaseRef = base2 })

	if result2.Stats.SemanticChangedMethodsCount < 1 {
		t.Errorf("rename with edit must detect the change: %d", result2.Stats.SemanticChangedMethodsCount)
	}
	if result2.ReasonsBySpec["tests/basic.spec.ts"] != specmatch.ReasonPrecise {
		t.Errorf("basic spec should be selected: %v", result2.ReasonsBySpec)
	}
}

func TestCompositionImpact(t *testing.T) {
	r := newRepo(t)
	r.write("src/widgets/widget.ts", `export class Widget {
  click() { return 1; }
}
`)
	r.write("src/pages/page.ts", `export class Page {
  widget: Widget;
  open() { this.widget.click(); }
}
`)
	r.write("src/fixtures/types.ts", `export type Fixtures = { page: Page };
`)
	r.write("tests/comp.spec.ts", `test('comp', async ({ page }) => {
  await page.open();
});
`)
	r.commitAll("base")

	r.write("src/widgets/widget.ts", `export class Widget {
  click() { return 2; }
}
`)

	result := analyze(t, r, nil)

	if result.ReasonsBySpec["tests/comp.spec.ts"] != specmatch.ReasonPrecise {
		t.Errorf("composition change should select the page spec: %v", result.ReasonsBySpec)
	}
}

func TestGlobalWatchForceAll(t *testing.T) {
	r := baseRepo(t)
	r.write("tests/second.spec.ts", `test('second', async ({ myPage }) => {
  await myPage.close();
});
`)
	r.commitAll("second spec")

	r.write("playwright.config.ts", `export default { retries: 3 };
`)

	result := analyze(t, r, nil)

	if !result.ForcedAllSpecs {
		t.Fatalf("config change must force all: %+v", result.GlobalWatch)
	}
	want := []string{"tests/basic.spec.ts", "tests/second.spec.ts"}
	if !reflect.DeepEqual(result.SelectedSpecs, want) {
		t.Errorf("SelectedSpecs = %v, want %v", result.SelectedSpecs, want)
	}
	for _, spec := range want {
		if result.ReasonsBySpec[spec] != specmatch.ReasonGlobalWatch {
			t.Errorf("reason for %s = %q", spec, result.ReasonsBySpec[spec])
		}
	}

	// Pipeline short-circuits: intermediate statistics stay zeroed
	if result.Stats.SemanticChangedMethodsCount != 0 || result.Stats.ImpactedMethodsCount != 0 {
		t.Errorf("short-circuit must zero intermediate stats: %+v", result.Stats)
	}
}

func TestFixtureChangeForcesAll(t *testing.T) {
	r := baseRepo(t)
	r.write("src/fixtures/types.ts", `export type Fixtures = {
  myPage: MyPage;
  extra: ExtraPage;
};
`)

	result := analyze(t, r, nil)
	if !result.ForcedAllSpecs {
		t.Error("fixtures tree is watched by default")
	}
}

func TestImportGraphMatch(t *testing.T) {
	r := newRepo(t)
	r.write("src/util/helper.ts", `export function helper() { return 1; }
`)
	r.write("tests/helper.spec.ts", `import { helper } from '../src/util/helper';
test('helper', () => { helper(); });
`)
	r.write("src/fixtures/types.ts", `export type Fixtures = {};
`)
	r.commitAll("base")

	r.write("src/util/helper.ts", `export function helper() { return 2; }
`)

	result := analyze(t, r, nil)

	if result.ReasonsBySpec["tests/helper.spec.ts"] != specmatch.ReasonImportGraph {
		t.Errorf("spec importing a changed file must match: %v", result.ReasonsBySpec)
	}
}

func TestWhitespaceOnlyChangeSelectsNothing(t *testing.T) {
	r := baseRepo(t)
	r.write("src/pages/my.page.ts", `export class MyPage {

  open() {
      return 1; // unchanged semantics
  }
  close() { return 0; }
}
`)

	result := analyze(t, r, nil)

	if result.Stats.SemanticChangedMethodsCount != 0 {
		t.Errorf("whitespace/comment edit must not count: %d", result.Stats.SemanticChangedMethodsCount)
	}
	if len(result.SelectedSpecs) != 0 {
		t.Errorf("nothing should be selected: %v", result.SelectedSpecs)
	}
}

func TestDeterminism(t *testing.T) {
	r := baseRepo(t)
	r.write("src/pages/my.page.ts", `export class MyPage {
  open() { return 7; }
  close() { return 0; }
}
`)

	a := analyze(t, r, nil)
	b := analyze(t, r, nil)

	a.InvocationID, b.InvocationID = "", ""
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs must produce identical output:\n%+v\n%+v", a, b)
	}
}

func TestSelectionSortedNoDuplicates(t *testing.T) {
	r := baseRepo(t)
	r.write("tests/zz.spec.ts", `test('z', async ({ myPage }) => { await myPage.open(); });
`)
	r.write("tests/aa.spec.ts", `test('a', async ({ myPage }) => { await myPage.open(); });
`)
	r.commitAll("more specs")

	r.write("src/pages/my.page.ts", `export class MyPage {
  open() { return 5; }
  close() { return 0; }
}
`)

	result := analyze(t, r, nil)

	for i := 1; i < len(result.SelectedSpecs); i++ {
		if result.SelectedSpecs[i-1] >= result.SelectedSpecs[i] {
			t.Fatalf("selection not strictly sorted: %v", result.SelectedSpecs)
		}
	}
}

func TestConfigErrors(t *testing.T) {
	_, err := Analyze(context.Background(), Options{})
	te, ok := err.(*tiaerrors.TiaError)
	if !ok || te.Code != tiaerrors.ConfigInvalid {
		t.Errorf("missing repoRoot: %v", err)
	}

	_, err = Analyze(context.Background(), Options{RepoRoot: "/abs/path"})
	te, ok = err.(*tiaerrors.TiaError)
	if !ok || te.Code != tiaerrors.ProfileMissing {
		t.Errorf("missing profile: %v", err)
	}
}

func TestBadBaseRefFailsEnumeration(t *testing.T) {
	r := baseRepo(t)

	opts := NewOptions(r.root, testProfile())
	opts.BaseRef = "no-such-ref"
	_, err := Analyze(context.Background(), opts)
	te, ok := err.(*tiaerrors.TiaError)
	if !ok || te.Code != tiaerrors.SourceEnumerationFailed {
		t.Errorf("bad base ref must fail enumeration: %v", err)
	}
}

func TestDiffFileSource(t *testing.T) {
	r := baseRepo(t)

	diff := `diff --git a/src/pages/my.page.ts b/src/pages/my.page.ts
index 1111111..2222222 100644
--- a/src/pages/my.page.ts
+++ b/src/pages/my.page.ts
@@ -1,4 +1,4 @@
 export class MyPage {
-  open() { return 1; }
+  open() { return 3; }
   close() { return 0; }
 }
`
	diffPath := filepath.Join(r.root, ".tia", "change.diff")
	if err := os.MkdirAll(filepath.Dir(diffPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(diffPath, []byte(diff), 0o644); err != nil {
		t.Fatal(err)
	}

	// The diff names the file as modified, but disk content still matches
	// HEAD, so no semantic change is found; the run completes cleanly
	result := analyze(t, r, func(o *Options) { o.DiffFile = diffPath })
	if result.Stats.ChangeEntries != 1 {
		t.Errorf("ChangeEntries = %d", result.Stats.ChangeEntries)
	}
}
