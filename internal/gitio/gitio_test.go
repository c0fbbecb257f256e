package gitio

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"

	"tia/internal/changeset"
	"tia/internal/logging"
)

func TestParseNameStatusNUL(t *testing.T) {
	r := NewRunner(".", logging.Discard())

	tests := []struct {
		name     string
		input    []byte
		expected []changeset.Entry
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: nil,
		},
		{
			name:  "single added file",
			input: []byte("A\x00src/pages/login.page.ts\x00"),
			expected: []changeset.Entry{
				{Status: changeset.StatusAdded, NewPath: "src/pages/login.page.ts", EffectivePath: "src/pages/login.page.ts", RawStatus: "A", Source: changeset.SourceBaseHead},
			},
		},
		{
			name:  "single modified file",
			input: []byte("M\x00src/pages/cart.page.ts\x00"),
			expected: []changeset.Entry{
				{Status: changeset.StatusModified, OldPath: "src/pages/cart.page.ts", NewPath: "src/pages/cart.page.ts", EffectivePath: "src/pages/cart.page.ts", RawStatus: "M", Source: changeset.SourceBaseHead},
			},
		},
		{
			name:  "deleted file keys on deleted path",
			input: []byte("D\x00src/pages/old.page.ts\x00"),
			expected: []changeset.Entry{
				{Status: changeset.StatusDeleted, OldPath: "src/pages/old.page.ts", EffectivePath: "src/pages/old.page.ts", RawStatus: "D", Source: changeset.SourceBaseHead},
			},
		},
		{
			name:  "rename reads both paths",
			input: []byte("R095\x00src/pages/my.page.ts\x00src/pages/renamed.page.ts\x00"),
			expected: []changeset.Entry{
				{Status: changeset.StatusRenamed, OldPath: "src/pages/my.page.ts", NewPath: "src/pages/renamed.page.ts", EffectivePath: "src/pages/renamed.page.ts", RawStatus: "R095", Source: changeset.SourceBaseHead},
			},
		},
		{
			name:  "path with spaces",
			input: []byte("M\x00src/pages/my page.ts\x00"),
			expected: []changeset.Entry{
				{Status: changeset.StatusModified, OldPath: "src/pages/my page.ts", NewPath: "src/pages/my page.ts", EffectivePath: "src/pages/my page.ts", RawStatus: "M", Source: changeset.SourceBaseHead},
			},
		},
		{
			name:  "multiple entries",
			input: []byte("A\x00a.ts\x00M\x00b.ts\x00"),
			expected: []changeset.Entry{
				{Status: changeset.StatusAdded, NewPath: "a.ts", EffectivePath: "a.ts", RawStatus: "A", Source: changeset.SourceBaseHead},
				{Status: changeset.StatusModified, OldPath: "b.ts", NewPath: "b.ts", EffectivePath: "b.ts", RawStatus: "M", Source: changeset.SourceBaseHead},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := r.parseNameStatusNUL(tt.input, changeset.SourceBaseHead)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %+v\nwant %+v", got, tt.expected)
			}
			if len(warnings) != 0 {
				t.Errorf("unexpected warnings: %v", warnings)
			}
		})
	}
}

func TestParseNameStatusNULFallbacks(t *testing.T) {
	r := NewRunner(".", logging.Discard())

	got, warnings := r.parseNameStatusNUL([]byte("C075\x00src/a.ts\x00src/b.ts\x00X\x00src/c.ts\x00"), changeset.SourceBaseHead)
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Status != changeset.StatusAdded || got[0].RawStatus != "C075" {
		t.Errorf("copy entry = %+v", got[0])
	}
	if got[1].Status != changeset.StatusModified || got[1].RawStatus != "X" {
		t.Errorf("unknown entry = %+v", got[1])
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %v, want one per fallback", warnings)
	}
}

func TestParseNameStatusNULMalformed(t *testing.T) {
	r := NewRunner(".", logging.Discard())

	got, warnings := r.parseNameStatusNUL([]byte("R100\x00only-old.ts\x00"), changeset.SourceBaseHead)
	if len(got) != 0 {
		t.Errorf("malformed rename should be skipped, got %+v", got)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestParseUnifiedDiff(t *testing.T) {
	diff := `diff --git a/src/pages/login.page.ts b/src/pages/login.page.ts
index 1111111..2222222 100644
--- a/src/pages/login.page.ts
+++ b/src/pages/login.page.ts
@@ -1,3 +1,3 @@
 export class LoginPage {
-  open() { return 1; }
+  open() { return 2; }
 }
diff --git a/src/pages/new.page.ts b/src/pages/new.page.ts
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/src/pages/new.page.ts
@@ -0,0 +1,1 @@
+export class NewPage {}
`

	got, err := ParseUnifiedDiff([]byte(diff), changeset.SourceBaseHead)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Status != changeset.StatusModified || got[0].EffectivePath != "src/pages/login.page.ts" {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Status != changeset.StatusAdded || got[1].EffectivePath != "src/pages/new.page.ts" {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestParseUnifiedDiffEmpty(t *testing.T) {
	got, err := ParseUnifiedDiff(nil, changeset.SourceBaseHead)
	if err != nil || got != nil {
		t.Errorf("got %v, %v", got, err)
	}
}

// gitRepo builds a throwaway git repository for end-to-end enumeration tests.
func gitRepo(t *testing.T) (string, func(args ...string)) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	return dir, run
}

func TestEnumerateAgainstRealRepo(t *testing.T) {
	dir, run := gitRepo(t)

	write := func(rel, content string) {
		t.Helper()
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("src/pages/my.page.ts", "export class MyPage { open() { return 1; } }\n")
	run("add", ".")
	run("commit", "-q", "-m", "base")
	run("branch", "-M", "main")

	write("src/pages/my.page.ts", "export class MyPage { open() { return 2; } }\n")
	run("commit", "-q", "-am", "edit")

	write("src/pages/wip.page.ts", "export class WipPage {}\n")

	r := NewRunner(dir, logging.Discard())

	baseHead, warnings, err := r.DiffBaseHead("main~1")
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(baseHead) != 1 || baseHead[0].Status != changeset.StatusModified || baseHead[0].EffectivePath != "src/pages/my.page.ts" {
		t.Errorf("baseHead = %+v", baseHead)
	}

	untracked, _ := r.ListUntracked()
	found := false
	for _, e := range untracked {
		if e.EffectivePath == "src/pages/wip.page.ts" && e.Status == changeset.StatusAdded {
			found = true
		}
	}
	if !found {
		t.Errorf("untracked missing wip.page.ts: %+v", untracked)
	}

	// Revisioned read returns base content, working tree read returns head
	base, err := r.ShowFile("main~1", "src/pages/my.page.ts")
	if err != nil {
		t.Fatal(err)
	}
	if string(base) != "export class MyPage { open() { return 1; } }\n" {
		t.Errorf("base content = %q", base)
	}
	head, err := r.ShowFile(WorkingTree, "src/pages/my.page.ts")
	if err != nil {
		t.Fatal(err)
	}
	if string(head) != "export class MyPage { open() { return 2; } }\n" {
		t.Errorf("head content = %q", head)
	}
}

func TestDiffBaseHeadBadRevision(t *testing.T) {
	dir, run := gitRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "a.ts"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "base")

	r := NewRunner(dir, logging.Discard())
	_, _, err := r.DiffBaseHead("no-such-ref")
	if err == nil {
		t.Fatal("expected SourceEnumerationFailed")
	}
}
