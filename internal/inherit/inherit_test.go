package inherit

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"tia/internal/logging"
	"tia/internal/tsmodel"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestScanExtractsForest(t *testing.T) {
	repo := writeTree(t, map[string]string{
		"src/pages/base.page.ts":  `export class BasePage { goto(url: string) {} }`,
		"src/pages/login.page.ts": `export class LoginPage extends BasePage { login() {} }`,
		"src/pages/admin.page.ts": `export class AdminLoginPage extends LoginPage { loginAsAdmin() {} }`,
		"src/widgets/banner.ts":   `export class Banner { dismiss() {} }`,
	})

	scanner := NewScanner(tsmodel.NewCache(), logging.Discard())
	graph, files, warnings := scanner.Scan(context.Background(), repo, []string{"src"}, []string{".ts", ".tsx"})

	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(files) != 4 {
		t.Errorf("files = %v", files)
	}

	if graph.ParentsByChild["LoginPage"] != "BasePage" {
		t.Errorf("LoginPage parent = %q", graph.ParentsByChild["LoginPage"])
	}
	if graph.ParentsByChild["AdminLoginPage"] != "LoginPage" {
		t.Errorf("AdminLoginPage parent = %q", graph.ParentsByChild["AdminLoginPage"])
	}
	if _, ok := graph.ParentsByChild["Banner"]; ok {
		t.Error("Banner has no parent")
	}

	if !graph.ChildrenByParent["BasePage"]["LoginPage"] {
		t.Errorf("transposed view missing: %v", graph.ChildrenByParent)
	}
}

func TestLineage(t *testing.T) {
	g := NewGraph()
	g.add("C", "B")
	g.add("B", "A")

	if got := g.Lineage("C"); !reflect.DeepEqual(got, []string{"C", "B", "A"}) {
		t.Errorf("Lineage(C) = %v", got)
	}
	if got := g.Lineage("A"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("Lineage(A) = %v", got)
	}
	if got := g.Lineage("Unknown"); !reflect.DeepEqual(got, []string{"Unknown"}) {
		t.Errorf("Lineage(Unknown) = %v", got)
	}
}

func TestLineageCycleGuard(t *testing.T) {
	g := NewGraph()
	g.add("A", "B")
	g.add("B", "A")

	got := g.Lineage("A")
	if len(got) != 2 {
		t.Errorf("cyclic lineage should terminate: %v", got)
	}
}

func TestDescendants(t *testing.T) {
	g := NewGraph()
	g.add("B", "A")
	g.add("C", "A")
	g.add("D", "C")

	got := g.Descendants("A")
	want := map[string]bool{"B": true, "C": true, "D": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Descendants(A) = %v", got)
	}
	if len(g.Descendants("D")) != 0 {
		t.Error("leaf has no descendants")
	}
}

func TestScanSkipsUnreadableRoot(t *testing.T) {
	repo := writeTree(t, map[string]string{
		"src/pages/base.page.ts": `export class BasePage {}`,
	})

	scanner := NewScanner(tsmodel.NewCache(), logging.Discard())
	graph, files, warnings := scanner.Scan(context.Background(), repo, []string{"src", "missing-root"}, []string{".ts"})

	// A missing root is simply empty, not an error
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(files) != 1 {
		t.Errorf("files = %v", files)
	}
	if len(graph.ParentsByChild) != 0 {
		t.Errorf("graph = %v", graph.ParentsByChild)
	}
}
