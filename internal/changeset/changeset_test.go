package changeset

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw      string
		want     Status
		wantWarn bool
	}{
		{"A", StatusAdded, false},
		{"M", StatusModified, false},
		{"D", StatusDeleted, false},
		{"R", StatusRenamed, false},
		{"R087", StatusRenamed, false},
		{"C100", StatusAdded, true},
		{"T", StatusModified, false},
		{"U", StatusModified, false},
		{"X", StatusModified, true},
		{"", StatusModified, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, warn := ParseStatus(tt.raw)
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if (warn != "") != tt.wantWarn {
				t.Errorf("ParseStatus(%q) warning = %q, wantWarn %v", tt.raw, warn, tt.wantWarn)
			}
			if warn != "" && !strings.Contains(warn, tt.raw) {
				t.Errorf("warning should name the raw status: %q", warn)
			}
		})
	}
}

func TestNormalizeMergePrecedence(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    Status
	}{
		{
			name: "deleted beats modified",
			entries: []Entry{
				{Status: StatusModified, EffectivePath: "a.ts", NewPath: "a.ts"},
				{Status: StatusDeleted, EffectivePath: "a.ts", OldPath: "a.ts"},
			},
			want: StatusDeleted,
		},
		{
			name: "renamed beats added",
			entries: []Entry{
				{Status: StatusAdded, EffectivePath: "a.ts", NewPath: "a.ts"},
				{Status: StatusRenamed, EffectivePath: "a.ts", OldPath: "old.ts", NewPath: "a.ts"},
			},
			want: StatusRenamed,
		},
		{
			name: "modified beats added regardless of order",
			entries: []Entry{
				{Status: StatusModified, EffectivePath: "a.ts", NewPath: "a.ts"},
				{Status: StatusAdded, EffectivePath: "a.ts", NewPath: "a.ts"},
			},
			want: StatusModified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.entries, nil)
			if len(got) != 1 {
				t.Fatalf("len = %d, want 1", len(got))
			}
			if got[0].Status != tt.want {
				t.Errorf("Status = %v, want %v", got[0].Status, tt.want)
			}
		})
	}
}

func TestNormalizeRicherRecordWinsTie(t *testing.T) {
	bare := Entry{Status: StatusRenamed, EffectivePath: "a.ts", NewPath: "a.ts"}
	rich := Entry{Status: StatusRenamed, EffectivePath: "a.ts", OldPath: "old.ts", NewPath: "a.ts"}

	got := Normalize([]Entry{bare, rich}, nil)
	if len(got) != 1 || got[0].OldPath != "old.ts" {
		t.Errorf("richer record should win: %+v", got)
	}

	// Order must not matter
	got = Normalize([]Entry{rich, bare}, nil)
	if len(got) != 1 || got[0].OldPath != "old.ts" {
		t.Errorf("richer record should win regardless of order: %+v", got)
	}
}

func TestNormalizeFilterAndSort(t *testing.T) {
	entries := []Entry{
		{Status: StatusModified, EffectivePath: "z.ts", NewPath: "z.ts"},
		{Status: StatusModified, EffectivePath: "a.ts", NewPath: "a.ts"},
		{Status: StatusModified, EffectivePath: "node_modules/x.ts", NewPath: "node_modules/x.ts"},
	}

	got := Normalize(entries, func(p string) bool {
		return !strings.HasPrefix(p, "node_modules/")
	})

	want := []string{"a.ts", "z.ts"}
	if !reflect.DeepEqual(Paths(got), want) {
		t.Errorf("Paths = %v, want %v", Paths(got), want)
	}
}

func TestCounts(t *testing.T) {
	entries := []Entry{
		{Status: StatusAdded, EffectivePath: "a.ts", Source: SourceUntracked},
		{Status: StatusModified, EffectivePath: "b.ts", Source: SourceBaseHead},
		{Status: StatusModified, EffectivePath: "c.ts", Source: SourceWorkingTree},
	}

	byStatus := CountByStatus(entries)
	if byStatus[StatusModified] != 2 || byStatus[StatusAdded] != 1 {
		t.Errorf("CountByStatus = %v", byStatus)
	}

	bySource := CountBySource(entries)
	if bySource[SourceBaseHead] != 1 || bySource[SourceWorkingTree] != 1 || bySource[SourceUntracked] != 1 {
		t.Errorf("CountBySource = %v", bySource)
	}
}
