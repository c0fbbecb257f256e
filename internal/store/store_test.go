package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"tia/internal/logging"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".tia", "cache.db"), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openStore(t)

	fps := map[string]string{
		"MyPage\x00call\x00open":  "open ( ) { return 1 ; }",
		"MyPage\x00call\x00close": "close ( ) { }",
	}
	s.Put("base:main", "src/pages/my.page.ts", "abc123", fps)

	got, ok := s.Get("base:main", "src/pages/my.page.ts", "abc123")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !reflect.DeepEqual(got, fps) {
		t.Errorf("got %v, want %v", got, fps)
	}
}

func TestGetMissOnDifferentKey(t *testing.T) {
	s := openStore(t)
	s.Put("base:main", "a.ts", "hash1", map[string]string{"A\x00call\x00m": "fp"})

	if _, ok := s.Get("base:main", "a.ts", "hash2"); ok {
		t.Error("different content hash must miss")
	}
	if _, ok := s.Get("base:other", "a.ts", "hash1"); ok {
		t.Error("different revision must miss")
	}
	if _, ok := s.Get("base:main", "b.ts", "hash1"); ok {
		t.Error("different path must miss")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openStore(t)
	s.Put("r", "a.ts", "h", map[string]string{"A\x00call\x00m": "old"})
	s.Put("r", "a.ts", "h", map[string]string{"A\x00call\x00m": "new"})

	got, ok := s.Get("r", "a.ts", "h")
	if !ok || got["A\x00call\x00m"] != "new" {
		t.Errorf("got %v", got)
	}
}

func TestEmptyPutIsNoop(t *testing.T) {
	s := openStore(t)
	s.Put("r", "a.ts", "h", nil)
	if _, ok := s.Get("r", "a.ts", "h"); ok {
		t.Error("empty put must not create a hit")
	}
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	s.Put("base:old", "a.ts", "h1", map[string]string{"A\x00call\x00m": "fp"})
	s.Put("base:new", "a.ts", "h2", map[string]string{"A\x00call\x00m": "fp"})

	if err := s.Prune([]string{"base:new"}); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get("base:old", "a.ts", "h1"); ok {
		t.Error("pruned revision should miss")
	}
	if _, ok := s.Get("base:new", "a.ts", "h2"); !ok {
		t.Error("kept revision should hit")
	}
}
