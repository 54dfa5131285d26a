package cache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPersistThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.pkl")

	l := NewLRU(10)
	l.Set(Key("http://example.com/a"), []byte("hello"))
	l.Set(Key("http://example.com/b"), []byte("world"))

	store := NewStore(l, path, nil)
	if err := store.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded := NewLRU(10)
	Load(path, loaded)

	want := l.Records()
	got := loaded.Records()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round-trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	l := NewLRU(10)
	Load(filepath.Join(t.TempDir(), "does-not-exist.pkl"), l)

	if snap := l.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty cache for missing snapshot, got %v", snap)
	}
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.pkl")
	writeCorrupt(t, path)

	l := NewLRU(10)
	Load(path, l)

	if snap := l.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty cache for corrupt snapshot, got %v", snap)
	}
}

func writeCorrupt(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte{0xff, 0xff, 0xff}, 0o644); err != nil {
		t.Fatalf("writing corrupt snapshot: %v", err)
	}
}
