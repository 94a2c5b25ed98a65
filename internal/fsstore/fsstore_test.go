package fsstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadJSONMissingFile(t *testing.T) {
	t.Parallel()

	var out []int
	loaded, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if loaded {
		t.Fatal("ReadJSON() loaded = true for missing file")
	}
}

func TestReadJSONEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	loaded, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if loaded {
		t.Fatal("ReadJSON() loaded = true for empty file")
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	t.Parallel()

	type rec struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	path := filepath.Join(t.TempDir(), "nested", "links.json")
	want := []rec{{ID: -100123, Name: "ops"}, {ID: 42, Name: "dev"}}
	if err := WriteJSONAtomic(path, want); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}

	var got []rec
	loaded, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !loaded {
		t.Fatal("ReadJSON() loaded = false after write")
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want 1", len(entries))
	}
}

func TestReadJSONMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if _, err := ReadJSON(path, &out); err == nil {
		t.Fatal("ReadJSON() error = nil for malformed file")
	}
}
