package hash

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestFileDeterministic verifies that hashing the same unchanged file
// repeatedly yields the same digest.
func TestFileDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meme.jpg")
	if err := os.WriteFile(path, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := File(path)
	if err != nil {
		t.Fatalf("File() error: %v", err)
	}
	second, err := File(path)
	if err != nil {
		t.Fatalf("File() error: %v", err)
	}
	if first != second {
		t.Errorf("digest not stable: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("unexpected digest length: got %d, want 64", len(first))
	}
}

// TestFileMatchesBytes verifies streaming and in-memory digests agree.
func TestFileMatchesBytes(t *testing.T) {
	data := []byte("same content, two entry points")
	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := File(path)
	if err != nil {
		t.Fatalf("File() error: %v", err)
	}
	if fromBytes := Bytes(data); fromFile != fromBytes {
		t.Errorf("File=%s Bytes=%s", fromFile, fromBytes)
	}
}

// TestFileUnavailable verifies read failures surface as ErrUnavailable
// rather than a raw I/O error.
func TestFileUnavailable(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "does-not-exist.gif"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
