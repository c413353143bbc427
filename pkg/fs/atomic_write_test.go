package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testContentHello = "hello"

func TestAtomicWriterWriteReplacesFileContentInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	writer := NewAtomicWriter(NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriterWriteLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := NewAtomicWriter(NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "final.txt" {
		t.Fatalf("dir entries=%v, want exactly [final.txt]", entries)
	}
}

func TestAtomicWriterWriteRejectsNilReader(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil reader")
		}
	}()

	writer := NewAtomicWriter(NewReal())
	_ = writer.WriteWithDefaults(filepath.Join(t.TempDir(), "f.txt"), nil)
}
