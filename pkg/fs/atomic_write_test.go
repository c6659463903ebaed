package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/levelhash/pkg/fs"
)

func TestAtomicWriteFile_WritesContentAndLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	const content = "hello, atomic world"

	if err := writer.Write(path, strings.NewReader(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != content {
		t.Fatalf("content=%q, want %q", string(got), content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("directory has %d entries after atomic write, want 1 (no leftover temp files): %v", len(entries), entries)
	}
}

func TestAtomicWriteFile_OverwritesExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("setup WriteFile: %v", err)
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.Write(path, strings.NewReader("fresh")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "fresh" {
		t.Fatalf("content=%q, want %q", string(got), "fresh")
	}
}
