package fsscan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaspardpetit/findx/internal/events"
)

func newTestScanner(t *testing.T, root string) *Scanner {
	t.Helper()
	return New(Config{
		Roots:      []string{root},
		MirrorRoot: filepath.Join(root, ".findx-mirror-does-not-exist"),
	})
}

func TestScan_FirstScanReportsAllFilesAsAdded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "sub/b.txt", "world")

	s := newTestScanner(t, root)
	delta, ok, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !ok {
		t.Fatal("expected non-empty delta")
	}
	if len(delta.Added) != 2 || len(delta.Modified) != 0 || len(delta.Moved) != 0 || len(delta.Deleted) != 0 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestScan_SecondScanWithNoChangesIsEmpty(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")

	s := newTestScanner(t, root)
	if _, _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	_, ok, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if ok {
		t.Fatal("expected empty delta on unchanged tree")
	}
}

func TestScan_ModifiedFileDetectedByFastSigChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")

	s := newTestScanner(t, root)
	if _, _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	writeFile(t, root, "a.txt", "hello world, now longer")
	delta, ok, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if !ok || len(delta.Modified) != 1 {
		t.Fatalf("expected one modification, got %+v", delta)
	}
}

func TestScan_DeletedFileDetected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")

	s := newTestScanner(t, root)
	if _, _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	if err := os.Remove(filepath.Join(root, "a.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	delta, ok, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if !ok || len(delta.Deleted) != 1 {
		t.Fatalf("expected one deletion, got %+v", delta)
	}
}

func TestScan_MovedFileKeepsSameFileUID(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")

	s := newTestScanner(t, root)
	first, _, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if len(first.Added) != 1 {
		t.Fatalf("expected one added file, got %+v", first)
	}

	oldPath := filepath.Join(root, "a.txt")
	newPath := filepath.Join(root, "moved.txt")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	delta, ok, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if !ok || len(delta.Moved) != 1 {
		t.Fatalf("expected one move, got %+v", delta)
	}
	if delta.Moved[0].Path != newPath {
		t.Fatalf("expected moved path %s, got %s", newPath, delta.Moved[0].Path)
	}
	if delta.Moved[0].FileUID != first.Added[0].FileUID {
		t.Fatalf("expected file_uid %s to survive the move, got %s", first.Added[0].FileUID, delta.Moved[0].FileUID)
	}
}

func TestScan_ExcludeGlobSkipsMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "a")
	writeFile(t, root, "skip.log", "b")

	s := New(Config{
		Roots:        []string{root},
		MirrorRoot:   filepath.Join(root, ".findx-mirror-does-not-exist"),
		ExcludeGlobs: []string{"*.log"},
	})
	delta, _, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(delta.Added) != 1 || filepath.Base(delta.Added[0].Path) != "keep.txt" {
		t.Fatalf("expected only keep.txt, got %+v", delta.Added)
	}
}

func TestScan_HiddenFilesSkippedByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden", "a")
	writeFile(t, root, "visible.txt", "b")

	s := newTestScanner(t, root)
	delta, _, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(delta.Added) != 1 || filepath.Base(delta.Added[0].Path) != "visible.txt" {
		t.Fatalf("expected only visible.txt, got %+v", delta.Added)
	}
}

func TestScan_MaxFileSizeSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "a")
	big := make([]byte, 2*1024*1024)
	if err := os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644); err != nil {
		t.Fatalf("write big file: %v", err)
	}

	s := New(Config{
		Roots:         []string{root},
		MirrorRoot:    filepath.Join(root, ".findx-mirror-does-not-exist"),
		MaxFileSizeMB: 1,
	})
	delta, _, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(delta.Added) != 1 || filepath.Base(delta.Added[0].Path) != "small.txt" {
		t.Fatalf("expected only small.txt, got %+v", delta.Added)
	}
}

func TestScan_MissingRootReturnsConfigError(t *testing.T) {
	s := New(Config{Roots: []string{"/no/such/path/findx-test"}})
	_, _, err := s.Scan(context.Background())
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestDiff_UnchangedFileProducesNoEntries(t *testing.T) {
	fi := events.FileInfo{FileUID: "x", Path: "/a", FastSig: "s1"}
	prev := map[string]events.FileInfo{"x": fi}
	current := map[string]events.FileInfo{"x": fi}

	delta := diff(prev, current)
	if len(delta.Added)+len(delta.Modified)+len(delta.Moved)+len(delta.Deleted) != 0 {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
