// internal/preview/preview_test.go
package preview

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"devopus/internal/snapshot"
)

func TestMaterializerWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "preview")
	m := NewMaterializer(dir)

	files := snapshot.FileSnapshot{
		"/App.tsx":            "export default function App() {}",
		"/components/Nav.tsx": "export function Nav() {}",
		"/public/index.html":  "<!DOCTYPE html>",
	}
	if err := m.Write(files); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "components", "Nav.tsx"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "export function Nav() {}" {
		t.Errorf("content = %q", got)
	}
}

func TestMaterializerPrunesStale(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "preview")
	m := NewMaterializer(dir)

	if err := m.Write(snapshot.FileSnapshot{
		"/App.tsx": "v1",
		"/Old.tsx": "goes away",
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := m.Write(snapshot.FileSnapshot{
		"/App.tsx": "v2",
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Old.tsx")); !os.IsNotExist(err) {
		t.Error("Expected Old.tsx to be pruned")
	}
	got, _ := os.ReadFile(filepath.Join(dir, "App.tsx"))
	if string(got) != "v2" {
		t.Errorf("App.tsx = %q", got)
	}
}

func TestMaterializerRejectsTraversal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "preview")
	m := NewMaterializer(dir)

	if err := m.Write(snapshot.FileSnapshot{
		"/../escape.txt": "nope",
		"/App.tsx":       "ok",
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); !os.IsNotExist(err) {
		t.Error("Traversal path should not be written")
	}
}

func TestWatcherBatchesChanges(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "components"), 0755)

	var mu sync.Mutex
	var batches [][]string

	w, err := NewWatcher(dir, 100*time.Millisecond, func(paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)

	// Several writes inside one debounce window
	os.WriteFile(filepath.Join(dir, "App.tsx"), []byte("a"), 0644)
	os.WriteFile(filepath.Join(dir, "components", "Nav.tsx"), []byte("b"), 0644)

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(batches) == 0 {
		t.Fatal("Expected at least one batch, got none")
	}
	if len(batches) > 2 {
		t.Errorf("Expected debouncing to collapse batches, got %d", len(batches))
	}

	seen := make(map[string]bool)
	for _, batch := range batches {
		for _, p := range batch {
			seen[p] = true
		}
	}
	if !seen["App.tsx"] || !seen["components/Nav.tsx"] {
		t.Errorf("Missing paths in batches: %v", batches)
	}
}

func TestWatcherInvalidPath(t *testing.T) {
	_, err := NewWatcher("/nonexistent/path/that/does/not/exist", 100*time.Millisecond, func([]string) {})
	if err == nil {
		t.Fatal("NewWatcher() should return error for invalid path")
	}
}

func TestWatcherClose(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 100*time.Millisecond, func([]string) {})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Calling Close again should not panic or error
	if err := w.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}
}
