// internal/preview/materializer.go
package preview

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"devopus/internal/snapshot"
)

// Materializer mirrors a canonical snapshot onto disk so a local dev server
// can serve the generated app.
type Materializer struct {
	dir string
	mu  sync.Mutex
}

// NewMaterializer creates a materializer rooted at dir
func NewMaterializer(dir string) *Materializer {
	return &Materializer{dir: dir}
}

// Dir returns the preview root
func (m *Materializer) Dir() string {
	return m.dir
}

// Write replaces the preview tree with the given snapshot. Files no longer
// present in the snapshot are removed.
func (m *Materializer) Write(files snapshot.FileSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("create preview dir: %w", err)
	}

	keep := make(map[string]bool, len(files))
	for path, content := range files {
		rel := strings.TrimPrefix(path, "/")
		if rel == "" || strings.Contains(rel, "..") {
			continue
		}
		abs := filepath.Join(m.dir, filepath.FromSlash(rel))
		keep[abs] = true

		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return fmt.Errorf("create dir for %s: %w", path, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	return m.prune(keep)
}

// prune removes files that are not part of the current snapshot
func (m *Materializer) prune(keep map[string]bool) error {
	var stale []string
	err := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !keep[path] {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan preview dir: %w", err)
	}

	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale %s: %w", path, err)
		}
	}
	return nil
}

// Clear removes the preview tree entirely.
func (m *Materializer) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return os.RemoveAll(m.dir)
}
