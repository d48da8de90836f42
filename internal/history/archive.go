// internal/history/archive.go
package history

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"devopus/internal/snapshot"
)

// Entry describes one archived snapshot of a project.
type Entry struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	Label     string            `json:"label,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Files     map[string]string `json:"files"` // path -> content hash
}

// SaveResult reports what an archive write actually stored.
type SaveResult struct {
	Entry          *Entry   `json:"entry"`
	FilesProcessed int      `json:"files_processed"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Archive keeps a local, compressed copy of every snapshot the backend
// confirms. Content is stored once per hash so successive versions that
// share files cost almost nothing.
type Archive struct {
	baseDir          string
	compressionLevel int
	mu               sync.RWMutex
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder
}

// NewArchive creates a snapshot archive rooted at baseDir
func NewArchive(baseDir string, compressionLevel int) *Archive {
	encoder, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	decoder, _ := zstd.NewReader(nil)

	return &Archive{
		baseDir:          baseDir,
		compressionLevel: compressionLevel,
		encoder:          encoder,
		decoder:          decoder,
	}
}

// projectDir returns the archive root for a project
func (a *Archive) projectDir(projectID string) string {
	return filepath.Join(a.baseDir, "archive", projectID)
}

// Save archives a snapshot and returns the stored entry.
func (a *Archive) Save(projectID, label string, files snapshot.FileSnapshot) (*SaveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := &Entry{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Label:     label,
		Timestamp: time.Now(),
		Files:     make(map[string]string, len(files)),
	}

	baseDir := a.projectDir(projectID)
	entryDir := filepath.Join(baseDir, "entries", entry.ID)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return nil, fmt.Errorf("create entry dir: %w", err)
	}

	result := &SaveResult{Entry: entry}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for path, content := range files {
		hash := contentHash(content)
		entry.Files[path] = hash

		wg.Add(1)
		go func(hash, content string) {
			defer wg.Done()
			if err := a.writeContent(baseDir, hash, content); err != nil {
				mu.Lock()
				result.Warnings = append(result.Warnings, fmt.Sprintf("failed to store %s: %v", hash[:12], err))
				mu.Unlock()
			} else {
				mu.Lock()
				result.FilesProcessed++
				mu.Unlock()
			}
		}(hash, content)
	}

	wg.Wait()

	manifestPath := filepath.Join(entryDir, "manifest.json")
	manifestJSON, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, manifestJSON, 0644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return result, nil
}

// writeContent stores a file body in the content pool, keyed by hash
func (a *Archive) writeContent(baseDir, hash, content string) error {
	poolDir := filepath.Join(baseDir, "content_pool")
	if err := os.MkdirAll(poolDir, 0755); err != nil {
		return err
	}

	contentFile := filepath.Join(poolDir, hash)
	if _, err := os.Stat(contentFile); os.IsNotExist(err) {
		compressed := a.encoder.EncodeAll([]byte(content), nil)
		if err := os.WriteFile(contentFile, compressed, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Load restores an archived snapshot's files.
func (a *Archive) Load(projectID, entryID string) (*Entry, snapshot.FileSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	baseDir := a.projectDir(projectID)
	manifestPath := filepath.Join(baseDir, "entries", entryID, "manifest.json")
	manifestJSON, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(manifestJSON, &entry); err != nil {
		return nil, nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	files := make(snapshot.FileSnapshot, len(entry.Files))
	for path, hash := range entry.Files {
		compressed, err := os.ReadFile(filepath.Join(baseDir, "content_pool", hash))
		if err != nil {
			return nil, nil, fmt.Errorf("read content %s: %w", hash[:12], err)
		}
		content, err := a.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("decompress content %s: %w", hash[:12], err)
		}
		files[path] = string(content)
	}

	return &entry, files, nil
}

// List returns a project's archive entries, newest first.
func (a *Archive) List(projectID string) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entriesDir := filepath.Join(a.projectDir(projectID), "entries")
	dirEntries, err := os.ReadDir(entriesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}

		manifestJSON, err := os.ReadFile(filepath.Join(entriesDir, de.Name(), "manifest.json"))
		if err != nil {
			continue
		}

		var entry Entry
		if json.Unmarshal(manifestJSON, &entry) == nil {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	return entries, nil
}

// Delete removes an archive entry. Pooled content stays; other entries may
// still reference it.
func (a *Archive) Delete(projectID, entryID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return os.RemoveAll(filepath.Join(a.projectDir(projectID), "entries", entryID))
}

// PersistSnapshot archives a confirmed snapshot in the background. Failures
// are logged and swallowed; the backend copy is the source of truth.
func (a *Archive) PersistSnapshot(projectID string, files snapshot.FileSnapshot) {
	if projectID == "" || len(files) == 0 {
		return
	}
	if _, err := a.Save(projectID, "", files); err != nil {
		log.Printf("[History] failed to archive snapshot for %s: %v", projectID, err)
	}
}

// contentHash calculates the SHA256 hash of content
func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}
