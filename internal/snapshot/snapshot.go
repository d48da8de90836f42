// internal/snapshot/snapshot.go
package snapshot

import (
	"encoding/json"
	"sort"
)

// FileSnapshot maps a file path to its full source content. The generation
// backend delivers content either as a raw string or wrapped in a one-field
// object ({"code": "..."}); both forms are folded into plain strings at
// decode time so downstream code never has to branch on the shape.
type FileSnapshot map[string]string

// fileContent accepts the two wire forms of a file entry.
type fileContent struct {
	value string
}

func (f *fileContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.value = s
		return nil
	}

	var wrapped struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	f.value = wrapped.Code
	return nil
}

// UnmarshalJSON decodes a snapshot tolerating the wrapped content form.
func (s *FileSnapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]fileContent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(FileSnapshot, len(raw))
	for path, content := range raw {
		out[path] = content.value
	}
	*s = out
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s FileSnapshot) Clone() FileSnapshot {
	if s == nil {
		return nil
	}
	out := make(FileSnapshot, len(s))
	for path, content := range s {
		out[path] = content
	}
	return out
}

// SortedPaths returns the snapshot's paths in lexical order. Snapshot maps
// carry no ordering, so every scan that must be deterministic goes through
// this.
func (s FileSnapshot) SortedPaths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Wrapped returns the snapshot in the persistence format used by the backend
// store: {"path": {"code": "..."}}.
func (s FileSnapshot) Wrapped() map[string]map[string]string {
	out := make(map[string]map[string]string, len(s))
	for path, content := range s {
		out[path] = map[string]string{"code": content}
	}
	return out
}
