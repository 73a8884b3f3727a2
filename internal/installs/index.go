// Package installs records the project toolchains hlsup has installed and
// when each was last resolved, so unused ones can be cleaned.
package installs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"hlsup/internal/tools"
)

// FileName is the index file kept in the storage root.
const FileName = "installs.json"

const indexVersion = 1

// Index maps toolchain directory names to their records.
type Index struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Entry describes one installed toolchain directory.
type Entry struct {
	Dir         string          `json:"dir"`
	Toolchain   tools.Toolchain `json:"toolchain"`
	InstalledAt time.Time       `json:"installed_at"`
	LastUsedAt  time.Time       `json:"last_used_at"`
	Workspaces  []string        `json:"workspaces,omitempty"`
}

// Path returns the index location for a storage root.
func Path(storageRoot string) string {
	return filepath.Join(storageRoot, FileName)
}

// Load reads the index, returning an empty one when the file is missing.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newIndex(), nil
		}
		return nil, fmt.Errorf("read install index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode install index: %w", err)
	}
	idx.normalize()
	return &idx, nil
}

// Save writes the index atomically.
func Save(path string, idx *Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure index dir: %w", err)
	}
	if idx == nil {
		idx = newIndex()
	}
	idx.normalize()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode install index: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Touch records a use of the toolchain in dir by workspace at now.
func (idx *Index) Touch(dir string, tc tools.Toolchain, workspace string, now time.Time) Entry {
	key := filepath.Base(dir)
	entry, ok := idx.Entries[key]
	if !ok {
		entry = Entry{Dir: key, InstalledAt: now}
	}
	entry.Toolchain = tc
	entry.LastUsedAt = now
	if workspace != "" && !contains(entry.Workspaces, workspace) {
		entry.Workspaces = append(entry.Workspaces, workspace)
		sort.Strings(entry.Workspaces)
	}
	idx.Entries[key] = entry
	return entry
}

// Get returns the record for a directory name.
func (idx *Index) Get(dir string) (Entry, bool) {
	entry, ok := idx.Entries[filepath.Base(dir)]
	return entry, ok
}

// Delete drops the record for a directory name.
func (idx *Index) Delete(dir string) {
	delete(idx.Entries, filepath.Base(dir))
}

// Prune drops records whose directory no longer exists under root and
// returns how many were removed.
func (idx *Index) Prune(root string) int {
	n := 0
	for key := range idx.Entries {
		if _, err := os.Stat(filepath.Join(root, key)); errors.Is(err, os.ErrNotExist) {
			delete(idx.Entries, key)
			n++
		}
	}
	return n
}

// Sorted returns the records ordered by directory name.
func (idx *Index) Sorted() []Entry {
	out := make([]Entry, 0, len(idx.Entries))
	for _, entry := range idx.Entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out
}

// Stale returns the records not used within maxAge of now.
func (idx *Index) Stale(maxAge time.Duration, now time.Time) []Entry {
	var out []Entry
	for _, entry := range idx.Sorted() {
		if now.Sub(entry.LastUsedAt) > maxAge {
			out = append(out, entry)
		}
	}
	return out
}

func (idx *Index) normalize() {
	if idx.Version == 0 {
		idx.Version = indexVersion
	}
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
}

func newIndex() *Index {
	return &Index{Version: indexVersion, Entries: map[string]Entry{}}
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
