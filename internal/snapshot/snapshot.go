// Package snapshot persists the full session aggregate as one versioned JSON
// document. Saves are write-behind: triggered after every mutating operation
// and on a periodic tick, never blocking the operation that caused them.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"invaudit/internal/model"
)

// SessionSnapshot is the storage-agnostic serialized form of a session. Live
// connection handles are never part of it; scanner liveness is reset to false
// on restore. The global item log is the authoritative item list; zone item
// lists are rebuilt from it.
type SessionSnapshot struct {
	Session    *model.Session            `json:"session"`
	Catalog    []model.CatalogEntry      `json:"catalog"`
	Baseline   []model.BaselineEntry     `json:"baseline"`
	Scanners   map[string]*model.Scanner `json:"scanners"`
	Zones      map[string]*model.Zone    `json:"zones"`
	Items      []*model.ScanItem         `json:"items"`
	JournalSeq int64                     `json:"journalSeq"`
	SavedAt    time.Time                 `json:"savedAt"`
}

// Store abstracts the snapshot backend.
type Store interface {
	Save(s SessionSnapshot) error
	Load() (SessionSnapshot, bool, error)
}

// FilesystemStore keeps the snapshot as a single pretty-printed JSON file.
type FilesystemStore struct {
	path string
}

func NewFilesystemStore(dir string, filename string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FilesystemStore{path: filepath.Join(dir, filename)}, nil
}

func (f *FilesystemStore) Save(s SessionSnapshot) error {
	b, err := json.MarshalIndent(&s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (f *FilesystemStore) Load() (SessionSnapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return SessionSnapshot{}, false, nil
		}
		return SessionSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var s SessionSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return SessionSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return s, true, nil
}
