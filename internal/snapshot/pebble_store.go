package snapshot

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

const latestKey = "session/latest"

// PebbleStore keeps the snapshot in an embedded PebbleDB. The latest snapshot
// lives under a fixed key; every save also writes a timestamped history key so
// finalized sessions stay recoverable.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 4,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) Save(s SessionSnapshot) error {
	b, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	wb := p.db.NewBatch()
	defer wb.Close()
	if err := wb.Set([]byte(latestKey), b, nil); err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	if s.Session != nil {
		hist := fmt.Sprintf("session/history/%s", s.Session.ID)
		if err := wb.Set([]byte(hist), b, nil); err != nil {
			return fmt.Errorf("set history: %w", err)
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PebbleStore) Load() (SessionSnapshot, bool, error) {
	v, closer, err := p.db.Get([]byte(latestKey))
	if err == pebble.ErrNotFound {
		return SessionSnapshot{}, false, nil
	}
	if err != nil {
		return SessionSnapshot{}, false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	var s SessionSnapshot
	if err := json.Unmarshal(v, &s); err != nil {
		return SessionSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return s, true, nil
}
