package engine

import (
	"fmt"

	"invaudit/internal/fanout"
	"invaudit/internal/model"
	"invaudit/internal/snapshot"
)

// LoadCatalog replaces the product catalog. Rows are already structured; the
// import collaborator owns file parsing.
func (e *Engine) LoadCatalog(entries []model.CatalogEntry) int {
	bound := e.boundScanners()
	e.mu.Lock()
	e.catalog = append([]model.CatalogEntry(nil), entries...)
	e.catalogIx = make(map[string]model.CatalogEntry, len(entries))
	for _, c := range e.catalog {
		e.catalogIx[c.ProductID] = c
	}
	count := len(e.catalog)
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventCatalogLoaded,
		Data: map[string]int{"count": count},
	})
	e.mu.Unlock()

	e.flush(out)
	return count
}

// LoadBaseline replaces the expected-stock baseline.
func (e *Engine) LoadBaseline(entries []model.BaselineEntry) int {
	bound := e.boundScanners()
	e.mu.Lock()
	e.baseline = append([]model.BaselineEntry(nil), entries...)
	count := len(e.baseline)
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventBaselineLoaded,
		Data: map[string]int{"count": count},
	})
	e.mu.Unlock()

	e.flush(out)
	return count
}

// StartSession begins a new audit: zones and the item log reset, while the
// catalog, the baseline, and the scanner registry carry over, so auditors
// stay connected across sessions. Scanner zone references and local tallies
// are cleared with the item log.
func (e *Engine) StartSession(label string) *model.Session {
	bound := e.boundScanners()
	e.mu.Lock()
	if label == "" {
		label = fmt.Sprintf("Audit %s", Now().Format("2006-01-02"))
	}
	e.session = &model.Session{
		ID:        NewID(),
		Label:     label,
		StartedAt: Now(),
	}
	e.zones = make(map[string]*model.Zone)
	e.items = nil
	for _, sc := range e.scanners {
		sc.CurrentZoneID = ""
		sc.Items = nil
	}
	e.updateGaugesLocked()
	cp := e.copySessionLocked()
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventSessionStarted,
		Data: cp,
	})
	e.mu.Unlock()

	e.flush(out)
	return cp
}

// FinalizeSession stamps the end time without clearing any state.
func (e *Engine) FinalizeSession() *model.Session {
	bound := e.boundScanners()
	e.mu.Lock()
	if e.session != nil && e.session.EndedAt == nil {
		t := Now()
		e.session.EndedAt = &t
	}
	cp := e.copySessionLocked()
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventSessionFinalized,
		Data: cp,
	})
	e.mu.Unlock()

	e.flush(out)
	return cp
}

// Reset clears everything: session, catalog, baseline, scanners, zones, and
// the item log. The journal sequence is kept monotone so a stale journal can
// never replay over a fresh state.
func (e *Engine) Reset() {
	bound := e.boundScanners()
	e.mu.Lock()
	e.session = nil
	e.catalog = nil
	e.catalogIx = make(map[string]model.CatalogEntry)
	e.baseline = nil
	e.scanners = make(map[string]*model.Scanner)
	e.zones = make(map[string]*model.Zone)
	e.items = nil
	e.updateGaugesLocked()
	out := e.outboxLocked(bound, fanout.Event{Type: fanout.EventCleared})
	e.mu.Unlock()

	e.flush(out)
}

// Snapshot copies the whole aggregate for persistence. The lock is held only
// for the copy; writing happens in the saver.
func (e *Engine) Snapshot() snapshot.SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	scanners := make(map[string]*model.Scanner, len(e.scanners))
	for id, sc := range e.scanners {
		scanners[id] = e.copyScannerLocked(sc)
	}
	zones := make(map[string]*model.Zone, len(e.zones))
	for id, z := range e.zones {
		cp := *z
		cp.Items = nil // rebuilt from the global log on restore
		zones[id] = &cp
	}
	items := make([]*model.ScanItem, len(e.items))
	for i, it := range e.items {
		cp := *it
		items[i] = &cp
	}

	return snapshot.SessionSnapshot{
		Session:    e.copySessionLocked(),
		Catalog:    append([]model.CatalogEntry(nil), e.catalog...),
		Baseline:   append([]model.BaselineEntry(nil), e.baseline...),
		Scanners:   scanners,
		Zones:      zones,
		Items:      items,
		JournalSeq: e.journalSeq,
		SavedAt:    Now(),
	}
}

// Restore replaces the aggregate with a loaded snapshot. Zone item lists are
// relinked from the global log so zone and global views share records again,
// and every scanner comes back disconnected: a restored scanner is never
// assumed live until it re-registers.
func (e *Engine) Restore(s snapshot.SessionSnapshot) {
	e.mu.Lock()
	e.session = s.Session
	e.catalog = s.Catalog
	e.catalogIx = make(map[string]model.CatalogEntry, len(s.Catalog))
	for _, c := range s.Catalog {
		e.catalogIx[c.ProductID] = c
	}
	e.baseline = s.Baseline
	e.journalSeq = s.JournalSeq

	e.scanners = make(map[string]*model.Scanner, len(s.Scanners))
	for id, sc := range s.Scanners {
		sc.Connected = false
		e.scanners[id] = sc
	}

	e.zones = make(map[string]*model.Zone, len(s.Zones))
	for id, z := range s.Zones {
		z.Items = nil
		e.zones[id] = z
	}
	e.items = s.Items
	// The global log is most-recent-first; appending in order preserves the
	// same ordering per zone.
	for _, it := range e.items {
		if z, ok := e.zones[it.ZoneID]; ok {
			z.Items = append(z.Items, it)
		}
	}
	e.updateGaugesLocked()
	e.mu.Unlock()
}
