// Package engine is the single source of truth for a running audit: scanner
// and zone registries, scan aggregation, session lifecycle, and the
// read-side queries the dashboard and scanners pull from.
//
// All mutations are serialized through one mutex over the whole session
// aggregate. Broadcast fan-out and snapshot persistence never run under that
// lock: every operation computes the values to publish while locked, then
// hands them off after unlocking.
package engine

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"invaudit/internal/fanout"
	"invaudit/internal/journal"
	"invaudit/internal/metrics"
	"invaudit/internal/model"
	"invaudit/internal/reconcile"
)

// Validation errors returned synchronously to the originating caller. None of
// them corrupts shared state or stops the process.
var (
	ErrNotRegistered   = errors.New("scanner not registered")
	ErrNoZoneSelected  = errors.New("no zone selected")
	ErrForbiddenZone   = errors.New("zone belongs to another auditor")
	ErrZoneNotFound    = errors.New("zone not found")
	ErrScannerNotFound = errors.New("scanner not found")
	ErrItemNotFound    = errors.New("item not found")
)

// Now and NewID are split out for testability.
var (
	Now   = func() time.Time { return time.Now().UTC() }
	NewID = func() string { return uuid.NewString() }
)

// Notifier is the outbound port to the broadcast hub. The engine never holds
// its state lock while calling it.
type Notifier interface {
	Broadcast(ev fanout.Event)
	SendTo(scannerID string, ev fanout.Event)
	Bound() []string
}

// Config wires the engine's collaborators. Every field may be nil/zero; the
// engine then runs purely in memory, which is what most tests use.
type Config struct {
	Notifier Notifier
	Journal  journal.Writer
	Persist  func() // write-behind snapshot trigger
	Metrics  *metrics.Registry
}

// Engine owns the whole session aggregate.
type Engine struct {
	mu sync.Mutex

	session    *model.Session
	catalog    []model.CatalogEntry
	catalogIx  map[string]model.CatalogEntry
	baseline   []model.BaselineEntry
	scanners   map[string]*model.Scanner
	zones      map[string]*model.Zone
	items      []*model.ScanItem // global log, most-recent-first
	journalSeq int64

	notify  Notifier
	journal journal.Writer
	persist func()
	metrics *metrics.Registry
}

func New(cfg Config) *Engine {
	return &Engine{
		catalogIx: make(map[string]model.CatalogEntry),
		scanners:  make(map[string]*model.Scanner),
		zones:     make(map[string]*model.Zone),
		notify:    cfg.Notifier,
		journal:   cfg.Journal,
		persist:   cfg.Persist,
		metrics:   cfg.Metrics,
	}
}

// StateSummary is the dashboard pull-state payload: registry views, global
// totals, the reconciliation report, and the most recent items.
type StateSummary struct {
	Session        *model.Session         `json:"session"`
	TotalItems     int64                  `json:"totalItems"`
	UniqueProducts int                    `json:"uniqueProducts"`
	NotInCatalog   int                    `json:"notInCatalog"`
	TotalZones     int                    `json:"totalZones"`
	ActiveZones    int                    `json:"activeZones"`
	Zones          []model.ZoneSummary    `json:"zones"`
	Scanners       []model.ScannerSummary `json:"scanners"`
	CatalogSize    int                    `json:"catalogSize"`
	BaselineSize   int                    `json:"baselineSize"`
	Reconciliation reconcile.Report       `json:"reconciliation"`
	RecentItems    []model.ScanItem       `json:"recentItems"`
}

const recentItemLimit = 20

// RegisterScanner creates a new scanner record. Duplicate names are allowed:
// identity is the generated id, but zone ownership is keyed by normalized
// name, so a reconnecting auditor keeps access to their zones.
func (e *Engine) RegisterScanner(rawName string) *model.Scanner {
	bound := e.boundScanners()
	e.mu.Lock()
	sc := &model.Scanner{
		ID:             NewID(),
		Name:           model.DisplayName(rawName),
		NormalizedName: model.NormalizeName(rawName),
		Connected:      true,
	}
	e.scanners[sc.ID] = sc
	e.updateGaugesLocked()
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventScannerConnected,
		Data: map[string]string{"id": sc.ID, "name": sc.Name},
	})
	cp := e.copyScannerLocked(sc)
	e.mu.Unlock()

	e.flush(out)
	return cp
}

// MarkDisconnected flips the liveness flag. The scanner record and its item
// attribution are kept; only the transport connection is gone.
func (e *Engine) MarkDisconnected(scannerID string) {
	bound := e.boundScanners()
	e.mu.Lock()
	sc, ok := e.scanners[scannerID]
	if !ok {
		e.mu.Unlock()
		return
	}
	sc.Connected = false
	e.updateGaugesLocked()
	out := e.outboxLocked(bound)
	e.mu.Unlock()

	e.flush(out)
}

// Summary returns the full dashboard state.
func (e *Engine) Summary() StateSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked()
}

// Reconciliation computes the shortage/overage report for the current state.
func (e *Engine) Reconciliation() reconcile.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcileLocked()
}

// GlobalItemLog returns a copy of every scanned item, most recent first.
func (e *Engine) GlobalItemLog() []model.ScanItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ScanItem, len(e.items))
	for i, it := range e.items {
		out[i] = *it
	}
	return out
}

// --- locked helpers ---

func (e *Engine) reconcileLocked() reconcile.Report {
	start := time.Now()
	rep := reconcile.Reconcile(e.baseline, e.catalog, e.items)
	if e.metrics != nil {
		e.metrics.ReconcileSeconds.Observe(time.Since(start).Seconds())
	}
	return rep
}

func (e *Engine) summaryLocked() StateSummary {
	zones := e.allZonesLocked()
	scanners := make([]model.ScannerSummary, 0, len(e.scanners))
	for _, sc := range e.scanners {
		zoneName := ""
		if z, ok := e.zones[sc.CurrentZoneID]; ok {
			zoneName = z.Name
		}
		scanners = append(scanners, model.ScannerSummary{
			ID:         sc.ID,
			Name:       sc.Name,
			ZoneID:     sc.CurrentZoneID,
			ZoneName:   zoneName,
			TotalItems: model.ZoneTotal(sc.Items),
			Connected:  sc.Connected,
		})
	}

	var totalItems int64
	unique := make(map[string]struct{})
	notInCatalog := 0
	for _, it := range e.items {
		totalItems += it.Quantity
		unique[it.ProductID] = struct{}{}
		if !it.ExistsInCatalog {
			notInCatalog++
		}
	}

	active := 0
	for _, z := range zones {
		if z.Active {
			active++
		}
	}

	limit := recentItemLimit
	if len(e.items) < limit {
		limit = len(e.items)
	}
	recent := make([]model.ScanItem, limit)
	for i := 0; i < limit; i++ {
		recent[i] = *e.items[i]
	}

	return StateSummary{
		Session:        e.copySessionLocked(),
		TotalItems:     totalItems,
		UniqueProducts: len(unique),
		NotInCatalog:   notInCatalog,
		TotalZones:     len(zones),
		ActiveZones:    active,
		Zones:          zones,
		Scanners:       scanners,
		CatalogSize:    len(e.catalog),
		BaselineSize:   len(e.baseline),
		Reconciliation: e.reconcileLocked(),
		RecentItems:    recent,
	}
}

func (e *Engine) copySessionLocked() *model.Session {
	if e.session == nil {
		return nil
	}
	cp := *e.session
	return &cp
}

func (e *Engine) copyScannerLocked(sc *model.Scanner) *model.Scanner {
	cp := *sc
	cp.Items = make([]*model.ScanItem, len(sc.Items))
	for i, it := range sc.Items {
		v := *it
		cp.Items[i] = &v
	}
	return &cp
}

func (e *Engine) updateGaugesLocked() {
	if e.metrics == nil {
		return
	}
	connected := 0
	for _, sc := range e.scanners {
		if sc.Connected {
			connected++
		}
	}
	active := 0
	for _, z := range e.zones {
		if z.ScannerID != "" && !z.Closed {
			active++
		}
	}
	e.metrics.ConnectedScanners.Set(float64(connected))
	e.metrics.ActiveZones.Set(float64(active))
}

// --- off-lock notification plumbing ---

// outbox carries everything an operation wants published, computed while the
// state lock was held.
type outbox struct {
	events    []fanout.Event
	zoneLists map[string][]model.ZoneSummary
}

func (e *Engine) boundScanners() []string {
	if e.notify == nil {
		return nil
	}
	return e.notify.Bound()
}

// outboxLocked bundles the given events with a state update broadcast and the
// per-scanner zone lists for every bound scanner.
func (e *Engine) outboxLocked(bound []string, events ...fanout.Event) outbox {
	out := outbox{events: events}
	out.events = append(out.events, fanout.Event{Type: fanout.EventUpdate, Data: e.summaryLocked()})
	if len(bound) > 0 {
		out.zoneLists = make(map[string][]model.ZoneSummary, len(bound))
		for _, id := range bound {
			out.zoneLists[id] = e.zonesForLocked(id)
		}
	}
	return out
}

func (e *Engine) flush(out outbox) {
	if e.notify != nil {
		for _, ev := range out.events {
			e.notify.Broadcast(ev)
		}
		for id, zones := range out.zoneLists {
			e.notify.SendTo(id, fanout.Event{
				Type: fanout.EventZoneList,
				Data: map[string]any{"zones": zones},
			})
		}
	}
	if e.persist != nil {
		e.persist()
	}
}

func (e *Engine) appendJournal(entry journal.Entry) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(entry); err != nil {
		// Best-effort: the snapshot is the primary recovery path.
		log.Printf("journal append failed (seq=%d): %v", entry.Seq, err)
		if e.metrics != nil {
			e.metrics.JournalFailures.Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.JournalAppended.Inc()
	}
}
