package engine

import (
	"errors"
	"reflect"
	"testing"

	"invaudit/internal/journal"
	"invaudit/internal/model"
)

func seedEngine(t *testing.T) (*Engine, *model.Scanner) {
	t.Helper()
	e := New(Config{})
	e.LoadCatalog([]model.CatalogEntry{
		{ProductID: "p1", Code: "c1", Description: "Cola", Cost: 10},
		{ProductID: "p2", Code: "c2", Description: "Pan", Cost: 2},
	})
	e.LoadBaseline([]model.BaselineEntry{
		{ProductID: "p1", Quantity: 5},
		{ProductID: "p2", Quantity: 3},
	})
	e.StartSession("night count")
	ana := e.RegisterScanner("Ana")
	if _, err := e.AssignZone(ana.ID, "Z1", "Aisle 1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.RecordScan(ana.ID, "p1"); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	if _, err := e.RecordScan(ana.ID, "p2"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return e, ana
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	fixedClock(t)
	e, _ := seedEngine(t)

	snap := e.Snapshot()
	if snap.JournalSeq != 4 {
		t.Fatalf("journal seq = %d, want 4", snap.JournalSeq)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("snapshot items: %d", len(snap.Items))
	}
	for _, z := range snap.Zones {
		if z.Items != nil {
			t.Fatalf("snapshot zones must not carry item lists")
		}
	}

	restored := New(Config{})
	restored.Restore(snap)

	// The reconciliation report survives the round trip exactly.
	if !reflect.DeepEqual(e.Reconciliation(), restored.Reconciliation()) {
		t.Fatalf("reconciliation differs after restore")
	}
	if !reflect.DeepEqual(e.GlobalItemLog(), restored.GlobalItemLog()) {
		t.Fatalf("item log differs after restore")
	}

	// Zone views are relinked from the global log.
	zones := restored.ListAllZones()
	if len(zones) != 1 || zones[0].TotalItems != 4 || zones[0].Products != 2 {
		t.Fatalf("restored zones: %+v", zones)
	}

	// Liveness never survives a restore.
	for _, sc := range restored.Summary().Scanners {
		if sc.Connected {
			t.Fatalf("restored scanner marked connected: %+v", sc)
		}
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	fixedClock(t)
	e, ana := seedEngine(t)

	snap := e.Snapshot()
	before := snap.Items[0].Quantity

	if _, err := e.RecordScan(ana.ID, snap.Items[0].ProductID); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if snap.Items[0].Quantity != before {
		t.Fatalf("snapshot shares state with the live engine")
	}
}

func TestApplyJournalEntry_Idempotent(t *testing.T) {
	fixedClock(t)
	e := New(Config{})

	entry := journal.Entry{
		Seq:         1,
		ScannerID:   "s1",
		ScannerName: "Ana",
		ZoneID:      "Z1",
		ZoneName:    "Aisle 1",
		ProductID:   "p1",
		Quantity:    2,
	}
	applied, err := e.ApplyJournalEntry(entry)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, err = e.ApplyJournalEntry(entry)
	if err != nil || applied {
		t.Fatalf("replaying the same seq must not apply: applied=%v err=%v", applied, err)
	}

	log := e.GlobalItemLog()
	if len(log) != 1 || log[0].Quantity != 2 {
		t.Fatalf("item log after replay: %+v", log)
	}
}

func TestApplyJournalEntry_RunningQuantityIsASet(t *testing.T) {
	fixedClock(t)
	e := New(Config{})

	for seq := int64(1); seq <= 3; seq++ {
		entry := journal.Entry{Seq: seq, ZoneID: "Z1", ProductID: "p1", Quantity: seq}
		if _, err := e.ApplyJournalEntry(entry); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	log := e.GlobalItemLog()
	if len(log) != 1 || log[0].Quantity != 3 {
		t.Fatalf("quantity after replay: %+v", log)
	}
}

func TestApplyJournalEntry_CatchUpSeedsScannerTally(t *testing.T) {
	fixedClock(t)
	e := New(Config{})
	ana := e.RegisterScanner("Ana")

	// The item is absent, so the entry's running quantity is a catch-up and
	// the scanner tally must absorb all of it, not a single scan.
	entry := journal.Entry{
		Seq:         3,
		ScannerID:   ana.ID,
		ScannerName: "Ana",
		ZoneID:      "Z1",
		ZoneName:    "Aisle 1",
		ProductID:   "p1",
		Quantity:    3,
	}
	if applied, err := e.ApplyJournalEntry(entry); err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}

	sum := e.Summary()
	if sum.TotalItems != 3 {
		t.Fatalf("zone total = %d, want 3", sum.TotalItems)
	}
	if sum.Scanners[0].TotalItems != 3 {
		t.Fatalf("scanner tally = %d, want 3", sum.Scanners[0].TotalItems)
	}

	// The next entry is one ordinary scan on the existing item.
	entry.Seq = 4
	entry.Quantity = 4
	if applied, err := e.ApplyJournalEntry(entry); err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}
	if got := e.Summary().Scanners[0].TotalItems; got != 4 {
		t.Fatalf("scanner tally after increment = %d, want 4", got)
	}
}

func TestRecoverySequence_SnapshotThenJournal(t *testing.T) {
	fixedClock(t)
	e, ana := seedEngine(t)

	snap := e.Snapshot()

	// Two more scans after the snapshot was cut.
	if _, err := e.RecordScan(ana.ID, "p1"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := e.RecordScan(ana.ID, "p3"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	tail := []journal.Entry{
		{Seq: 5, ScannerID: ana.ID, ScannerName: "Ana", ZoneID: "Z1", ZoneName: "Aisle 1", ProductID: "p1", Quantity: 4},
		{Seq: 6, ScannerID: ana.ID, ScannerName: "Ana", ZoneID: "Z1", ZoneName: "Aisle 1", ProductID: "p3", Quantity: 1},
	}

	restored := New(Config{})
	restored.Restore(snap)
	for _, en := range tail {
		if applied, err := restored.ApplyJournalEntry(en); err != nil || !applied {
			t.Fatalf("apply seq %d: applied=%v err=%v", en.Seq, applied, err)
		}
	}

	want := e.Reconciliation()
	got := restored.Reconciliation()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("reconciliation after recovery:\nwant %+v\ngot  %+v", want, got)
	}
	if restored.Snapshot().JournalSeq != 6 {
		t.Fatalf("journal seq = %d, want 6", restored.Snapshot().JournalSeq)
	}
}

func TestReset_KeepsJournalSeqMonotone(t *testing.T) {
	fixedClock(t)
	e, _ := seedEngine(t)
	if e.Snapshot().JournalSeq != 4 {
		t.Fatalf("pre-reset seq: %d", e.Snapshot().JournalSeq)
	}

	e.Reset()
	sum := e.Summary()
	if sum.TotalItems != 0 || sum.CatalogSize != 0 || sum.BaselineSize != 0 || len(sum.Scanners) != 0 {
		t.Fatalf("reset left state behind: %+v", sum)
	}

	ana := e.RegisterScanner("Ana")
	if _, err := e.AssignZone(ana.ID, "Z1", ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := e.RecordScan(ana.ID, "p1"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := e.Snapshot().JournalSeq; got != 5 {
		t.Fatalf("post-reset seq = %d, want 5", got)
	}

	// A stale journal entry from before the reset can never re-apply.
	stale := journal.Entry{Seq: 3, ZoneID: "Z1", ProductID: "p9", Quantity: 1}
	if applied, err := e.ApplyJournalEntry(stale); err != nil || applied {
		t.Fatalf("stale entry applied=%v err=%v", applied, err)
	}
}

func TestMarkDisconnected(t *testing.T) {
	fixedClock(t)
	e := New(Config{})
	ana := e.RegisterScanner("Ana")

	e.MarkDisconnected(ana.ID)
	sum := e.Summary()
	if sum.Scanners[0].Connected {
		t.Fatalf("scanner still connected: %+v", sum.Scanners[0])
	}
	// Unknown ids are ignored.
	e.MarkDisconnected("nope")

	if _, err := e.AssignZone("nope", "Z1", ""); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}
