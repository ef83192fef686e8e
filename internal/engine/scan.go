package engine

import (
	"invaudit/internal/fanout"
	"invaudit/internal/journal"
	"invaudit/internal/model"
)

// ScanResult is the direct reply to the scanning device.
type ScanResult struct {
	Item         model.ScanItem `json:"item"`
	ZoneTotal    int64          `json:"zoneTotal"`
	ScannerTotal int64          `json:"scannerTotal"`
}

// RecordScan aggregates one barcode read into the scanner's current zone.
//
// The item is keyed by (zone, product): a repeat scan increments the existing
// quantity, it never creates a second row. Catalog resolution happens once at
// item creation and the existsInCatalog flag stays sticky afterwards. The
// same record is linked into the zone list and the global log; the scanner's
// local tally is updated in the same operation, so all three views agree.
func (e *Engine) RecordScan(scannerID, productID string) (ScanResult, error) {
	bound := e.boundScanners()
	e.mu.Lock()
	sc, ok := e.scanners[scannerID]
	if !ok {
		e.mu.Unlock()
		return ScanResult{}, ErrNotRegistered
	}
	zone, ok := e.zones[sc.CurrentZoneID]
	if sc.CurrentZoneID == "" || !ok {
		e.mu.Unlock()
		return ScanResult{}, ErrNoZoneSelected
	}

	now := Now()
	item := findItem(zone.Items, productID)
	created := item == nil
	if created {
		entry, inCatalog := e.catalogIx[productID]
		desc := entry.Description
		if !inCatalog {
			desc = model.DefaultDescription
		}
		item = &model.ScanItem{
			ID:              NewID(),
			ProductID:       productID,
			Code:            entry.Code,
			Description:     desc,
			Quantity:        1,
			ExistsInCatalog: inCatalog,
			ZoneID:          zone.ID,
			ZoneName:        zone.Name,
			ScannerName:     sc.Name,
			FirstScan:       now,
			LastScan:        now,
		}
		zone.Items = prepend(zone.Items, item)
		e.items = prepend(e.items, item)
	} else {
		item.Quantity++
		item.LastScan = now
	}

	// Per-scanner tally: keyed by product only, summed across zones.
	if local := findItem(sc.Items, productID); local != nil {
		local.Quantity++
		local.LastScan = now
	} else {
		cp := *item
		cp.Quantity = 1
		sc.Items = prepend(sc.Items, &cp)
	}

	e.journalSeq++
	entry := journal.Entry{
		Seq:         e.journalSeq,
		ScannerID:   sc.ID,
		ScannerName: sc.Name,
		ZoneID:      zone.ID,
		ZoneName:    zone.Name,
		ProductID:   productID,
		Quantity:    item.Quantity,
		TS:          now.Unix(),
	}

	result := ScanResult{
		Item:         *item,
		ZoneTotal:    model.ZoneTotal(zone.Items),
		ScannerTotal: model.ZoneTotal(sc.Items),
	}
	if e.metrics != nil {
		e.metrics.ScansTotal.Inc()
		if !item.ExistsInCatalog {
			e.metrics.ScansUnknown.Inc()
		}
	}
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventNewScan,
		Data: map[string]any{
			"item":    result.Item,
			"scanner": sc.Name,
			"zone":    zone.Name,
		},
	})
	e.mu.Unlock()

	e.appendJournal(entry)
	e.flush(out)
	return result, nil
}

// ApplyJournalEntry re-applies one journaled scan during recovery. Entries
// carry the running quantity, so applying is a set, not an increment, and
// replaying the same entry twice is a no-op. Scanner-local tallies are only
// rebuilt for scanners present in the restored snapshot; everyone else
// re-registers anyway.
func (e *Engine) ApplyJournalEntry(en journal.Entry) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if en.Seq <= e.journalSeq {
		return false, nil
	}
	e.journalSeq = en.Seq

	zone, ok := e.zones[en.ZoneID]
	if !ok {
		name := en.ZoneName
		if name == "" {
			name = "Zone " + en.ZoneID
		}
		zone = &model.Zone{
			ID:               en.ZoneID,
			Name:             name,
			CreatedByID:      en.ScannerID,
			CreatedByName:    en.ScannerName,
			CreatedByNameKey: model.NormalizeName(en.ScannerName),
			CreatedAt:        Now(),
		}
		e.zones[en.ZoneID] = zone
	}

	item := findItem(zone.Items, en.ProductID)
	created := item == nil
	if created {
		entry, inCatalog := e.catalogIx[en.ProductID]
		desc := entry.Description
		if !inCatalog {
			desc = model.DefaultDescription
		}
		ts := Now()
		item = &model.ScanItem{
			ID:              NewID(),
			ProductID:       en.ProductID,
			Code:            entry.Code,
			Description:     desc,
			Quantity:        en.Quantity,
			ExistsInCatalog: inCatalog,
			ZoneID:          zone.ID,
			ZoneName:        zone.Name,
			ScannerName:     en.ScannerName,
			FirstScan:       ts,
			LastScan:        ts,
		}
		zone.Items = prepend(zone.Items, item)
		e.items = prepend(e.items, item)
	} else if en.Quantity > item.Quantity {
		item.Quantity = en.Quantity
	}

	// A fresh entry is one scan; a created item is a catch-up carrying the
	// running total, and the local tally must absorb the same amount.
	if sc, ok := e.scanners[en.ScannerID]; ok {
		scans := int64(1)
		if created {
			scans = en.Quantity
		}
		if local := findItem(sc.Items, en.ProductID); local != nil {
			local.Quantity += scans
		} else {
			cp := *item
			cp.Quantity = scans
			sc.Items = prepend(sc.Items, &cp)
		}
	}
	return true, nil
}

// EditItem corrects an item's description, quantity, or zone. Zone and global
// views share the record, so one update covers both; the attributing
// scanner's local tally absorbs the quantity delta when the scanner still
// exists.
func (e *Engine) EditItem(id string, description *string, quantity *int64, newZoneID string) (model.ScanItem, error) {
	bound := e.boundScanners()
	e.mu.Lock()
	var item *model.ScanItem
	for _, it := range e.items {
		if it.ID == id {
			item = it
			break
		}
	}
	if item == nil {
		e.mu.Unlock()
		return model.ScanItem{}, ErrItemNotFound
	}

	if newZoneID != "" && newZoneID != item.ZoneID {
		if old, ok := e.zones[item.ZoneID]; ok {
			old.Items = removeItem(old.Items, id)
		}
		if next, ok := e.zones[newZoneID]; ok {
			next.Items = append(next.Items, item)
			item.ZoneName = next.Name
		} else {
			item.ZoneName = newZoneID
		}
		item.ZoneID = newZoneID
	}

	if description != nil {
		item.Description = *description
	}
	if quantity != nil {
		delta := *quantity - item.Quantity
		item.Quantity = *quantity
		e.adjustScannerTallyLocked(item.ScannerName, item.ProductID, delta)
	}

	cp := *item
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventItemUpdated,
		Data: map[string]any{"item": cp},
	})
	e.mu.Unlock()

	e.flush(out)
	return cp, nil
}

// DeleteItem removes an item from the global log, its zone, and the
// attributing scanner's tally.
func (e *Engine) DeleteItem(id string) error {
	bound := e.boundScanners()
	e.mu.Lock()
	var item *model.ScanItem
	for _, it := range e.items {
		if it.ID == id {
			item = it
			break
		}
	}
	if item == nil {
		e.mu.Unlock()
		return ErrItemNotFound
	}

	e.items = removeItem(e.items, id)
	if zone, ok := e.zones[item.ZoneID]; ok {
		zone.Items = removeItem(zone.Items, id)
	}
	e.adjustScannerTallyLocked(item.ScannerName, item.ProductID, -item.Quantity)

	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventItemDeleted,
		Data: map[string]string{"id": id},
	})
	e.mu.Unlock()

	e.flush(out)
	return nil
}

// --- helpers ---

// adjustScannerTallyLocked applies a quantity delta to the attributing
// auditor's local tally. Display names may be shared by several scanner
// records, and not every namesake holds the product, so the search continues
// until a scanner actually holding it absorbs the delta.
func (e *Engine) adjustScannerTallyLocked(scannerName, productID string, delta int64) {
	if delta == 0 {
		return
	}
	for _, sc := range e.scanners {
		if sc.Name != scannerName {
			continue
		}
		if local := findItem(sc.Items, productID); local != nil {
			local.Quantity += delta
			if local.Quantity < 0 {
				local.Quantity = 0
			}
			return
		}
	}
}

func findItem(items []*model.ScanItem, productID string) *model.ScanItem {
	for _, it := range items {
		if it.ProductID == productID {
			return it
		}
	}
	return nil
}

func prepend(items []*model.ScanItem, it *model.ScanItem) []*model.ScanItem {
	return append([]*model.ScanItem{it}, items...)
}

func removeItem(items []*model.ScanItem, id string) []*model.ScanItem {
	out := items[:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
