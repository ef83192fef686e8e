package engine

import (
	"fmt"
	"sort"

	"invaudit/internal/fanout"
	"invaudit/internal/model"
)

// ZoneState is the direct reply to a zone assignment.
type ZoneState struct {
	ZoneID    string `json:"zoneId"`
	ZoneName  string `json:"zoneName"`
	ZoneTotal int64  `json:"zoneTotal"`
}

// AssignZone resolves a zone assignment request.
//
// Unknown zone ids create the zone with the requester as creator and current
// owner. For existing zones only a scanner whose normalized name matches the
// creator's may acquire the owner slot; anyone else gets ErrForbiddenZone
// regardless of the current owner. A successful acquisition releases the
// requester's previous zone, so a scanner owns at most one zone at a time.
func (e *Engine) AssignZone(scannerID, zoneID, zoneName string) (ZoneState, error) {
	bound := e.boundScanners()
	e.mu.Lock()
	sc, ok := e.scanners[scannerID]
	if !ok {
		e.mu.Unlock()
		return ZoneState{}, ErrNotRegistered
	}

	zone, exists := e.zones[zoneID]
	if !exists {
		name := zoneName
		if name == "" {
			name = fmt.Sprintf("Zone %s", zoneID)
		}
		zone = &model.Zone{
			ID:               zoneID,
			Name:             name,
			ScannerID:        scannerID,
			CreatedByID:      scannerID,
			CreatedByName:    sc.Name,
			CreatedByNameKey: sc.NormalizedName,
			CreatedAt:        Now(),
		}
		e.zones[zoneID] = zone
	} else {
		if zone.CreatedByNameKey != sc.NormalizedName {
			e.mu.Unlock()
			return ZoneState{}, ErrForbiddenZone
		}
		zone.ScannerID = scannerID
		if zoneName != "" {
			zone.Name = zoneName
		}
	}

	// Release the previous zone only once the acquisition is certain.
	if sc.CurrentZoneID != "" && sc.CurrentZoneID != zoneID {
		if prev, ok := e.zones[sc.CurrentZoneID]; ok {
			prev.ScannerID = ""
		}
	}
	sc.CurrentZoneID = zoneID

	state := ZoneState{ZoneID: zone.ID, ZoneName: zone.Name, ZoneTotal: model.ZoneTotal(zone.Items)}
	e.updateGaugesLocked()
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventZoneListAll,
		Data: map[string]any{"zones": e.allZonesLocked()},
	})
	e.mu.Unlock()

	e.flush(out)
	return state, nil
}

// ListZonesFor returns only the zones created by the caller's normalized
// identity. This is the per-auditor visibility filter, not a global listing.
func (e *Engine) ListZonesFor(scannerID string) []model.ZoneSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zonesForLocked(scannerID)
}

// ListAllZones is the unfiltered listing for the dashboard role.
func (e *Engine) ListAllZones() []model.ZoneSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allZonesLocked()
}

// RenameZone changes a zone's display name and cascades it into the zone's
// items so exports stay coherent.
func (e *Engine) RenameZone(zoneID, newName string) error {
	bound := e.boundScanners()
	e.mu.Lock()
	zone, ok := e.zones[zoneID]
	if !ok {
		e.mu.Unlock()
		return ErrZoneNotFound
	}
	zone.Name = newName
	for _, it := range zone.Items {
		it.ZoneName = newName
	}
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventZoneRenamed,
		Data: map[string]string{"zoneId": zoneID, "name": newName},
	})
	e.mu.Unlock()

	e.flush(out)
	return nil
}

// DeleteZone removes a zone, its items from the global log, and clears any
// scanner currently pointing at it.
func (e *Engine) DeleteZone(zoneID string) error {
	bound := e.boundScanners()
	e.mu.Lock()
	if _, ok := e.zones[zoneID]; !ok {
		e.mu.Unlock()
		return ErrZoneNotFound
	}

	kept := e.items[:0]
	for _, it := range e.items {
		if it.ZoneID != zoneID {
			kept = append(kept, it)
		}
	}
	e.items = kept

	for _, sc := range e.scanners {
		if sc.CurrentZoneID == zoneID {
			sc.CurrentZoneID = ""
		}
	}
	delete(e.zones, zoneID)

	e.updateGaugesLocked()
	out := e.outboxLocked(bound, fanout.Event{
		Type: fanout.EventZoneDeleted,
		Data: map[string]string{"zoneId": zoneID},
	})
	e.mu.Unlock()

	e.flush(out)
	return nil
}

// --- locked helpers ---

func (e *Engine) zonesForLocked(scannerID string) []model.ZoneSummary {
	sc, ok := e.scanners[scannerID]
	if !ok {
		return []model.ZoneSummary{}
	}
	out := []model.ZoneSummary{}
	for _, z := range e.zoneOrderLocked() {
		if z.CreatedByNameKey != sc.NormalizedName {
			continue
		}
		out = append(out, model.ZoneSummary{
			ID:         z.ID,
			Name:       z.Name,
			TotalItems: model.ZoneTotal(z.Items),
			Products:   len(z.Items),
		})
	}
	return out
}

func (e *Engine) allZonesLocked() []model.ZoneSummary {
	out := []model.ZoneSummary{}
	for _, z := range e.zoneOrderLocked() {
		owner := ""
		if sc, ok := e.scanners[z.ScannerID]; ok {
			owner = sc.Name
		}
		out = append(out, model.ZoneSummary{
			ID:         z.ID,
			Name:       z.Name,
			TotalItems: model.ZoneTotal(z.Items),
			Products:   len(z.Items),
			Scanner:    owner,
			CreatedBy:  z.CreatedByName,
			Active:     z.ScannerID != "" && !z.Closed,
		})
	}
	return out
}

// zoneOrderLocked returns zones sorted by creation time so listings are
// stable across calls.
func (e *Engine) zoneOrderLocked() []*model.Zone {
	out := make([]*model.Zone, 0, len(e.zones))
	for _, z := range e.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
