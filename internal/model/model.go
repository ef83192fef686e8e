package model

import (
	"strings"
	"time"
	"unicode"
)

// DefaultDescription is used for scanned products that are missing from the
// loaded catalog. The flag on the item stays sticky even if a catalog with the
// product is loaded later.
const DefaultDescription = "NOT IN CATALOG"

// Scanner is one registered auditor device. Scanners are never deleted within
// a session so that item attribution survives disconnects.
type Scanner struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`           // display-cased
	NormalizedName string      `json:"normalizedName"` // durable ownership key
	CurrentZoneID  string      `json:"currentZoneId,omitempty"`
	Connected      bool        `json:"connected"`
	Items          []*ScanItem `json:"items"` // per-scanner tally, keyed by product across zones
}

// Zone is a bounded sub-area of the store. The creator's normalized name is
// the immutable ownership key; ScannerID is the current (releasable) owner.
type Zone struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ScannerID        string    `json:"scannerId,omitempty"`
	CreatedByID      string    `json:"createdById"`
	CreatedByName    string    `json:"createdByName"`
	CreatedByNameKey string    `json:"createdByNameKey"`
	Closed           bool      `json:"closed"`
	CreatedAt        time.Time `json:"createdAt"`

	// Items is rebuilt from the global log on restore; the global log is the
	// authoritative serialized form.
	Items []*ScanItem `json:"-"`
}

// ScanItem is the running tally for one product within one zone. The same
// record is linked into the zone list and the global chronological log.
type ScanItem struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"productId"`
	Code            string    `json:"code"`
	Description     string    `json:"description"`
	Quantity        int64     `json:"quantity"`
	ExistsInCatalog bool      `json:"existsInCatalog"`
	ZoneID          string    `json:"zoneId"`
	ZoneName        string    `json:"zoneName"`
	ScannerName     string    `json:"scannerName"`
	FirstScan       time.Time `json:"firstScan"`
	LastScan        time.Time `json:"lastScan"`
}

// CatalogEntry is product metadata keyed by product id (barcode).
type CatalogEntry struct {
	ProductID   string  `json:"productId"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Cost        float64 `json:"cost"`
}

// BaselineEntry is the expected quantity for one product in the current store.
type BaselineEntry struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// Session is the active audit session metadata.
type Session struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// ZoneSummary is the dashboard/scanner view of a zone.
type ZoneSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TotalItems int64  `json:"totalItems"`
	Products   int    `json:"products"`
	Scanner    string `json:"scanner,omitempty"`
	CreatedBy  string `json:"createdBy,omitempty"`
	Active     bool   `json:"active"`
}

// ScannerSummary is the dashboard view of a scanner.
type ScannerSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ZoneID     string `json:"zoneId,omitempty"`
	ZoneName   string `json:"zoneName,omitempty"`
	TotalItems int64  `json:"totalItems"`
	Connected  bool   `json:"connected"`
}

// NormalizeName folds an auditor name into the durable ownership key.
// "Ana " and "ana" are the same auditor.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DisplayName capitalizes each word of a raw name for presentation.
func DisplayName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// ZoneTotal sums quantities across the zone's items.
func ZoneTotal(items []*ScanItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Quantity
	}
	return total
}
