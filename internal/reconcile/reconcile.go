// Package reconcile computes shortages (faltantes) and overages (sobrantes)
// by comparing aggregated scan counts against the expected-stock baseline.
package reconcile

import (
	"math"
	"sort"

	"invaudit/internal/model"
)

// ProgressCap bounds the displayed completion percentage.
const ProgressCap = 999

// Record is one product-level difference between expected and scanned stock.
type Record struct {
	ProductID   string  `json:"productId"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Expected    int64   `json:"expected"`
	Scanned     int64   `json:"scanned"`
	Difference  int64   `json:"difference"` // magnitude, always positive
	UnitCost    float64 `json:"unitCost"`
	TotalCost   float64 `json:"totalCost"`
}

// Report is the full reconciliation output. HasBaseline distinguishes "no
// baseline loaded" from a loaded-but-empty baseline; callers must check the
// flag rather than infer from empty lists.
type Report struct {
	HasBaseline      bool     `json:"hasBaseline"`
	TotalExpected    int64    `json:"totalExpected"`
	TotalScanned     int64    `json:"totalScanned"`
	Progress         int      `json:"progress"`
	Shortages        []Record `json:"shortages"`
	Overages         []Record `json:"overages"`
	ShortageCount    int      `json:"shortageCount"`
	OverageCount     int      `json:"overageCount"`
	ShortageCost     float64  `json:"shortageCost"`
	OverageCost      float64  `json:"overageCost"`
	CostDelta        float64  `json:"costDelta"`
	ExpectedProducts int      `json:"expectedProducts"`
	ScannedProducts  int      `json:"scannedProducts"`
}

type expected struct {
	code        string
	description string
	cost        float64
	quantity    int64
}

// Reconcile is a pure function over the current state: no mutation, no I/O,
// identical output for identical input. Shortage/overage lists are sorted
// descending by total cost with a stable tie-break preserving encounter order.
func Reconcile(baseline []model.BaselineEntry, catalog []model.CatalogEntry, items []*model.ScanItem) Report {
	if len(baseline) == 0 {
		return Report{Shortages: []Record{}, Overages: []Record{}}
	}

	catalogIx := make(map[string]model.CatalogEntry, len(catalog))
	for _, c := range catalog {
		catalogIx[c.ProductID] = c
	}

	// Fold the baseline into an expected map, keeping first-seen order so the
	// output is deterministic. Duplicate baseline rows accumulate.
	expectedIx := make(map[string]*expected, len(baseline))
	var expectedOrder []string
	for _, b := range baseline {
		if e, ok := expectedIx[b.ProductID]; ok {
			e.quantity += b.Quantity
			continue
		}
		c := catalogIx[b.ProductID]
		desc := c.Description
		if desc == "" {
			desc = model.DefaultDescription
		}
		expectedIx[b.ProductID] = &expected{
			code:        c.Code,
			description: desc,
			cost:        c.Cost,
			quantity:    b.Quantity,
		}
		expectedOrder = append(expectedOrder, b.ProductID)
	}

	// Fold the global item log into per-product scanned totals, again in
	// first-seen order.
	scannedIx := make(map[string]int64)
	sampleIx := make(map[string]*model.ScanItem)
	var scannedOrder []string
	var totalScanned int64
	for _, it := range items {
		if _, ok := scannedIx[it.ProductID]; !ok {
			scannedOrder = append(scannedOrder, it.ProductID)
			sampleIx[it.ProductID] = it
		}
		scannedIx[it.ProductID] += it.Quantity
		totalScanned += it.Quantity
	}

	shortages := []Record{}
	overages := []Record{}
	var totalExpected int64
	var shortageCost, overageCost float64

	for _, pid := range expectedOrder {
		exp := expectedIx[pid]
		scanned := scannedIx[pid]
		delta := scanned - exp.quantity
		totalExpected += exp.quantity

		switch {
		case delta < 0:
			missing := -delta
			shortages = append(shortages, Record{
				ProductID:   pid,
				Code:        exp.code,
				Description: exp.description,
				Expected:    exp.quantity,
				Scanned:     scanned,
				Difference:  missing,
				UnitCost:    exp.cost,
				TotalCost:   float64(missing) * exp.cost,
			})
			shortageCost += float64(missing) * exp.cost
		case delta > 0:
			overages = append(overages, Record{
				ProductID:   pid,
				Code:        exp.code,
				Description: exp.description,
				Expected:    exp.quantity,
				Scanned:     scanned,
				Difference:  delta,
				UnitCost:    exp.cost,
				TotalCost:   float64(delta) * exp.cost,
			})
			overageCost += float64(delta) * exp.cost
		}
	}

	// Products scanned but absent from the baseline are pure overages.
	for _, pid := range scannedOrder {
		if _, ok := expectedIx[pid]; ok {
			continue
		}
		scanned := scannedIx[pid]
		c, inCatalog := catalogIx[pid]
		it := sampleIx[pid]
		code := c.Code
		if code == "" {
			code = it.Code
		}
		desc := c.Description
		if desc == "" {
			desc = it.Description
		}
		if desc == "" {
			desc = model.DefaultDescription
		}
		var cost float64
		if inCatalog {
			cost = c.Cost
		}
		overages = append(overages, Record{
			ProductID:   pid,
			Code:        code,
			Description: desc,
			Expected:    0,
			Scanned:     scanned,
			Difference:  scanned,
			UnitCost:    cost,
			TotalCost:   float64(scanned) * cost,
		})
		overageCost += float64(scanned) * cost
	}

	sort.SliceStable(shortages, func(i, j int) bool { return shortages[i].TotalCost > shortages[j].TotalCost })
	sort.SliceStable(overages, func(i, j int) bool { return overages[i].TotalCost > overages[j].TotalCost })

	progress := 0
	if totalExpected > 0 {
		progress = int(math.Round(float64(totalScanned) / float64(totalExpected) * 100))
		if progress > ProgressCap {
			progress = ProgressCap
		}
	}

	return Report{
		HasBaseline:      true,
		TotalExpected:    totalExpected,
		TotalScanned:     totalScanned,
		Progress:         progress,
		Shortages:        shortages,
		Overages:         overages,
		ShortageCount:    len(shortages),
		OverageCount:     len(overages),
		ShortageCost:     shortageCost,
		OverageCost:      overageCost,
		CostDelta:        overageCost - shortageCost,
		ExpectedProducts: len(expectedIx),
		ScannedProducts:  len(scannedIx),
	}
}
