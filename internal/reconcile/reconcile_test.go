package reconcile

import (
	"reflect"
	"testing"

	"invaudit/internal/model"
)

func TestReconcile_NoBaseline(t *testing.T) {
	rep := Reconcile(nil, nil, []*model.ScanItem{{ProductID: "a", Quantity: 5}})
	if rep.HasBaseline {
		t.Fatalf("report without baseline should have HasBaseline=false")
	}
	if rep.Shortages == nil || rep.Overages == nil {
		t.Fatalf("lists must be empty, not nil: %+v", rep)
	}
	if len(rep.Shortages) != 0 || len(rep.Overages) != 0 {
		t.Fatalf("expected empty lists: %+v", rep)
	}
}

func TestReconcile_ShortagesAndProgress(t *testing.T) {
	baseline := []model.BaselineEntry{
		{ProductID: "A", Quantity: 10},
		{ProductID: "B", Quantity: 5},
	}
	catalog := []model.CatalogEntry{
		{ProductID: "A", Code: "a1", Description: "Alpha", Cost: 2},
		{ProductID: "B", Code: "b1", Description: "Beta", Cost: 3},
	}
	items := []*model.ScanItem{{ProductID: "A", Quantity: 7}}

	rep := Reconcile(baseline, catalog, items)
	if !rep.HasBaseline {
		t.Fatalf("expected HasBaseline")
	}
	if rep.TotalExpected != 15 || rep.TotalScanned != 7 {
		t.Fatalf("totals: expected=%d scanned=%d", rep.TotalExpected, rep.TotalScanned)
	}
	if rep.Progress != 47 {
		t.Fatalf("progress = %d, want 47", rep.Progress)
	}
	if rep.ShortageCount != 2 || rep.OverageCount != 0 {
		t.Fatalf("counts: shortages=%d overages=%d", rep.ShortageCount, rep.OverageCount)
	}

	// Sorted descending by total cost: B missing 5 at $3 ($15) before A
	// missing 3 at $2 ($6).
	if rep.Shortages[0].ProductID != "B" || rep.Shortages[0].Difference != 5 || rep.Shortages[0].TotalCost != 15 {
		t.Fatalf("first shortage: %+v", rep.Shortages[0])
	}
	if rep.Shortages[1].ProductID != "A" || rep.Shortages[1].Difference != 3 || rep.Shortages[1].TotalCost != 6 {
		t.Fatalf("second shortage: %+v", rep.Shortages[1])
	}
	if rep.ShortageCost != 21 || rep.CostDelta != -21 {
		t.Fatalf("costs: shortage=%v delta=%v", rep.ShortageCost, rep.CostDelta)
	}
}

func TestReconcile_OverageOutsideBaseline(t *testing.T) {
	baseline := []model.BaselineEntry{{ProductID: "A", Quantity: 2}}
	catalog := []model.CatalogEntry{
		{ProductID: "A", Description: "Alpha", Cost: 1},
		{ProductID: "X", Code: "x1", Description: "Extra", Cost: 4},
	}
	items := []*model.ScanItem{
		{ProductID: "A", Quantity: 2},
		{ProductID: "X", Quantity: 3},
		{ProductID: "Y", Quantity: 1, Description: model.DefaultDescription},
	}

	rep := Reconcile(baseline, catalog, items)
	if rep.ShortageCount != 0 {
		t.Fatalf("unexpected shortages: %+v", rep.Shortages)
	}
	if rep.OverageCount != 2 {
		t.Fatalf("overages = %d, want 2", rep.OverageCount)
	}

	// X is priced from the catalog; Y is unknown and costs nothing.
	if rep.Overages[0].ProductID != "X" || rep.Overages[0].TotalCost != 12 {
		t.Fatalf("first overage: %+v", rep.Overages[0])
	}
	if rep.Overages[1].ProductID != "Y" || rep.Overages[1].TotalCost != 0 {
		t.Fatalf("second overage: %+v", rep.Overages[1])
	}
	if rep.Overages[1].Description != model.DefaultDescription {
		t.Fatalf("unknown product description: %q", rep.Overages[1].Description)
	}
	if rep.CostDelta != 12 {
		t.Fatalf("cost delta = %v, want 12", rep.CostDelta)
	}
}

func TestReconcile_DuplicateBaselineRowsAccumulate(t *testing.T) {
	baseline := []model.BaselineEntry{
		{ProductID: "A", Quantity: 3},
		{ProductID: "A", Quantity: 4},
	}
	rep := Reconcile(baseline, nil, nil)
	if rep.TotalExpected != 7 {
		t.Fatalf("total expected = %d, want 7", rep.TotalExpected)
	}
	if rep.ExpectedProducts != 1 {
		t.Fatalf("expected products = %d, want 1", rep.ExpectedProducts)
	}
	if rep.Shortages[0].Expected != 7 || rep.Shortages[0].Difference != 7 {
		t.Fatalf("shortage row: %+v", rep.Shortages[0])
	}
}

func TestReconcile_ProgressCapped(t *testing.T) {
	baseline := []model.BaselineEntry{{ProductID: "A", Quantity: 1}}
	items := []*model.ScanItem{{ProductID: "A", Quantity: 100}}
	rep := Reconcile(baseline, nil, items)
	if rep.Progress != ProgressCap {
		t.Fatalf("progress = %d, want cap %d", rep.Progress, ProgressCap)
	}
}

func TestReconcile_Pure(t *testing.T) {
	baseline := []model.BaselineEntry{
		{ProductID: "A", Quantity: 10},
		{ProductID: "B", Quantity: 5},
	}
	catalog := []model.CatalogEntry{
		{ProductID: "A", Cost: 2},
		{ProductID: "B", Cost: 3},
	}
	items := []*model.ScanItem{
		{ProductID: "A", Quantity: 7},
		{ProductID: "C", Quantity: 2},
	}

	first := Reconcile(baseline, catalog, items)
	second := Reconcile(baseline, catalog, items)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reports differ across identical calls:\n%+v\n%+v", first, second)
	}
	if items[0].Quantity != 7 {
		t.Fatalf("input mutated: %+v", items[0])
	}
}
