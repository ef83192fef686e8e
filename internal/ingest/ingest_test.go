package ingest

import "testing"

func TestCatalog_HeaderPriority(t *testing.T) {
	sheet := Sheet{
		Header: []string{"SKU", "EAN", "Descripcion", "Costo"},
		Rows: [][]string{
			{"sku-1", "7501000111110", "Cola 600ml", "12.50"},
			{"sku-2", "7501000222221", "Pan Blanco", "30"},
		},
	}

	entries, stats := Catalog(sheet)
	if stats.Loaded != 2 || stats.Dropped != 0 || stats.PositionalFallbacks != 0 {
		t.Fatalf("stats: %+v", stats)
	}
	// EAN wins the product-id slot even though SKU is column 0.
	if entries[0].ProductID != "7501000111110" || entries[0].Code != "sku-1" {
		t.Fatalf("first entry: %+v", entries[0])
	}
	if entries[0].Description != "Cola 600ml" || entries[0].Cost != 12.5 {
		t.Fatalf("first entry: %+v", entries[0])
	}
}

func TestCatalog_PositionalFallback(t *testing.T) {
	sheet := Sheet{
		Header: []string{"colA", "colB", "colC", "colD"},
		Rows: [][]string{
			{"111", "c1", "Desc", "5"},
			{"222", "c2", "Other", "bad-number"},
		},
	}

	entries, stats := Catalog(sheet)
	if stats.Loaded != 2 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.PositionalFallbacks != 2 {
		t.Fatalf("fallback count = %d, want 2", stats.PositionalFallbacks)
	}
	if entries[0].ProductID != "111" || entries[0].Code != "c1" || entries[0].Cost != 5 {
		t.Fatalf("first entry: %+v", entries[0])
	}
	// Unparseable numbers collapse to zero rather than failing the load.
	if entries[1].Cost != 0 {
		t.Fatalf("bad cost parsed as %v", entries[1].Cost)
	}
}

func TestCatalog_DropsRowsWithoutProductID(t *testing.T) {
	sheet := Sheet{
		Header: []string{"EAN", "CODIGO", "DESCRIPCION", "COSTO"},
		Rows: [][]string{
			{"", "c1", "No barcode", "1"},
			{"   ", "c2", "Whitespace", "2"},
			{"333", "c3", "Kept", "3"},
		},
	}
	entries, stats := Catalog(sheet)
	if stats.Loaded != 1 || stats.Dropped != 2 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(entries) != 1 || entries[0].ProductID != "333" {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestBaseline_HeaderAndFallback(t *testing.T) {
	sheet := Sheet{
		Header: []string{"CANTIDAD", "EAN"},
		Rows: [][]string{
			{"4", "7501000111110"},
			{"2", "7501000222221"},
		},
	}
	entries, stats := Baseline(sheet)
	if stats.Loaded != 2 || stats.PositionalFallbacks != 0 {
		t.Fatalf("stats: %+v", stats)
	}
	// Header names win regardless of column position.
	if entries[0].ProductID != "7501000111110" || entries[0].Quantity != 4 {
		t.Fatalf("first entry: %+v", entries[0])
	}
}

func TestBaseline_HeaderlessIsPositional(t *testing.T) {
	sheet := Sheet{
		Rows: [][]string{
			{"7501000111110", "10"},
			{"7501000222221", "3.9"},
		},
	}
	entries, stats := Baseline(sheet)
	if stats.Loaded != 2 || stats.PositionalFallbacks != 2 {
		t.Fatalf("stats: %+v", stats)
	}
	if entries[0].Quantity != 10 {
		t.Fatalf("quantity: %+v", entries[0])
	}
	// Fractional quantities truncate toward zero.
	if entries[1].Quantity != 3 {
		t.Fatalf("quantity: %+v", entries[1])
	}
}
