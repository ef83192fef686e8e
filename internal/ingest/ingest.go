// Package ingest maps already-parsed spreadsheet rows into catalog and
// baseline entries. The engine never touches source files; the import
// collaborator parses them and hands over a Sheet.
//
// Field resolution follows an explicit prioritized list of accepted column
// names per attribute. When none matches, the value falls back to a fixed
// column position; that fallback is deterministic but fragile, so every use
// is counted and logged.
package ingest

import (
	"strconv"
	"strings"

	"invaudit/internal/model"
)

// Sheet is one parsed worksheet: column names in sheet order plus raw cell
// rows. Header may be empty for headerless sources, in which case every
// lookup is positional.
type Sheet struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Stats reports what a load did with the input rows.
type Stats struct {
	Loaded              int `json:"loaded"`
	Dropped             int `json:"dropped"`
	PositionalFallbacks int `json:"positionalFallbacks"`
}

// field is one target attribute: the accepted column names in priority order
// and the positional fallback column.
type field struct {
	names    []string
	fallback int
}

var (
	catalogProductID = field{[]string{"EAN", "ean", "CODIGO_BARRAS", "Código de Barras", "UPC"}, 0}
	catalogCode      = field{[]string{"CODIGO", "Codigo", "codigo", "SKU", "sku"}, 1}
	catalogDesc      = field{[]string{"DESCRIPCION", "Descripcion", "descripcion", "NOMBRE", "Nombre"}, 2}
	catalogCost      = field{[]string{"COSTO", "Costo", "costo", "PRECIO", "Precio"}, 3}

	baselineProductID = field{[]string{"EAN", "ean", "CODIGO_BARRAS", "Código de Barras"}, 0}
	baselineQuantity  = field{[]string{"CANTIDAD", "Cantidad", "cantidad", "STOCK", "Stock"}, 1}
)

// resolve finds the value for f in row. positional reports whether the
// fallback column was used.
func resolve(header []string, row []string, f field) (value string, positional bool) {
	for _, name := range f.names {
		for i, h := range header {
			if h == name {
				if i < len(row) {
					return row[i], false
				}
				return "", false
			}
		}
	}
	if f.fallback < len(row) {
		return row[f.fallback], true
	}
	return "", true
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// Catalog maps a sheet into catalog entries. Rows without a product id are
// dropped, not fatal.
func Catalog(s Sheet) ([]model.CatalogEntry, Stats) {
	var entries []model.CatalogEntry
	var stats Stats
	for _, row := range s.Rows {
		pid, p1 := resolve(s.Header, row, catalogProductID)
		code, p2 := resolve(s.Header, row, catalogCode)
		desc, p3 := resolve(s.Header, row, catalogDesc)
		cost, p4 := resolve(s.Header, row, catalogCost)
		if p1 || p2 || p3 || p4 {
			stats.PositionalFallbacks++
		}
		pid = strings.TrimSpace(pid)
		if pid == "" {
			stats.Dropped++
			continue
		}
		entries = append(entries, model.CatalogEntry{
			ProductID:   pid,
			Code:        strings.TrimSpace(code),
			Description: strings.TrimSpace(desc),
			Cost:        parseNumber(cost),
		})
		stats.Loaded++
	}
	return entries, stats
}

// Baseline maps a sheet into expected-stock entries.
func Baseline(s Sheet) ([]model.BaselineEntry, Stats) {
	var entries []model.BaselineEntry
	var stats Stats
	for _, row := range s.Rows {
		pid, p1 := resolve(s.Header, row, baselineProductID)
		qty, p2 := resolve(s.Header, row, baselineQuantity)
		if p1 || p2 {
			stats.PositionalFallbacks++
		}
		pid = strings.TrimSpace(pid)
		if pid == "" {
			stats.Dropped++
			continue
		}
		entries = append(entries, model.BaselineEntry{
			ProductID: pid,
			Quantity:  int64(parseNumber(qty)),
		})
		stats.Loaded++
	}
	return entries, stats
}
