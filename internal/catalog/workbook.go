package catalog

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/resinquote/internal/pricing"
)

const (
	SheetMaterials  = "Materials"
	SheetRates      = "Rates"
	SheetMarkup     = "Markup"
	SheetPieceTypes = "PieceTypes"
	SheetTypologies = "Typologies"
)

// WriteWorkbook writes b as an xlsx workbook with one sheet per section.
func WriteWorkbook(w io.Writer, b Bundle) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetMaterials); err != nil {
		return fmt.Errorf("rename first sheet: %w", err)
	}
	for _, name := range []string{SheetRates, SheetMarkup, SheetPieceTypes, SheetTypologies} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	materials := [][]interface{}{{"name", "price_per_liter", "waste_percent", "color"}}
	for _, m := range b.Materials {
		materials = append(materials, []interface{}{m.Name, m.PricePerLiter, m.WastePercent, m.Color})
	}

	r := b.Rules
	rates := [][]interface{}{
		{"key", "value"},
		{"machine_cost_per_hour", r.MachineCostPerHour},
		{"post_processing_rate", r.PostProcessingRate},
		{"finishing_rate", r.FinishingRate},
		{"markup_above", r.MarkupAbove},
		{"packaging_cost", r.PackagingCost},
		{"standard_delivery_cost", r.StandardDeliveryCost},
		{"express_multiplier", r.ExpressMultiplier},
		{"tax_rate", r.TaxRate},
		{"on_unknown_factor", string(r.OnUnknownFactor)},
		{"currency", r.Currency},
	}

	markup := [][]interface{}{{"up_to_ml", "factor"}}
	for _, t := range r.Markup {
		markup = append(markup, []interface{}{t.UpToMl, t.Factor})
	}

	pieceTypes := [][]interface{}{{"name", "factor"}}
	for _, name := range sortedKeys(r.PieceTypeFactors) {
		pieceTypes = append(pieceTypes, []interface{}{string(name), r.PieceTypeFactors[name]})
	}

	typologies := [][]interface{}{{"name", "factor"}}
	for _, name := range sortedKeys(r.TypologyFactors) {
		typologies = append(typologies, []interface{}{string(name), r.TypologyFactors[name]})
	}

	for _, sheet := range []struct {
		name string
		rows [][]interface{}
	}{
		{SheetMaterials, materials},
		{SheetRates, rates},
		{SheetMarkup, markup},
		{SheetPieceTypes, pieceTypes},
		{SheetTypologies, typologies},
	} {
		if err := writeRows(f, sheet.name, sheet.rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("%s: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// ReadWorkbook parses a workbook produced by WriteWorkbook (or edited by
// hand with the same sheets and headers).
func ReadWorkbook(r io.Reader) (Bundle, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Bundle{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b Bundle

	rows, err := sheetRows(f, SheetMaterials)
	if err != nil {
		return Bundle{}, err
	}
	for _, row := range rows {
		if len(row.cells) < 3 {
			return Bundle{}, fmt.Errorf("%s row %d: expected at least 3 columns", SheetMaterials, row.num)
		}
		price, err := parseCell(SheetMaterials, row.num, row.cells[1])
		if err != nil {
			return Bundle{}, err
		}
		waste, err := parseCell(SheetMaterials, row.num, row.cells[2])
		if err != nil {
			return Bundle{}, err
		}
		m := pricing.MaterialSpec{Name: strings.TrimSpace(row.cells[0]), PricePerLiter: price, WastePercent: waste}
		if len(row.cells) > 3 {
			m.Color = strings.TrimSpace(row.cells[3])
		}
		b.Materials = append(b.Materials, m)
	}

	b.Rules = pricing.Rules{
		PieceTypeFactors: map[pricing.PieceType]float64{},
		TypologyFactors:  map[pricing.Typology]float64{},
		OnUnknownFactor:  pricing.UseDefaultFactor,
		Currency:         "EUR",
	}

	rows, err = sheetRows(f, SheetRates)
	if err != nil {
		return Bundle{}, err
	}
	for _, row := range rows {
		if len(row.cells) < 2 {
			return Bundle{}, fmt.Errorf("%s row %d: expected key and value", SheetRates, row.num)
		}
		if err := setRate(&b.Rules, row.num, strings.TrimSpace(row.cells[0]), strings.TrimSpace(row.cells[1])); err != nil {
			return Bundle{}, err
		}
	}

	rows, err = sheetRows(f, SheetMarkup)
	if err != nil {
		return Bundle{}, err
	}
	for _, row := range rows {
		if len(row.cells) < 2 {
			return Bundle{}, fmt.Errorf("%s row %d: expected up_to_ml and factor", SheetMarkup, row.num)
		}
		upTo, err := parseCell(SheetMarkup, row.num, row.cells[0])
		if err != nil {
			return Bundle{}, err
		}
		factor, err := parseCell(SheetMarkup, row.num, row.cells[1])
		if err != nil {
			return Bundle{}, err
		}
		b.Rules.Markup = append(b.Rules.Markup, pricing.MarkupTier{UpToMl: upTo, Factor: factor})
	}

	factors, err := readFactors(f, SheetPieceTypes)
	if err != nil {
		return Bundle{}, err
	}
	for name, v := range factors {
		b.Rules.PieceTypeFactors[canonicalPieceType(name)] = v
	}

	factors, err = readFactors(f, SheetTypologies)
	if err != nil {
		return Bundle{}, err
	}
	for name, v := range factors {
		b.Rules.TypologyFactors[canonicalTypology(name)] = v
	}

	return b, nil
}

// sheetRow is a data row with its 1-based row number in the sheet.
type sheetRow struct {
	num   int
	cells []string
}

// sheetRows returns the non-empty data rows of sheet, header excluded.
func sheetRows(f *excelize.File, sheet string) ([]sheetRow, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]sheetRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		out = append(out, sheetRow{num: i + 2, cells: cells})
	}
	return out, nil
}

func readFactors(f *excelize.File, sheet string) (map[string]float64, error) {
	rows, err := sheetRows(f, sheet)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		if len(row.cells) < 2 {
			return nil, fmt.Errorf("%s row %d: expected name and factor", sheet, row.num)
		}
		v, err := parseCell(sheet, row.num, row.cells[1])
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(row.cells[0])] = v
	}
	return out, nil
}

func setRate(r *pricing.Rules, rowNum int, key, value string) error {
	switch key {
	case "on_unknown_factor":
		r.OnUnknownFactor = pricing.UnknownFactorPolicy(value)
		return nil
	case "currency":
		r.Currency = value
		return nil
	}

	v, err := parseCell(SheetRates, rowNum, value)
	if err != nil {
		return err
	}
	switch key {
	case "machine_cost_per_hour":
		r.MachineCostPerHour = v
	case "post_processing_rate":
		r.PostProcessingRate = v
	case "finishing_rate":
		r.FinishingRate = v
	case "markup_above":
		r.MarkupAbove = v
	case "packaging_cost":
		r.PackagingCost = v
	case "standard_delivery_cost":
		r.StandardDeliveryCost = v
	case "express_multiplier":
		r.ExpressMultiplier = v
	case "tax_rate":
		r.TaxRate = v
	default:
		return fmt.Errorf("%s row %d: unknown key %q", SheetRates, rowNum, key)
	}
	return nil
}

func parseCell(sheet string, rowNum int, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(raw, ",", ".")), 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: invalid number %q", sheet, rowNum, raw)
	}
	return v, nil
}

func sortedKeys[K ~string](m map[K]float64) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
