// Package excelio imports and exports the operator-facing commercial
// spreadsheet: one row per item, editable columns round-tripping
// through store.ItemCommercial and read-only columns holding calculated
// or portal-derived values. Grounded on
// original_source/app/excel/excel_io.py's column layout and table
// export shape, using github.com/xuri/excelize/v2 in place of openpyxl.
// The export writes stored values into every column; it sets no cell
// formulas.
package excelio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/jholdgaard/subastamon/internal/store"
)

const sheetName = "Subastas"
const tableName = "T_Subastas"

// columns is the full export column order, spec.md §6.
var columns = []string{
	"ID SUBASTA", "ITEM", "DESCRIPCION", "UNIDAD DE MEDIDA", "CANTIDAD",
	"MARCA", "OBS USUARIO", "CONVERSION USD",
	"COSTO UNIT USD", "COSTO TOTAL USD", "COSTO UNIT ARS", "COSTO TOTAL ARS",
	"RENTA MINIMA %", "PRECIO UNIT ACEPTABLE", "PRECIO TOTAL ACEPTABLE",
	"PRECIO DE REFERENCIA", "PRECIO REF UNITARIO", "RENTA REFERENCIA %",
	"MEJOR OFERTA ACTUAL", "OFERTA PARA MEJORAR", "PRECIO UNIT MEJORA",
	"RENTA PARA MEJORAR %", "OBS / CAMBIO",
}

const moneyFormat = `$ #,##0.00`
const percentFormat = `0.00%`

var moneyCols = map[string]bool{
	"COSTO UNIT USD": true, "COSTO TOTAL USD": true, "COSTO UNIT ARS": true,
	"COSTO TOTAL ARS": true, "PRECIO UNIT ACEPTABLE": true,
	"PRECIO TOTAL ACEPTABLE": true, "PRECIO DE REFERENCIA": true,
	"PRECIO REF UNITARIO": true, "PRECIO UNIT MEJORA": true,
}

var percentCols = map[string]bool{
	"RENTA MINIMA %": true, "RENTA REFERENCIA %": true, "RENTA PARA MEJORAR %": true,
}

// ImportedRow is one operator-supplied row recovered from an imported
// workbook, after ignoring every calculated/portal-derived column.
type ImportedRow struct {
	AuctionExtID string
	LocalID      string
	Unit         string
	Brand        string
	Notes        string
	USDConversion *float64
	UnitCostARS  *float64
	TotalCostARS *float64
	MinMargin    float64
}

// RowError reports a typed, row-scoped import failure.
type RowError struct {
	Row    int
	Column string
	Detail string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Detail)
}

// Export writes one row per item of auctionExtID to w, as an Excel
// table. Calculated columns hold the values stored for the item, not
// formulas, so they do not recompute when the operator edits a cell.
func Export(ctx context.Context, repos *store.Repositories, auctionExtID string, w io.Writer) error {
	items, err := repos.Items.ListForAuction(ctx, auctionExtID)
	if err != nil {
		return fmt.Errorf("excelio: listing items: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("excelio: naming sheet: %w", err)
	}

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(sheetName, cell, h); err != nil {
			return fmt.Errorf("excelio: writing header %q: %w", h, err)
		}
	}

	row := 2
	for _, item := range items {
		commercial, err := repos.Commercial.Get(ctx, auctionExtID, item.LocalID)
		if err != nil {
			commercial = &store.ItemCommercial{AuctionExtID: auctionExtID, LocalID: item.LocalID}
		}
		state, err := repos.ItemStates.Get(ctx, auctionExtID, item.LocalID)
		if err != nil {
			state = &store.ItemState{}
		}
		writeRow(f, row, item, commercial, state)
		row++
	}
	if row == 2 {
		row++ // leave one blank data row so the table/formula range is non-empty
	}
	lastRow := row - 1

	lastCell, _ := excelize.CoordinatesToCellName(len(columns), lastRow)
	ref := fmt.Sprintf("A1:%s", lastCell)
	disp := tableName
	if err := f.AddTable(sheetName, &excelize.Table{Range: ref, Name: disp, StyleName: "TableStyleMedium9"}); err != nil {
		return fmt.Errorf("excelio: adding table: %w", err)
	}

	applyFormats(f, lastRow)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("excelio: writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, item store.Item, c *store.ItemCommercial, s *store.ItemState) {
	vals := map[string]any{
		"ID SUBASTA":             item.AuctionExtID,
		"ITEM":                   item.LocalID,
		"DESCRIPCION":            item.Description,
		"UNIDAD DE MEDIDA":       c.Unit,
		"CANTIDAD":               deref(c.Quantity),
		"MARCA":                  c.Brand,
		"OBS USUARIO":            c.Notes,
		"CONVERSION USD":         deref(c.USDConversion),
		"COSTO UNIT USD":         deref(c.UnitCostUSD),
		"COSTO TOTAL USD":        deref(c.TotalCostUSD),
		"COSTO UNIT ARS":         deref(c.UnitCostARS),
		"COSTO TOTAL ARS":        deref(c.TotalCostARS),
		"RENTA MINIMA %":         c.MinMargin,
		"PRECIO UNIT ACEPTABLE":  deref(c.AcceptableUnitPrice),
		"PRECIO TOTAL ACEPTABLE": deref(c.AcceptableTotalPrice),
		"PRECIO DE REFERENCIA":   deref(c.BudgetReference),
		"PRECIO REF UNITARIO":    deref(c.ReferenceUnitCost),
		"RENTA REFERENCIA %":     deref(c.ReferenceMargin),
		"MEJOR OFERTA ACTUAL":    s.BestOfferText,
		"OFERTA PARA MEJORAR":    s.OfferToBeatText,
		"PRECIO UNIT MEJORA":     deref(c.UnitImprovementPrice),
		"RENTA PARA MEJORAR %":   deref(c.MarginToBeat),
		"OBS / CAMBIO":           c.ChangeNote,
	}
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheetName, cell, vals[col])
	}
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func applyFormats(f *excelize.File, lastRow int) {
	for i, col := range columns {
		var format string
		switch {
		case moneyCols[col]:
			format = moneyFormat
		case percentCols[col]:
			format = percentFormat
		default:
			continue
		}
		style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
		if err != nil {
			continue
		}
		startCell, _ := excelize.CoordinatesToCellName(i+1, 2)
		endCell, _ := excelize.CoordinatesToCellName(i+1, lastRow)
		_ = f.SetCellStyle(sheetName, startCell, endCell, style)
	}
}

// Import reads an operator-edited workbook and returns the
// operator-supplied rows, ignoring every calculated/portal-derived
// column. Header matching is accent- and case-insensitive, matching
// original_source's NFKD-fold-then-uppercase normalization. RENTA
// MINIMA % must be a fraction in [0, 1]; any row outside that range
// aborts with a *RowError naming the offending row.
func Import(r io.Reader) ([]ImportedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("excelio: opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	for _, name := range f.GetSheetList() {
		if name == sheetName {
			sheet = sheetName
			break
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("excelio: reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excelio: sheet %q has no header row", sheet)
	}

	headerIdx := map[string]int{}
	for i, h := range rows[0] {
		canon := normalizeHeader(h)
		if canon != "" {
			headerIdx[canon] = i
		}
	}

	required := []string{
		"ID SUBASTA", "ITEM", "UNIDAD DE MEDIDA", "MARCA", "OBS USUARIO",
		"CONVERSION USD", "COSTO TOTAL ARS", "RENTA MINIMA %",
	}
	var missing []string
	for _, col := range required {
		if _, ok := headerIdx[normalizeHeader(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("excelio: missing required columns: %s", strings.Join(missing, ", "))
	}

	var out []ImportedRow
	for rowNum, cells := range rows[1:] {
		if isBlankRow(cells) {
			continue
		}
		get := func(col string) string {
			idx, ok := headerIdx[normalizeHeader(col)]
			if !ok || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}

		minMargin, err := parseFloat(get("RENTA MINIMA %"))
		if err != nil {
			return nil, &RowError{Row: rowNum + 2, Column: "RENTA MINIMA %", Detail: err.Error()}
		}
		if minMargin < 0 || minMargin > 1 {
			return nil, &RowError{Row: rowNum + 2, Column: "RENTA MINIMA %", Detail: "must be a fraction in [0, 1]"}
		}

		out = append(out, ImportedRow{
			AuctionExtID:  get("ID SUBASTA"),
			LocalID:       get("ITEM"),
			Unit:          get("UNIDAD DE MEDIDA"),
			Brand:         get("MARCA"),
			Notes:         get("OBS USUARIO"),
			USDConversion: parseOptionalFloat(get("CONVERSION USD")),
			UnitCostARS:   parseOptionalFloat(get("COSTO UNIT ARS")),
			TotalCostARS:  parseOptionalFloat(get("COSTO TOTAL ARS")),
			MinMargin:     minMargin,
		})
	}
	return out, nil
}

// normalizeHeader mirrors original_source's _normalize_header: NFKD
// decompose, drop combining marks, collapse whitespace, upper-case. So
// "Costo Unit. ARS", "COSTO UNIT ARS", and "costo   unit ars" all match
// the same canonical header.
func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	fields := strings.Fields(b.String())
	return strings.ToUpper(strings.Join(fields, " "))
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

func parseOptionalFloat(s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v, err := parseFloat(s)
	if err != nil {
		return nil
	}
	return &v
}
