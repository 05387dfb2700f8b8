package quote

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Quote"

// Workbook lays the quote out as a spreadsheet: one row per sticker line
// followed by the totals block. The caller must Close the file.
func Workbook(q Quote) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{
		"line",
		"width_mm",
		"height_mm",
		"quantity",
		"price_per_sticker",
		"stickers_per_row",
		"rows",
		"total_stickers",
		"total_excl_vat",
		"total_incl_vat",
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	row := 2
	for _, l := range q.Lines {
		var excelRow []interface{}
		if pq, ok := l.Result.Quote(); ok {
			excelRow = []interface{}{
				l.Index,
				l.Width,
				l.Height,
				l.Quantity,
				pq.PricePerSticker.InexactFloat64(),
				pq.StickersPerRow,
				l.Rows,
				l.TotalStickers,
				l.TotalExclVAT.Round(2).InexactFloat64(),
				l.TotalInclVAT.Round(2).InexactFloat64(),
			}
		} else {
			excelRow = []interface{}{l.Index, l.Width, l.Height, l.Quantity, l.Result.Price()}
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &excelRow); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write line %d: %w", l.Index, err)
		}
		row++
	}

	row++
	summary := [][]interface{}{
		{"material", q.Material},
		{"vat_rate", q.VATRate.InexactFloat64()},
		{"total_excl_vat", q.TotalExclVAT.Round(2).InexactFloat64()},
		{"total_incl_vat", q.TotalInclVAT.Round(2).InexactFloat64()},
		{"min_order_amount", q.MinOrderAmount.Round(2).InexactFloat64()},
		{"below_min_order", map[bool]string{true: "yes", false: "no"}[q.BelowMinOrder]},
	}
	for _, s := range summary {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &s); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write summary: %w", err)
		}
		row++
	}
	return f, nil
}

// WriteWorkbook streams the quote workbook to w.
func WriteWorkbook(w io.Writer, q Quote) error {
	f, err := Workbook(q)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
