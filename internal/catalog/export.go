package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Price List"

var exportHeader = []string{
	"Code", "Description", "Category", "Unit", "Tier",
	"Labor / Unit", "Material / Unit", "Equipment / Unit", "Unit Price",
	"Active", "Last Updated",
}

var exportWidths = []float64{14, 48, 14, 8, 12, 14, 16, 18, 12, 8, 20}

// Export writes the filtered catalog as an XLSX workbook to w.
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) error {
	items, err := s.List(ctx, f)
	if err != nil {
		return err
	}
	book, err := buildWorkbook(items)
	if err != nil {
		return fmt.Errorf("build catalog workbook: %w", err)
	}
	defer func() { _ = book.Close() }()
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write catalog workbook: %w", err)
	}
	return nil
}

func buildWorkbook(items []Item) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(exportSheet)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		_ = f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	// Costs keep up to four decimal places.
	moneyFmt := "0.00##"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, width := range exportWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(exportSheet, col, col, width); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	for i, item := range items {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{
			item.Code, item.Description, item.Category, item.UnitOfMeasure, string(item.Tier),
			item.LaborCostPerUnit.InexactFloat64(), item.MaterialCostPerUnit.InexactFloat64(),
			item.EquipmentCostPerUnit.InexactFloat64(), item.UnitPrice.InexactFloat64(),
			item.Active, item.LastUpdated.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if len(items) > 0 {
		from, _ := excelize.CoordinatesToCellName(6, 2)
		to, _ := excelize.CoordinatesToCellName(9, len(items)+1)
		if err := f.SetCellStyle(exportSheet, from, to, moneyStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}
