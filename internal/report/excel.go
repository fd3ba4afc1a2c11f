package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/receipt-wallet/internal/receipt"
)

// SheetName is the worksheet holding exported receipts
const SheetName = "Receipts"

// WriteExcel writes list as an xlsx workbook with a totals row
func WriteExcel(w io.Writer, list receipt.List) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	headers := []string{"No", "Date", "Shop", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FF6B35"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("creating amount style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating total style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	total := decimal.Zero
	row := 2
	for i, r := range list {
		values := []any{i + 1, r.Date.Format("2006-01-02 15:04"), r.ShopName, r.TotalAmount}
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("writing row %d: %w", row, err)
		}
		total = total.Add(decimal.NewFromFloat(r.TotalAmount))
		row++
	}
	if row > 2 {
		if err := f.SetCellStyle(SheetName, "D2", fmt.Sprintf("D%d", row-1), amountStyle); err != nil {
			return fmt.Errorf("styling amounts: %w", err)
		}
	}

	totalRow := []any{nil, nil, "Total", total.InexactFloat64()}
	if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &totalRow); err != nil {
		return fmt.Errorf("writing totals: %w", err)
	}
	if err := f.SetCellStyle(SheetName, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row), totalStyle); err != nil {
		return fmt.Errorf("styling totals: %w", err)
	}

	f.SetColWidth(SheetName, "A", "A", 5)
	f.SetColWidth(SheetName, "B", "B", 18)
	f.SetColWidth(SheetName, "C", "C", 30)
	f.SetColWidth(SheetName, "D", "D", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
