package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Receipts"

// WriteXLSX renders the rows into a single-sheet workbook. Amounts are written as numbers.
func WriteXLSX(rows []Row) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for r, row := range rows {
		for c, v := range row.Values() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var value any = v
			if Columns[c] == "amount" {
				if amount, err := strconv.ParseFloat(v, 64); err == nil {
					value = amount
				}
			}
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 14)
	_ = f.SetColWidth(sheetName, "C", "D", 24)
	_ = f.SetColWidth(sheetName, "E", "F", 12)
	_ = f.SetColWidth(sheetName, "G", "H", 48)
	_ = f.SetColWidth(sheetName, "I", "I", 22)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf, nil
}
