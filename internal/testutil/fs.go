package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet for BuildXLSX; the first row is the header.
type Sheet struct {
	Name string
	Rows [][]string
}

// BuildXLSX returns an in-memory .xlsx workbook with the given sheets.
func BuildXLSX(t *testing.T, sheets ...Sheet) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				t.Fatalf("Failed to rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			t.Fatalf("Failed to create sheet '%s': %v", sheet.Name, err)
		}
		for r, row := range sheet.Rows {
			if err := f.SetSheetRow(sheet.Name, cellName(t, 1, r+1), &row); err != nil {
				t.Fatalf("Failed to write row %d of '%s': %v", r+1, sheet.Name, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return buf.Bytes()
}

// SampleBOM is a small workbook covering all four preview sections.
func SampleBOM(t *testing.T) []byte {
	t.Helper()
	return BuildXLSX(t,
		Sheet{Name: "Rubber", Rows: [][]string{{"rubber_formular", "hardness"}, {"R-100", "70"}, {"R-200", "65"}}},
		Sheet{Name: "Steel", Rows: [][]string{{"steel_code", "grade"}, {"S-1", "A36"}}},
		Sheet{Name: "RM", Rows: [][]string{{"rm_item", "uom"}, {"RM-9", "kg"}}},
		Sheet{Name: "Production", Rows: [][]string{{"item_code", "qty"}, {"FG-1", "4"}}},
	)
}

// WriteTestXLSX writes content into dir/name and returns the path.
func WriteTestXLSX(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		t.Fatalf("Failed to write test workbook: %v", err)
	}
	return filePath
}

func cellName(t *testing.T, col, row int) string {
	t.Helper()
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		t.Fatalf("Invalid cell coordinates: %v", err)
	}
	return name
}
