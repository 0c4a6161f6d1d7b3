// Package workbook inspects BOM spreadsheets before they are uploaded.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNotXLSX       = errors.New("please choose an Excel .xlsx file")
	ErrEmptyWorkbook = errors.New("workbook has no data rows")
)

// Sheet is one worksheet's header and data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Workbook is the parsed content of an uploaded file.
type Workbook struct {
	Filename string
	Sheets   []Sheet
}

// DataRows counts rows below the header across all sheets.
func (w *Workbook) DataRows() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Rows)
	}
	return n
}

// Sheet returns the sheet whose name matches, ignoring case and surrounding
// whitespace.
func (w *Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if strings.EqualFold(strings.TrimSpace(s.Name), name) {
			return s, true
		}
	}
	return Sheet{}, false
}

// Read parses an .xlsx file. The first non-empty row of each sheet is its header.
func Read(filename string, content []byte) (*Workbook, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return nil, ErrNotXLSX
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotXLSX, err)
	}
	defer f.Close()

	wb := &Workbook{Filename: filepath.Base(filename)}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheet := Sheet{Name: name}
		for _, row := range rows {
			if blank(row) {
				continue
			}
			if sheet.Header == nil {
				sheet.Header = row
				continue
			}
			sheet.Rows = append(sheet.Rows, row)
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	return wb, nil
}

// Preflight parses the file and rejects workbooks with nothing to preview.
func Preflight(filename string, content []byte) (*Workbook, error) {
	wb, err := Read(filename, content)
	if err != nil {
		return nil, err
	}
	if wb.DataRows() == 0 {
		return nil, ErrEmptyWorkbook
	}
	return wb, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
