package workbook

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildXLSX writes sheets (name -> rows) into an in-memory workbook.
func buildXLSX(t *testing.T, sheets map[string][][]string, order ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, cell, v))
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestRead(t *testing.T) {
	content := buildXLSX(t, map[string][][]string{
		"Rubber": {{"rubber_formular", "hardness"}, {"R-100", "70"}, {"R-200", "65"}},
		"Steel":  {{"steel_code"}, {}, {"S-1"}},
	}, "Rubber", "Steel")

	wb, err := Read("bom.xlsx", content)
	require.NoError(t, err)
	assert.Equal(t, 3, wb.DataRows())

	rubber, ok := wb.Sheet(" rubber ")
	require.True(t, ok)
	assert.Equal(t, []string{"rubber_formular", "hardness"}, rubber.Header)
	assert.Equal(t, [][]string{{"R-100", "70"}, {"R-200", "65"}}, rubber.Rows)

	_, ok = wb.Sheet("Production")
	assert.False(t, ok)
}

func TestPreflight(t *testing.T) {
	t.Run("wrong extension", func(t *testing.T) {
		_, err := Preflight("bom.csv", []byte("a,b"))
		assert.ErrorIs(t, err, ErrNotXLSX)
	})

	t.Run("not a zip", func(t *testing.T) {
		_, err := Preflight("bom.xlsx", []byte("definitely not excel"))
		assert.ErrorIs(t, err, ErrNotXLSX)
	})

	t.Run("header only", func(t *testing.T) {
		content := buildXLSX(t, map[string][][]string{"Rubber": {{"rubber_formular"}}}, "Rubber")
		_, err := Preflight("bom.xlsx", content)
		assert.ErrorIs(t, err, ErrEmptyWorkbook)
	})

	t.Run("ok", func(t *testing.T) {
		content := buildXLSX(t, map[string][][]string{"Rubber": {{"rubber_formular"}, {"R-1"}}}, "Rubber")
		wb, err := Preflight("BOM.XLSX", content)
		require.NoError(t, err)
		assert.Equal(t, "BOM.XLSX", wb.Filename)
	})
}
