package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"id", "x", "y"},
			{"1", "10.5", "20"},
			{"", "", ""},
			{"2", " 30 ", "40"},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "x", "y"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "10.5", "20"}, rows[0])
	assert.Equal(t, []string{"2", "30", "40"}, rows[1])
}

func TestReadXLSX_SkipRowsAndSheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"points": {
			{"Exported 2024-01-01"},
			{"x", "y"},
			{"1", "2"},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{SheetName: "points", SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, header)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestReadXLSX_Errors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"x"}}})

	_, _, err := ReadXLSX(path, XLSXOptions{SheetName: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, _, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestReadXLSX_NoHeader(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {}})
	_, _, err := ReadXLSX(path, XLSXOptions{})
	require.Error(t, err)
}
