package fetcher

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func newTestWorkbook(t *testing.T, sheets map[string][][]string, order ...string) *xlsx.File {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range order {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range sheets[name] {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	return f
}

func writeTestXLSX(t *testing.T, sheets map[string][][]string, order ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "etablissements.xlsx")
	require.NoError(t, newTestWorkbook(t, sheets, order...).Save(path))
	return path
}

var testSheets = map[string][][]string{
	"Synthese": {
		{"Etablissement", "Ville", "DNB 2024"},
		{"Lycée A", "Rabat", "85"},
		{"Lycée B", "Madrid", ""},
	},
	"Notes": {
		{"x"},
	},
}

func TestReadXLSX(t *testing.T) {
	path := writeTestXLSX(t, testSheets, "Synthese", "Notes")

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Etablissement", "Ville", "DNB 2024"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lycée A", rows[0][0])
	assert.Equal(t, "85", rows[0][2])
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := writeTestXLSX(t, testSheets, "Synthese", "Notes")

	header, rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Notes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, header)
	assert.Empty(t, rows)

	header, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, header)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetName: "Absent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Absent" not found`)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_FileNotFound(t *testing.T) {
	_, _, err := ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestReadXLSXBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestWorkbook(t, testSheets, "Synthese").Write(&buf))

	header, rows, err := ReadXLSXBytes(buf.Bytes(), XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Etablissement", header[0])
	assert.Len(t, rows, 2)

	_, _, err = ReadXLSXBytes([]byte("not a workbook"), XLSXOptions{})
	assert.Error(t, err)
}
