package groundtruth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeSheet(t *testing.T, rows [][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("receipts")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, value := range cells {
			row.AddCell().Value = value
		}
	}

	path := filepath.Join(t.TempDir(), "receipts.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestImportXLSX(t *testing.T) {
	t.Parallel()

	// header, one good row, a trailing blank row, and a row with data but no
	// ID (skipped with a warning)
	path := writeSheet(t, [][]string{
		{"receipt_id", "merchant_name", "date", "total_amount", "subtotal_amount", "tax_amount", "payment_method", "items", "notes"},
		{"lidl_2024_03", "Lidl", "2024-03-15", "53.94", "45.80", "8.14", "card", "Milk; Bread", "verified by AK"},
		{},
		{"", "Żabka"},
	})

	records, err := ImportXLSX(path, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "lidl_2024_03", rec.ReceiptID)
	require.NotNil(t, rec.MerchantName)
	assert.Equal(t, "Lidl", *rec.MerchantName)
	require.NotNil(t, rec.TotalAmount)
	assert.InDelta(t, 53.94, *rec.TotalAmount, 1e-9)
	require.NotNil(t, rec.SubtotalAmount)
	assert.InDelta(t, 45.80, *rec.SubtotalAmount, 1e-9)
	require.NotNil(t, rec.TaxAmount)
	assert.InDelta(t, 8.14, *rec.TaxAmount, 1e-9)
	require.NotNil(t, rec.PaymentMethod)
	assert.Equal(t, "card", *rec.PaymentMethod)

	require.Len(t, rec.Items, 2)
	assert.Equal(t, "Milk", rec.Items[0].Description)
	assert.Equal(t, "Bread", rec.Items[1].Description)
}

func TestImportXLSX_SheetSelection(t *testing.T) {
	t.Parallel()

	path := writeSheet(t, [][]string{
		{"receipt_id", "merchant_name"},
		{"r1", "Lidl"},
	})

	records, err := ImportXLSX(path, ImportOptions{SheetName: "receipts"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = ImportXLSX(path, ImportOptions{SheetName: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "missing" not found`)

	_, err = ImportXLSX(path, ImportOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestImportXLSX_MissingIDColumn(t *testing.T) {
	t.Parallel()

	path := writeSheet(t, [][]string{
		{"merchant_name", "total_amount"},
		{"Lidl", "53.94"},
	})

	_, err := ImportXLSX(path, ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no receipt_id column")
}

func TestImportXLSX_NoRows(t *testing.T) {
	t.Parallel()

	path := writeSheet(t, [][]string{
		{"receipt_id", "merchant_name"},
	})

	_, err := ImportXLSX(path, ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no receipt rows")
}

func TestParseItemsCell(t *testing.T) {
	t.Parallel()

	items := parseItemsCell("Milk; Bread ;; Coffee")
	require.Len(t, items, 3)
	assert.Equal(t, "Bread", items[1].Description)

	assert.Nil(t, parseItemsCell(""))
}
