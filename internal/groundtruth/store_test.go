package groundtruth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-eval/internal/model"
)

func writeGT(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGT(t, dir, "lidl_2024_03.json", `{
		"merchant_name": "Lidl",
		"date": "2024-03-15",
		"payment_method": "card",
		"total_amount": 53.94,
		"subtotal_amount": "45.80",
		"tax_amount": 8.14,
		"items": [{"description": "Milk", "quantity": 2, "unit_price": 3.5, "total": 7.0}]
	}`)
	writeGT(t, dir, "explicit.json", `{"receipt_id": "biedronka_2024_11", "merchant_name": "Biedronka"}`)
	writeGT(t, dir, "notes.txt", "ignored")

	store, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"biedronka_2024_11", "lidl_2024_03"}, store.IDs())

	// keyed by file stem when the field is absent
	rec, ok := store.Get("lidl_2024_03")
	require.True(t, ok)
	require.NotNil(t, rec.MerchantName)
	assert.Equal(t, "Lidl", *rec.MerchantName)
	require.NotNil(t, rec.SubtotalAmount)
	assert.InDelta(t, 45.80, *rec.SubtotalAmount, 1e-9)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, "Milk", rec.Items[0].Description)

	// keyed by the explicit receipt_id field when present
	assert.NotNil(t, store.Lookup("biedronka_2024_11"))
	assert.Nil(t, store.Lookup("explicit"))
	assert.Nil(t, store.Lookup("unknown"))
}

func TestLoad_DuplicateReceipt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGT(t, dir, "r1.json", `{"merchant_name": "Lidl"}`)
	writeGT(t, dir, "other.json", `{"receipt_id": "r1", "merchant_name": "Aldi"}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate receipt "r1"`)
}

func TestLoad_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ground truth files")
}

func TestLoad_Malformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeGT(t, dir, "bad.json", `{"merchant_name": `)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal bad.json")
}

func TestWriteDir_Roundtrip(t *testing.T) {
	t.Parallel()

	records := Generate(GenerateOptions{Count: 3, Seed: 7})
	dir := filepath.Join(t.TempDir(), "fixtures")
	require.NoError(t, WriteDir(dir, records))

	store, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, store.Len())

	got, ok := store.Get(records[0].ReceiptID)
	require.True(t, ok)
	assert.Equal(t, records[0].Receipt, got)
}

func TestWriteDir_RejectsBadIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := WriteDir(dir, []Record{{ReceiptID: "a/b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid file name")

	err = WriteDir(dir, []Record{{}})
	require.Error(t, err)
}

func TestNew_SortsIDs(t *testing.T) {
	t.Parallel()

	store := New(map[string]model.Receipt{"b": {}, "a": {}, "c": {}})
	assert.Equal(t, []string{"a", "b", "c"}, store.IDs())
}
