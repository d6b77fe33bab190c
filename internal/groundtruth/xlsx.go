package groundtruth

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-eval/internal/model"
)

// ImportOptions configures the XLSX importer.
type ImportOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ImportXLSX reads verified receipts from a spreadsheet, one receipt per
// row. The first row must be a header naming receipt fields; a receipt_id
// column is required, unrecognized columns are ignored. The items column
// holds semicolon-separated descriptions.
func ImportXLSX(path string, opts ImportOptions) ([]Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "groundtruth: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("groundtruth: xlsx sheet is empty")
	}

	columns := make(map[int]string)
	for i, name := range rowToStrings(sheet.Rows[0]) {
		switch name = strings.ToLower(strings.TrimSpace(name)); name {
		case "receipt_id", model.FieldMerchantName, model.FieldDate, model.FieldPaymentMethod,
			model.FieldTotalAmount, model.FieldSubtotalAmount, "tax_amount", model.FieldItems:
			columns[i] = name
		}
	}
	hasID := false
	for _, name := range columns {
		if name == "receipt_id" {
			hasID = true
		}
	}
	if !hasID {
		return nil, eris.New("groundtruth: xlsx header has no receipt_id column")
	}

	var records []Record
	for rowNum, row := range sheet.Rows[1:] {
		raw := make(map[string]any, len(columns))
		var id, itemsCell string
		for i, cell := range rowToStrings(row) {
			name, mapped := columns[i]
			cell = strings.TrimSpace(cell)
			if !mapped || cell == "" {
				continue
			}
			switch name {
			case "receipt_id":
				id = cell
			case model.FieldItems:
				itemsCell = cell
			default:
				raw[name] = cell
			}
		}

		if id == "" {
			// trailing blank rows are normal, rows with data but no ID are not
			if len(raw) > 0 || itemsCell != "" {
				zap.L().Warn("skipping xlsx row without receipt id",
					zap.String("file", path),
					zap.Int("row", rowNum+2))
			}
			continue
		}

		rec := Record{ReceiptID: id, Receipt: model.DecodeReceipt(raw)}
		rec.Items = parseItemsCell(itemsCell)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, eris.New("groundtruth: xlsx contains no receipt rows")
	}
	return records, nil
}

// parseItemsCell splits "Milk; Bread; Coffee" into bare line items.
func parseItemsCell(cell string) []model.LineItem {
	if cell == "" {
		return nil
	}
	var items []model.LineItem
	for _, part := range strings.Split(cell, ";") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, model.LineItem{Description: part})
		}
	}
	return items
}

func getSheet(f *xlsx.File, opts ImportOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("groundtruth: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("groundtruth: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
