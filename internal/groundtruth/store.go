// Package groundtruth loads and serves hand-verified receipt records. One
// JSON file per receipt, flat field layout, keyed by an explicit receipt_id
// or by the file stem when the field is absent.
package groundtruth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/model"
)

// Record pairs a receipt identifier with its verified contents. The embedded
// receipt marshals flat, so a Record is exactly the on-disk file layout.
type Record struct {
	ReceiptID string `json:"receipt_id"`
	model.Receipt
}

// Store is an immutable in-memory index of ground-truth records.
type Store struct {
	records map[string]model.Receipt
	ids     []string
}

// New builds a store from an already-decoded record map.
func New(records map[string]model.Receipt) *Store {
	s := &Store{records: make(map[string]model.Receipt, len(records))}
	for id, r := range records {
		s.records[id] = r
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)
	return s
}

// Load reads every *.json file in dir. Field values are coerced the same way
// extraction output is, so a hand-typed "45,80 zł" still parses. A directory
// with no ground truth at all is a setup error and fails loudly.
func Load(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "groundtruth: read directory")
	}

	records := make(map[string]model.Receipt)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, eris.Wrap(err, "groundtruth: read file")
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "groundtruth: unmarshal %s", entry.Name())
		}

		id, ok := model.CoerceString(raw["receipt_id"])
		if !ok {
			id = strings.TrimSuffix(entry.Name(), ".json")
		}
		if _, dup := records[id]; dup {
			return nil, eris.Errorf("groundtruth: duplicate receipt %q", id)
		}
		records[id] = model.DecodeReceipt(raw)
	}

	if len(records) == 0 {
		return nil, eris.Errorf("groundtruth: no ground truth files in %s", dir)
	}
	return New(records), nil
}

// Get returns the record for a receipt ID.
func (s *Store) Get(id string) (model.Receipt, bool) {
	r, ok := s.records[id]
	return r, ok
}

// Lookup returns a pointer to the record, or nil when the receipt has no
// ground truth. The nil return feeds straight into evaluation, which flags
// rather than fails on missing truth.
func (s *Store) Lookup(id string) *model.Receipt {
	if r, ok := s.records[id]; ok {
		return &r
	}
	return nil
}

// IDs returns all receipt IDs in sorted order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *Store) Len() int {
	return len(s.records)
}

// WriteDir writes one JSON file per record into dir, creating it if needed.
// Used by the fixture generator and the XLSX importer.
func WriteDir(dir string, records []Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "groundtruth: create directory")
	}

	for _, rec := range records {
		if rec.ReceiptID == "" || rec.ReceiptID != filepath.Base(rec.ReceiptID) {
			return eris.Errorf("groundtruth: receipt id %q is not a valid file name", rec.ReceiptID)
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return eris.Wrapf(err, "groundtruth: marshal %s", rec.ReceiptID)
		}
		path := filepath.Join(dir, rec.ReceiptID+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrapf(err, "groundtruth: write %s", rec.ReceiptID)
		}
	}
	return nil
}
