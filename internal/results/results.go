// Package results loads the run files produced by the extraction pipeline:
// one JSON file per strategy, holding that strategy's output for every
// receipt in the test set plus the operational metadata recorded alongside.
package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/model"
)

// Extraction is one strategy's output for a single receipt.
type Extraction struct {
	ReceiptID      string         `json:"receipt_id"`
	Fields         map[string]any `json:"fields"`
	ProcessingTime float64        `json:"processing_time"`
	Cost           float64        `json:"cost"`
	TokensIn       int            `json:"tokens_in"`
	TokensOut      int            `json:"tokens_out"`
	Error          string         `json:"error,omitempty"`
}

// Receipt decodes the raw field map into the evaluation schema.
func (e Extraction) Receipt() model.Receipt {
	return model.DecodeReceipt(e.Fields)
}

// OutputValid reports whether the pipeline produced parseable output for this
// receipt. A recorded pipeline error or an empty field map counts as invalid.
func (e Extraction) OutputValid() bool {
	return e.Error == "" && len(e.Fields) > 0
}

// Run is the decoded contents of one results file.
type Run struct {
	StrategyID string       `json:"strategy_id"`
	Results    []Extraction `json:"results"`
}

// ByReceipt indexes the run's extractions by receipt ID. On duplicate IDs the
// later entry wins, matching how the pipeline overwrites retried receipts.
func (r Run) ByReceipt() map[string]Extraction {
	indexed := make(map[string]Extraction, len(r.Results))
	for _, e := range r.Results {
		indexed[e.ReceiptID] = e
	}
	return indexed
}

// LoadRun reads a single run file. A file without an explicit strategy_id
// takes its file stem as the strategy identifier.
func LoadRun(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, eris.Wrap(err, "results: read run file")
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, eris.Wrapf(err, "results: unmarshal run file %s", filepath.Base(path))
	}

	if run.StrategyID == "" {
		base := filepath.Base(path)
		run.StrategyID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return run, nil
}

// LoadDir loads every *.json run file in dir. os.ReadDir yields entries in
// file-name order, so the returned slice is deterministic.
func LoadDir(dir string) ([]Run, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "results: read run directory")
	}

	var runs []Run
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		run, err := LoadRun(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if len(runs) == 0 {
		return nil, eris.Errorf("results: no run files in %s", dir)
	}
	return runs, nil
}

// LoadPaths loads runs from a mix of files and directories, in argument
// order. Two runs claiming the same strategy ID is a caller error: silently
// keeping one would skew every aggregate downstream.
func LoadPaths(paths ...string) ([]Run, error) {
	var runs []Run
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, eris.Wrap(err, "results: stat run path")
		}
		if info.IsDir() {
			loaded, err := LoadDir(path)
			if err != nil {
				return nil, err
			}
			runs = append(runs, loaded...)
			continue
		}
		run, err := LoadRun(path)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	seen := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		if _, dup := seen[run.StrategyID]; dup {
			return nil, eris.Errorf("results: duplicate strategy %q across run files", run.StrategyID)
		}
		seen[run.StrategyID] = struct{}{}
	}
	return runs, nil
}
