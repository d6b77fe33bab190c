// Package agreement scores strategies against a baseline strategy's outputs
// instead of ground truth. The typical use is prompt tuning: pick the prompt
// that makes a cheap model behave most like the expensive model it is meant
// to replace, on receipts nobody has hand-labeled.
package agreement

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/aggregate"
	"github.com/sells-group/receipt-eval/internal/model"
	"github.com/sells-group/receipt-eval/internal/results"
	"github.com/sells-group/receipt-eval/internal/scorer"
)

// DefaultThreshold is the similarity above which a candidate output counts
// as matching the baseline.
const DefaultThreshold = 0.8

// Config selects the baseline strategy and the match threshold.
type Config struct {
	Baseline  string  `yaml:"baseline" mapstructure:"baseline"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// Score is one candidate's similarity to the baseline on one receipt.
type Score struct {
	ReceiptID  string  `json:"receipt_id"`
	StrategyID string  `json:"strategy_id"`
	Similarity float64 `json:"similarity"`
	Match      bool    `json:"match"`
}

// Summary aggregates a candidate's similarity across all baseline receipts.
type Summary struct {
	Count          int     `json:"count"`
	MeanSimilarity float64 `json:"mean_similarity"`
	MatchRate      float64 `json:"match_rate"`
}

// Report is the full outcome of an agreement evaluation.
type Report struct {
	Baseline  string             `json:"baseline"`
	Threshold float64            `json:"threshold"`
	Scores    []Score            `json:"scores"`
	Summaries map[string]Summary `json:"summaries"`
	Winners   map[string]string  `json:"winners"`
}

// Comparer computes record-level similarity between two raw field maps.
type Comparer struct {
	scorer *scorer.FieldScorer
}

func NewComparer() *Comparer {
	return &Comparer{scorer: scorer.New()}
}

// Compare returns the mean per-field similarity of candidate against
// baseline, in [0, 1]. The field set is taken from the baseline record:
// extra candidate keys do not count, and a key the candidate lacks scores
// against the empty string. Items are compared separately as the overlap of
// their description sets over the baseline set; raw_text is ignored.
func (c *Comparer) Compare(baseline, candidate map[string]any) float64 {
	if len(baseline) == 0 || len(candidate) == 0 {
		return 0
	}

	var sum float64
	var n int
	for key, baseVal := range baseline {
		if key == "items" || key == "raw_text" {
			continue
		}
		n++
		sum += c.scorer.Ratio(stringify(baseVal), stringify(candidate[key]))
	}

	if baseSet := descriptionSet(baseline["items"]); len(baseSet) > 0 {
		n++
		candSet := descriptionSet(candidate["items"])
		overlap := 0
		for d := range baseSet {
			if _, ok := candSet[d]; ok {
				overlap++
			}
		}
		sum += float64(overlap) / float64(len(baseSet))
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Evaluate scores every candidate run against the baseline run, receipt by
// receipt. The receipt set is the baseline's: a receipt the candidate never
// produced output for scores zero rather than being skipped, since absence
// is the strongest form of disagreement.
func Evaluate(runs []results.Run, cfg Config) (Report, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}

	var baseline *results.Run
	var candidates []results.Run
	for i := range runs {
		if runs[i].StrategyID == cfg.Baseline {
			baseline = &runs[i]
			continue
		}
		candidates = append(candidates, runs[i])
	}
	if baseline == nil {
		return Report{}, eris.Errorf("agreement: baseline strategy %q not among loaded runs", cfg.Baseline)
	}
	if len(candidates) == 0 || len(baseline.Results) == 0 {
		return Report{}, &aggregate.EmptyInputError{Op: "agreement"}
	}

	// ascending candidate order makes the score listing deterministic and
	// lets ties keep the lexically first winner
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StrategyID < candidates[j].StrategyID
	})

	type indexedRun struct {
		id        string
		byReceipt map[string]results.Extraction
	}
	indexed := make([]indexedRun, len(candidates))
	for i, cand := range candidates {
		indexed[i] = indexedRun{id: cand.StrategyID, byReceipt: cand.ByReceipt()}
	}

	comparer := NewComparer()
	report := Report{
		Baseline:  cfg.Baseline,
		Threshold: cfg.Threshold,
		Summaries: make(map[string]Summary, len(candidates)),
		Winners:   make(map[string]string, len(baseline.Results)),
	}

	sums := make(map[string]float64, len(candidates))
	matches := make(map[string]int, len(candidates))
	counts := make(map[string]int, len(candidates))

	for _, base := range baseline.Results {
		winner := ""
		best := -1.0
		for _, cand := range indexed {
			sim := 0.0
			if ext, ok := cand.byReceipt[base.ReceiptID]; ok {
				sim = comparer.Compare(base.Fields, ext.Fields)
			}
			score := Score{
				ReceiptID:  base.ReceiptID,
				StrategyID: cand.id,
				Similarity: sim,
				Match:      sim >= cfg.Threshold,
			}
			report.Scores = append(report.Scores, score)

			sums[cand.id] += sim
			counts[cand.id]++
			if score.Match {
				matches[cand.id]++
			}
			if sim > best {
				best = sim
				winner = cand.id
			}
		}
		report.Winners[base.ReceiptID] = winner
	}

	for id, n := range counts {
		report.Summaries[id] = Summary{
			Count:          n,
			MeanSimilarity: sums[id] / float64(n),
			MatchRate:      float64(matches[id]) / float64(n),
		}
	}
	return report, nil
}

// stringify renders a field value the way it would appear in output: floats
// without trailing zeros, bools lowercased, nil and nested structures empty.
func stringify(v any) string {
	s, ok := model.CoerceString(v)
	if !ok {
		return ""
	}
	return s
}

// descriptionSet lowercases the description of every line item. Items with
// no description contribute the empty string, which the candidate still has
// to reproduce.
func descriptionSet(v any) map[string]struct{} {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		set[scorer.Normalize(stringify(m["description"]))] = struct{}{}
	}
	return set
}
