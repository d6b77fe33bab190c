// Package rank orders strategies by aggregate or per-receipt score with
// deterministic tie-breaking.
package rank

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/aggregate"
	"github.com/sells-group/receipt-eval/internal/model"
)

// Metric selects which summary statistic a ranking is ordered by.
type Metric string

const (
	MetricAccuracy     Metric = "mean_field_accuracy"
	MetricMathValid    Metric = "math_valid_rate"
	MetricOutputValid  Metric = "output_valid_rate"
	MetricCompleteness Metric = "completeness"
	MetricAvgTime      Metric = "avg_time"
)

// ParseMetric maps a flag value onto a known Metric.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricAccuracy, MetricMathValid, MetricOutputValid, MetricCompleteness, MetricAvgTime:
		return m, nil
	case "":
		return MetricAccuracy, nil
	default:
		return "", eris.Errorf("rank: unknown metric %q", s)
	}
}

// ascending reports whether lower values rank first for this metric.
func (m Metric) ascending() bool {
	return m == MetricAvgTime
}

func (m Metric) value(s model.StrategySummary) float64 {
	switch m {
	case MetricMathValid:
		return s.MathValidRate
	case MetricOutputValid:
		return s.OutputValidRate
	case MetricCompleteness:
		return s.MeanCompleteness
	case MetricAvgTime:
		return s.AvgTime
	default:
		return s.MeanFieldAccuracy
	}
}

// Entry is one row of a ranking.
type Entry struct {
	StrategyID string  `json:"strategy_id"`
	Value      float64 `json:"value"`
}

// Rank orders strategies by the chosen metric. Ties are broken by ascending
// strategy ID so the output is stable across map iteration order.
func Rank(summaries map[string]model.StrategySummary, metric Metric) []Entry {
	entries := make([]Entry, 0, len(summaries))
	for id, s := range summaries {
		entries = append(entries, Entry{StrategyID: id, Value: metric.value(s)})
	}
	sortEntries(entries, metric.ascending())
	return entries
}

// Best returns the top-ranked strategy. An empty summary map is a caller
// error and fails loudly rather than returning a zero Entry.
func Best(summaries map[string]model.StrategySummary, metric Metric) (Entry, error) {
	if len(summaries) == 0 {
		return Entry{}, &aggregate.EmptyInputError{Op: "rank"}
	}
	return Rank(summaries, metric)[0], nil
}

// RankReceipt orders strategies by their overall score on a single receipt.
// Evaluations for other receipts and evaluations without ground truth are
// skipped.
func RankReceipt(evals []model.Evaluation, receiptID string) []Entry {
	var entries []Entry
	for _, e := range evals {
		if e.ReceiptID != receiptID || e.NoGroundTruth {
			continue
		}
		entries = append(entries, Entry{StrategyID: e.StrategyID, Value: e.Overall})
	}
	sortEntries(entries, false)
	return entries
}

// ReceiptWinners maps each receipt to the strategy that scored highest on it.
// Receipts with no scorable evaluations are omitted.
func ReceiptWinners(evals []model.Evaluation) map[string]string {
	seen := make(map[string]struct{})
	winners := make(map[string]string)
	for _, e := range evals {
		if _, ok := seen[e.ReceiptID]; ok {
			continue
		}
		seen[e.ReceiptID] = struct{}{}
		if ranked := RankReceipt(evals, e.ReceiptID); len(ranked) > 0 {
			winners[e.ReceiptID] = ranked[0].StrategyID
		}
	}
	return winners
}

func sortEntries(entries []Entry, ascending bool) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			if ascending {
				return entries[i].Value < entries[j].Value
			}
			return entries[i].Value > entries[j].Value
		}
		return entries[i].StrategyID < entries[j].StrategyID
	})
}
