// Package aggregate reduces record evaluations into per-strategy summary
// statistics. The reduction keeps only sums, counts and sums-of-squares, so
// it is order-independent: shards evaluated in parallel merge into the same
// result as a single sequential pass.
package aggregate

import (
	"math"

	"github.com/sells-group/receipt-eval/internal/model"
)

// fieldAccum collects sums for one field within one strategy group.
type fieldAccum struct {
	n     int
	sum   float64
	sumSq float64
}

// groupAccum collects sums for one strategy. Accuracy statistics run over
// evaluations that had ground truth; cost, time, output validity and
// completeness run over every evaluation seen, so operational totals stay
// honest even when ground truth is sparse.
type groupAccum struct {
	// accuracy pass (ground truth present)
	n         int
	sum       float64
	sumSq     float64
	mathValid int
	fields    map[string]*fieldAccum

	// operational pass (all evaluations)
	all             int
	outputValid     int
	completenessSum float64
	totalCost       float64
	totalTime       float64
}

// Accumulator builds per-strategy summaries incrementally. Use one per
// goroutine and Merge the shards; Add and Merge are not safe for concurrent
// use on the same instance.
type Accumulator struct {
	groups map[string]*groupAccum
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{groups: make(map[string]*groupAccum)}
}

// Size returns the number of evaluations absorbed so far.
func (a *Accumulator) Size() int {
	total := 0
	for _, g := range a.groups {
		total += g.all
	}
	return total
}

// Add absorbs one evaluation into its strategy group.
func (a *Accumulator) Add(eval model.Evaluation) {
	g := a.group(eval.StrategyID)

	g.all++
	if eval.OutputValid {
		g.outputValid++
	}
	g.completenessSum += eval.Completeness
	g.totalCost += eval.Cost
	g.totalTime += eval.ProcessingTime

	// Flagged evaluations carry no scores; counting them here would silently
	// drag accuracy toward zero.
	if eval.NoGroundTruth {
		return
	}

	g.n++
	g.sum += eval.Overall
	g.sumSq += eval.Overall * eval.Overall
	if eval.MathValid {
		g.mathValid++
	}
	for _, fs := range eval.Scores {
		fa := g.fields[fs.Field]
		if fa == nil {
			fa = &fieldAccum{}
			g.fields[fs.Field] = fa
		}
		fa.n++
		fa.sum += fs.Score
		fa.sumSq += fs.Score * fs.Score
	}
}

// Merge folds another accumulator into this one. Commutative and
// associative: shard order never changes the result.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for id, og := range other.groups {
		g := a.group(id)
		g.n += og.n
		g.sum += og.sum
		g.sumSq += og.sumSq
		g.mathValid += og.mathValid
		g.all += og.all
		g.outputValid += og.outputValid
		g.completenessSum += og.completenessSum
		g.totalCost += og.totalCost
		g.totalTime += og.totalTime
		for name, ofa := range og.fields {
			fa := g.fields[name]
			if fa == nil {
				fa = &fieldAccum{}
				g.fields[name] = fa
			}
			fa.n += ofa.n
			fa.sum += ofa.sum
			fa.sumSq += ofa.sumSq
		}
	}
}

// Summaries materializes the per-strategy summaries accumulated so far.
func (a *Accumulator) Summaries() map[string]model.StrategySummary {
	out := make(map[string]model.StrategySummary, len(a.groups))
	for id, g := range a.groups {
		out[id] = g.summary(id)
	}
	return out
}

func (a *Accumulator) group(id string) *groupAccum {
	g := a.groups[id]
	if g == nil {
		g = &groupAccum{fields: make(map[string]*fieldAccum)}
		a.groups[id] = g
	}
	return g
}

func (g *groupAccum) summary(id string) model.StrategySummary {
	s := model.StrategySummary{
		StrategyID: id,
		Count:      g.n,
		Evaluated:  g.all,
		TotalCost:  g.totalCost,
		TotalTime:  g.totalTime,
	}

	if g.n > 0 {
		s.MeanFieldAccuracy = g.sum / float64(g.n)
		s.StdFieldAccuracy = sampleStd(g.n, g.sum, g.sumSq)
		s.MathValidRate = float64(g.mathValid) / float64(g.n)
		s.FieldStats = make(map[string]model.FieldStat, len(g.fields))
		for name, fa := range g.fields {
			s.FieldStats[name] = model.FieldStat{
				Mean: fa.sum / float64(fa.n),
				Std:  sampleStd(fa.n, fa.sum, fa.sumSq),
			}
		}
	}

	if g.all > 0 {
		s.OutputValidRate = float64(g.outputValid) / float64(g.all)
		s.MeanCompleteness = g.completenessSum / float64(g.all)
		s.AvgTime = g.totalTime / float64(g.all)
	}

	return s
}

// sampleStd computes the sample standard deviation from running sums.
// A single observation has no spread: n <= 1 yields 0, never NaN.
func sampleStd(n int, sum, sumSq float64) float64 {
	if n <= 1 {
		return 0
	}
	variance := (sumSq - sum*sum/float64(n)) / float64(n-1)
	if variance < 0 {
		// floating-point cancellation on near-identical scores
		return 0
	}
	return math.Sqrt(variance)
}

// Aggregate reduces a finite batch of evaluations into per-strategy
// summaries. Zero evaluations is a usage error, not a data state.
func Aggregate(evals []model.Evaluation) (map[string]model.StrategySummary, error) {
	if len(evals) == 0 {
		return nil, &EmptyInputError{Op: "aggregate"}
	}
	acc := NewAccumulator()
	for _, eval := range evals {
		acc.Add(eval)
	}
	return acc.Summaries(), nil
}
