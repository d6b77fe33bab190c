package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-eval/internal/model"
)

// fixtureEvals: three scored evaluations plus one flagged no-ground-truth for
// v1, and a single evaluation for v2.
func fixtureEvals() []model.Evaluation {
	return []model.Evaluation{
		{
			ReceiptID: "r1", StrategyID: "v1", Overall: 0.8, MathValid: true,
			OutputValid: true, Completeness: 1.0, Cost: 0.001, ProcessingTime: 1.0,
			Scores: []model.FieldScore{{Field: "merchant_name", Score: 1.0}},
		},
		{
			ReceiptID: "r2", StrategyID: "v1", Overall: 0.9, MathValid: false,
			OutputValid: true, Completeness: 1.0, Cost: 0.001, ProcessingTime: 2.0,
			Scores: []model.FieldScore{{Field: "merchant_name", Score: 0.5}},
		},
		{
			ReceiptID: "r3", StrategyID: "v1", Overall: 1.0, MathValid: true,
			OutputValid: true, Completeness: 0.5, Cost: 0.001, ProcessingTime: 3.0,
			Scores: []model.FieldScore{{Field: "merchant_name", Score: 0.75}},
		},
		{
			ReceiptID: "r4", StrategyID: "v1", NoGroundTruth: true,
			OutputValid: false, Completeness: 0.5, Cost: 0.004, ProcessingTime: 4.0,
		},
		{
			ReceiptID: "r1", StrategyID: "v2", Overall: 0.7, MathValid: false,
			OutputValid: true, Completeness: 1.0, Cost: 0.002, ProcessingTime: 5.0,
			Scores: []model.FieldScore{{Field: "merchant_name", Score: 0.7}},
		},
	}
}

func TestAggregate_Summaries(t *testing.T) {
	t.Parallel()

	summaries, err := Aggregate(fixtureEvals())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	v1 := summaries["v1"]
	assert.Equal(t, 3, v1.Count)
	assert.Equal(t, 4, v1.Evaluated)

	// mean of 0.8, 0.9, 1.0
	assert.InDelta(t, 0.9, v1.MeanFieldAccuracy, 1e-9)
	// sample std: sqrt((0.01 + 0 + 0.01) / 2) = 0.1
	assert.InDelta(t, 0.1, v1.StdFieldAccuracy, 1e-9)
	// 2 of 3 scored evaluations add up
	assert.InDelta(t, 2.0/3.0, v1.MathValidRate, 1e-9)

	// operational totals include the flagged evaluation
	assert.InDelta(t, 0.007, v1.TotalCost, 1e-9)
	assert.InDelta(t, 10.0, v1.TotalTime, 1e-9)
	assert.InDelta(t, 2.5, v1.AvgTime, 1e-9)
	assert.InDelta(t, 0.75, v1.OutputValidRate, 1e-9)
	assert.InDelta(t, 0.75, v1.MeanCompleteness, 1e-9)

	// per-field stats: 1.0, 0.5, 0.75 → mean 0.75, sample std 0.25
	require.Contains(t, v1.FieldStats, "merchant_name")
	assert.InDelta(t, 0.75, v1.FieldStats["merchant_name"].Mean, 1e-9)
	assert.InDelta(t, 0.25, v1.FieldStats["merchant_name"].Std, 1e-9)
}

func TestAggregate_SingleEvaluationHasZeroStd(t *testing.T) {
	t.Parallel()

	summaries, err := Aggregate(fixtureEvals())
	require.NoError(t, err)

	v2 := summaries["v2"]
	assert.Equal(t, 1, v2.Count)
	assert.InDelta(t, 0.7, v2.MeanFieldAccuracy, 1e-9)
	// one observation: no spread, and definitely no NaN
	assert.Zero(t, v2.StdFieldAccuracy)
	assert.Zero(t, v2.FieldStats["merchant_name"].Std)
}

func TestAggregate_ShuffleInvariant(t *testing.T) {
	t.Parallel()

	base, err := Aggregate(fixtureEvals())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for range 10 {
		shuffled := fixtureEvals()
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got, err := Aggregate(shuffled)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	}
}

func TestAggregate_NoGroundTruthExcludedFromAccuracy(t *testing.T) {
	t.Parallel()

	evals := []model.Evaluation{
		{ReceiptID: "r1", StrategyID: "v1", Overall: 1.0, OutputValid: true},
		{ReceiptID: "r2", StrategyID: "v1", NoGroundTruth: true, OutputValid: true},
	}

	summaries, err := Aggregate(evals)
	require.NoError(t, err)

	v1 := summaries["v1"]
	// the flagged evaluation must not drag the mean toward zero
	assert.InDelta(t, 1.0, v1.MeanFieldAccuracy, 1e-9)
	assert.Equal(t, 1, v1.Count)
	assert.Equal(t, 2, v1.Evaluated)
}

func TestAggregate_OnlyFlaggedEvaluations(t *testing.T) {
	t.Parallel()

	evals := []model.Evaluation{
		{ReceiptID: "r1", StrategyID: "v1", NoGroundTruth: true, Cost: 0.01, ProcessingTime: 2.0},
	}

	summaries, err := Aggregate(evals)
	require.NoError(t, err)

	v1 := summaries["v1"]
	assert.Zero(t, v1.Count)
	assert.Zero(t, v1.MeanFieldAccuracy)
	assert.Nil(t, v1.FieldStats)
	// operational totals still present
	assert.Equal(t, 1, v1.Evaluated)
	assert.InDelta(t, 0.01, v1.TotalCost, 1e-9)
	assert.InDelta(t, 2.0, v1.AvgTime, 1e-9)
}

func TestAggregate_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Aggregate(nil)
	require.Error(t, err)
	assert.True(t, IsEmptyInput(err))
	assert.Contains(t, err.Error(), "empty input")
}

func TestAccumulator_MergeMatchesSequential(t *testing.T) {
	t.Parallel()

	evals := fixtureEvals()

	sequential := NewAccumulator()
	for _, e := range evals {
		sequential.Add(e)
	}

	// split into shards, merge in reverse order
	shardA, shardB := NewAccumulator(), NewAccumulator()
	for i, e := range evals {
		if i%2 == 0 {
			shardA.Add(e)
		} else {
			shardB.Add(e)
		}
	}
	merged := NewAccumulator()
	merged.Merge(shardB)
	merged.Merge(shardA)

	assert.Equal(t, sequential.Summaries(), merged.Summaries())
	assert.Equal(t, sequential.Size(), merged.Size())
}

func TestAccumulator_MergeNil(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	acc.Add(model.Evaluation{StrategyID: "v1", Overall: 0.5})
	acc.Merge(nil)
	assert.Equal(t, 1, acc.Size())
}

func TestIsEmptyInput_OtherErrors(t *testing.T) {
	t.Parallel()

	assert.False(t, IsEmptyInput(nil))
	assert.False(t, IsEmptyInput(assert.AnError))
}
