package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-eval/internal/aggregate"
	"github.com/sells-group/receipt-eval/internal/model"
)

func TestRank_DescendingByAccuracy(t *testing.T) {
	t.Parallel()

	summaries := map[string]model.StrategySummary{
		"gpt4o_mini":    {MeanFieldAccuracy: 0.91},
		"deepseek_r1":   {MeanFieldAccuracy: 0.87},
		"google_vision": {MeanFieldAccuracy: 0.95},
	}

	got := Rank(summaries, MetricAccuracy)
	require.Len(t, got, 3)
	assert.Equal(t, "google_vision", got[0].StrategyID)
	assert.Equal(t, "gpt4o_mini", got[1].StrategyID)
	assert.Equal(t, "deepseek_r1", got[2].StrategyID)
	assert.InDelta(t, 0.95, got[0].Value, 1e-9)
}

func TestRank_TieBrokenByAscendingID(t *testing.T) {
	t.Parallel()

	summaries := map[string]model.StrategySummary{
		"charlie": {MeanFieldAccuracy: 0.9},
		"alpha":   {MeanFieldAccuracy: 0.9},
		"bravo":   {MeanFieldAccuracy: 0.9},
	}

	got := Rank(summaries, MetricAccuracy)
	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].StrategyID)
	assert.Equal(t, "bravo", got[1].StrategyID)
	assert.Equal(t, "charlie", got[2].StrategyID)
}

func TestRank_AvgTimeRanksAscending(t *testing.T) {
	t.Parallel()

	summaries := map[string]model.StrategySummary{
		"slow": {AvgTime: 4.2},
		"fast": {AvgTime: 0.8},
	}

	got := Rank(summaries, MetricAvgTime)
	require.Len(t, got, 2)
	assert.Equal(t, "fast", got[0].StrategyID)
	assert.Equal(t, "slow", got[1].StrategyID)
}

func TestRank_MetricSelection(t *testing.T) {
	t.Parallel()

	summaries := map[string]model.StrategySummary{
		"a": {MeanFieldAccuracy: 0.5, MathValidRate: 0.9, OutputValidRate: 0.2, MeanCompleteness: 0.7},
		"b": {MeanFieldAccuracy: 0.8, MathValidRate: 0.1, OutputValidRate: 0.6, MeanCompleteness: 0.3},
	}

	assert.Equal(t, "b", Rank(summaries, MetricAccuracy)[0].StrategyID)
	assert.Equal(t, "a", Rank(summaries, MetricMathValid)[0].StrategyID)
	assert.Equal(t, "b", Rank(summaries, MetricOutputValid)[0].StrategyID)
	assert.Equal(t, "a", Rank(summaries, MetricCompleteness)[0].StrategyID)
}

func TestBest_ReturnsTopEntry(t *testing.T) {
	t.Parallel()

	summaries := map[string]model.StrategySummary{
		"a": {MeanFieldAccuracy: 0.5},
		"b": {MeanFieldAccuracy: 0.8},
	}

	best, err := Best(summaries, MetricAccuracy)
	require.NoError(t, err)
	assert.Equal(t, "b", best.StrategyID)
	assert.InDelta(t, 0.8, best.Value, 1e-9)
}

func TestBest_EmptyInputFailsLoudly(t *testing.T) {
	t.Parallel()

	_, err := Best(map[string]model.StrategySummary{}, MetricAccuracy)
	require.Error(t, err)
	assert.True(t, aggregate.IsEmptyInput(err))

	_, err = Best(nil, MetricAccuracy)
	require.Error(t, err)
	assert.True(t, aggregate.IsEmptyInput(err))
}

func TestRankReceipt(t *testing.T) {
	t.Parallel()

	evals := []model.Evaluation{
		{ReceiptID: "r1", StrategyID: "a", Overall: 0.7},
		{ReceiptID: "r1", StrategyID: "b", Overall: 0.9},
		{ReceiptID: "r1", StrategyID: "c", NoGroundTruth: true},
		{ReceiptID: "r2", StrategyID: "a", Overall: 1.0},
	}

	got := RankReceipt(evals, "r1")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].StrategyID)
	assert.Equal(t, "a", got[1].StrategyID)

	assert.Empty(t, RankReceipt(evals, "r9"))
}

func TestReceiptWinners(t *testing.T) {
	t.Parallel()

	evals := []model.Evaluation{
		{ReceiptID: "r1", StrategyID: "a", Overall: 0.7},
		{ReceiptID: "r1", StrategyID: "b", Overall: 0.9},
		{ReceiptID: "r2", StrategyID: "a", Overall: 0.95},
		{ReceiptID: "r2", StrategyID: "b", Overall: 0.6},
		{ReceiptID: "r3", StrategyID: "a", NoGroundTruth: true},
	}

	winners := ReceiptWinners(evals)
	assert.Equal(t, map[string]string{"r1": "b", "r2": "a"}, winners)
}

func TestParseMetric(t *testing.T) {
	t.Parallel()

	m, err := ParseMetric("math_valid_rate")
	require.NoError(t, err)
	assert.Equal(t, MetricMathValid, m)

	m, err = ParseMetric("  Mean_Field_Accuracy ")
	require.NoError(t, err)
	assert.Equal(t, MetricAccuracy, m)

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricAccuracy, m)

	_, err = ParseMetric("wins_per_dollar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric")
}
