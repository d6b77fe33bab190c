package model

// FieldStat holds the mean and sample standard deviation of one field's
// scores within a strategy group.
type FieldStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// StrategySummary aggregates all evaluations sharing a strategy identifier.
// Accuracy statistics cover only evaluations that had ground truth; cost and
// timing totals cover every evaluation seen for the strategy. Summaries are
// derived data, recomputable from the stored evaluations at any time.
type StrategySummary struct {
	StrategyID        string               `json:"strategy_id"`
	Count             int                  `json:"count"`     // evaluations with ground truth
	Evaluated         int                  `json:"evaluated"` // all evaluations seen
	MeanFieldAccuracy float64              `json:"mean_field_accuracy"`
	StdFieldAccuracy  float64              `json:"std_field_accuracy"`
	FieldStats        map[string]FieldStat `json:"field_stats,omitempty"`
	MathValidRate     float64              `json:"math_valid_rate"`
	OutputValidRate   float64              `json:"output_valid_rate"`
	MeanCompleteness  float64              `json:"mean_completeness"`
	TotalCost         float64              `json:"total_cost"`
	TotalTime         float64              `json:"total_time"`
	AvgTime           float64              `json:"avg_time"`
}
