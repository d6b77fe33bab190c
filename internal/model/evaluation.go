package model

import "time"

// FieldScore is the scored comparison of one extracted field against its
// ground-truth counterpart. Raw values are retained for diagnostics.
type FieldScore struct {
	Field       string  `json:"field"`
	Score       float64 `json:"score"`
	Extracted   any     `json:"extracted,omitempty"`
	GroundTruth any     `json:"ground_truth,omitempty"`
}

// Evaluation is one receipt evaluated under one strategy. Immutable after
// creation.
type Evaluation struct {
	ReceiptID      string       `json:"receipt_id"`
	StrategyID     string       `json:"strategy_id"`
	Scores         []FieldScore `json:"scores,omitempty"`
	Overall        float64      `json:"overall"`
	MathValid      bool         `json:"math_valid"`
	NoGroundTruth  bool         `json:"no_ground_truth,omitempty"`
	OutputValid    bool         `json:"output_valid"`
	Completeness   float64      `json:"completeness"`
	ProcessingTime float64      `json:"processing_time,omitempty"` // seconds
	Cost           float64      `json:"cost,omitempty"`            // USD
	EvaluatedAt    time.Time    `json:"evaluated_at"`
}

// ScoreFor returns the FieldScore for the named field, if it was scored.
func (e Evaluation) ScoreFor(field string) (FieldScore, bool) {
	for _, fs := range e.Scores {
		if fs.Field == field {
			return fs, true
		}
	}
	return FieldScore{}, false
}
