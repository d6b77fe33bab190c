// Package evaluate applies the field scorer across the receipt schema,
// turning one extracted record plus its ground truth into a scored
// evaluation.
package evaluate

import (
	"math"
	"time"

	"github.com/sells-group/receipt-eval/internal/model"
	"github.com/sells-group/receipt-eval/internal/scorer"
)

// DefaultTolerance is the math-validation tolerance: subtotal plus tax must
// land within a cent of the printed total.
const DefaultTolerance = 0.01

// Meta carries per-extraction operational metadata supplied by the pipeline.
type Meta struct {
	ProcessingTime float64 // seconds
	Cost           float64 // USD
	OutputValid    bool    // extraction produced parseable output
}

// Evaluator scores extracted receipts against ground truth over a fixed
// schema. Construct once and share; it holds no mutable state.
type Evaluator struct {
	scorer    *scorer.FieldScorer
	schema    []scorer.FieldSpec
	tolerance float64
}

// New builds an Evaluator for the given schema. A tolerance <= 0 falls back
// to DefaultTolerance. The schema is validated here so scoring itself never
// has to fail.
func New(schema []scorer.FieldSpec, tolerance float64) (*Evaluator, error) {
	if err := scorer.ValidateSchema(schema); err != nil {
		return nil, err
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Evaluator{
		scorer:    scorer.New(),
		schema:    schema,
		tolerance: tolerance,
	}, nil
}

// Evaluate scores one extracted record for one (receipt, strategy) pair.
// A nil ground truth yields an evaluation flagged NoGroundTruth with an
// empty score set; callers must check the flag before feeding accuracy
// aggregates. Never errors: data quality is absorbed into scores.
func (e *Evaluator) Evaluate(receiptID, strategyID string, extracted model.Receipt, truth *model.Receipt, meta Meta) model.Evaluation {
	eval := model.Evaluation{
		ReceiptID:      receiptID,
		StrategyID:     strategyID,
		MathValid:      e.mathValid(extracted),
		OutputValid:    meta.OutputValid,
		Completeness:   e.completeness(extracted),
		ProcessingTime: meta.ProcessingTime,
		Cost:           meta.Cost,
		EvaluatedAt:    time.Now().UTC(),
	}

	if truth == nil {
		eval.NoGroundTruth = true
		return eval
	}

	eval.Scores = make([]model.FieldScore, 0, len(e.schema))
	var sum float64
	for _, spec := range e.schema {
		ev := extracted.Field(spec.Name)
		gv := truth.Field(spec.Name)
		s := e.scorer.Score(spec, ev, gv)
		sum += s
		eval.Scores = append(eval.Scores, model.FieldScore{
			Field:       spec.Name,
			Score:       s,
			Extracted:   ev,
			GroundTruth: gv,
		})
	}

	// Flat unweighted mean: every field counts the same, business-critical
	// or not.
	eval.Overall = sum / float64(len(e.schema))

	return eval
}

// mathValid checks subtotal + tax ≈ total on the extracted record. Missing
// amounts default to zero for this check only; the default never leaks into
// field scoring.
func (e *Evaluator) mathValid(r model.Receipt) bool {
	var subtotal, tax, total float64
	if r.SubtotalAmount != nil {
		subtotal = *r.SubtotalAmount
	}
	if r.TaxAmount != nil {
		tax = *r.TaxAmount
	}
	if r.TotalAmount != nil {
		total = *r.TotalAmount
	}
	return math.Abs((subtotal+tax)-total) < e.tolerance
}

// completeness is the fraction of schema fields the extraction populated.
func (e *Evaluator) completeness(r model.Receipt) float64 {
	present := 0
	for _, spec := range e.schema {
		if r.Field(spec.Name) != nil {
			present++
		}
	}
	return float64(present) / float64(len(e.schema))
}
