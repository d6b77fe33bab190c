package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-eval/internal/model"
	"github.com/sells-group/receipt-eval/internal/scorer"
)

func strPtr(s string) *string   { return &s }
func numPtr(f float64) *float64 { return &f }

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := New(scorer.DefaultSchema(), DefaultTolerance)
	require.NoError(t, err)
	return e
}

// lidlTruth is the reference receipt used across scenarios: 7 items,
// 45.80 subtotal, 53.94 total.
func lidlTruth() model.Receipt {
	return model.Receipt{
		MerchantName:   strPtr("Lidl"),
		Date:           strPtr("2025-05-26"),
		TotalAmount:    numPtr(53.94),
		SubtotalAmount: numPtr(45.80),
		Items:          make([]model.LineItem, 7),
	}
}

func TestEvaluate_PerfectExtraction(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t)

	truth := lidlTruth()
	extracted := lidlTruth()
	extracted.PaymentMethod = strPtr("card")

	eval := e.Evaluate("receipt-001", "gpt4o_mini", extracted, &truth, Meta{OutputValid: true})

	assert.Equal(t, "receipt-001", eval.ReceiptID)
	assert.Equal(t, "gpt4o_mini", eval.StrategyID)
	assert.False(t, eval.NoGroundTruth)
	require.Len(t, eval.Scores, 6)

	// Ground truth has no payment_method, so the extraction's "card" scores
	// against the empty string and misses completely. Every other field
	// matches exactly.
	for _, fs := range eval.Scores {
		if fs.Field == model.FieldPaymentMethod {
			assert.InDelta(t, 0.0, fs.Score, 1e-9)
			continue
		}
		assert.InDelta(t, 1.0, fs.Score, 1e-9, "field %s", fs.Field)
	}

	// 5 perfect fields + 1 zero over 6 fields
	assert.InDelta(t, 5.0/6.0, eval.Overall, 1e-9)

	// 45.80 + 0 tax is nowhere near 53.94
	assert.False(t, eval.MathValid)
}

func TestEvaluate_PerfectWithTax(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t)

	truth := lidlTruth()
	truth.PaymentMethod = strPtr("card")

	extracted := lidlTruth()
	extracted.PaymentMethod = strPtr("card")
	extracted.TaxAmount = numPtr(8.14)

	eval := e.Evaluate("receipt-001", "v4", extracted, &truth, Meta{OutputValid: true})

	for _, fs := range eval.Scores {
		assert.InDelta(t, 1.0, fs.Score, 1e-9, "field %s", fs.Field)
	}
	assert.InDelta(t, 1.0, eval.Overall, 1e-9)

	// 45.80 + 8.14 = 53.94 exactly
	assert.True(t, eval.MathValid)
}

func TestEvaluate_NoGroundTruth(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t)

	eval := e.Evaluate("receipt-999", "v1", lidlTruth(), nil, Meta{OutputValid: true})

	assert.True(t, eval.NoGroundTruth)
	assert.Empty(t, eval.Scores)
	assert.Zero(t, eval.Overall)
	// operational fields still carried for cost/time totals
	assert.True(t, eval.OutputValid)
}

func TestEvaluate_PartialExtraction(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t)

	truth := lidlTruth()
	// merchant differs only by case, total is ~10% off, items exact,
	// date and subtotal missing entirely
	extracted := model.Receipt{
		MerchantName: strPtr("LIDL"),
		TotalAmount:  numPtr(59.33),
		Items:        make([]model.LineItem, 7),
	}

	eval := e.Evaluate("receipt-002", "v2", extracted, &truth, Meta{})

	byField := make(map[string]float64, len(eval.Scores))
	for _, fs := range eval.Scores {
		byField[fs.Field] = fs.Score
	}

	assert.InDelta(t, 1.0, byField[model.FieldMerchantName], 1e-9)
	assert.InDelta(t, 1.0, byField[model.FieldItems], 1e-9)
	assert.InDelta(t, 0.90, byField[model.FieldTotalAmount], 0.001)
	// missing date scores as empty string against "2025-05-26"
	assert.InDelta(t, 0.0, byField[model.FieldDate], 1e-9)
	// subtotal missing → 0 vs 45.80
	assert.InDelta(t, 0.0, byField[model.FieldSubtotalAmount], 1e-9)

	// 3 of 6 schema fields populated
	assert.InDelta(t, 0.5, eval.Completeness, 1e-9)
}

func TestEvaluate_MathValidation(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t)

	tests := []struct {
		name     string
		subtotal *float64
		tax      *float64
		total    *float64
		want     bool
	}{
		{"adds up exactly", numPtr(45.80), numPtr(8.14), numPtr(53.94), true},
		{"within tolerance", numPtr(45.80), numPtr(8.14), numPtr(53.945), true},
		{"off by a cent and a half", numPtr(45.80), numPtr(8.14), numPtr(53.955), false},
		{"missing tax", numPtr(45.80), nil, numPtr(53.94), false},
		{"missing everything defaults to zero", nil, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := model.Receipt{SubtotalAmount: tt.subtotal, TaxAmount: tt.tax, TotalAmount: tt.total}
			eval := e.Evaluate("r", "s", r, nil, Meta{})
			assert.Equal(t, tt.want, eval.MathValid)
		})
	}
}

func TestEvaluate_InjectedTolerance(t *testing.T) {
	t.Parallel()

	loose, err := New(scorer.DefaultSchema(), 0.5)
	require.NoError(t, err)

	r := model.Receipt{
		SubtotalAmount: numPtr(45.80),
		TaxAmount:      numPtr(8.14),
		TotalAmount:    numPtr(54.20), // off by 0.26
	}
	assert.True(t, loose.Evaluate("r", "s", r, nil, Meta{}).MathValid)

	strict := newEvaluator(t)
	assert.False(t, strict.Evaluate("r", "s", r, nil, Meta{}).MathValid)
}

func TestEvaluate_MetaCarriedThrough(t *testing.T) {
	t.Parallel()
	e := newEvaluator(t)

	truth := lidlTruth()
	eval := e.Evaluate("r", "s", lidlTruth(), &truth, Meta{
		ProcessingTime: 1.42,
		Cost:           0.0023,
		OutputValid:    true,
	})

	assert.Equal(t, 1.42, eval.ProcessingTime)
	assert.Equal(t, 0.0023, eval.Cost)
	assert.True(t, eval.OutputValid)
	assert.False(t, eval.EvaluatedAt.IsZero())
}

func TestNew_InvalidSchema(t *testing.T) {
	t.Parallel()

	_, err := New(nil, DefaultTolerance)
	require.Error(t, err)

	_, err = New([]scorer.FieldSpec{{Name: "bogus", Kind: scorer.KindMoney}}, DefaultTolerance)
	require.Error(t, err)
}
