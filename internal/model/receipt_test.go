package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string   { return &s }
func numPtr(f float64) *float64 { return &f }

func TestReceipt_Field(t *testing.T) {
	t.Parallel()

	r := Receipt{
		MerchantName:   strPtr("Lidl"),
		TotalAmount:    numPtr(53.94),
		SubtotalAmount: numPtr(45.80),
		Items:          []LineItem{{Description: "milk"}, {Description: "bread"}},
	}

	t.Run("present string field", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "Lidl", r.Field(FieldMerchantName))
	})

	t.Run("present money field", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 53.94, r.Field(FieldTotalAmount))
	})

	t.Run("items yields count", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 2, r.Field(FieldItems))
	})

	t.Run("absent field yields nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, r.Field(FieldDate))
		assert.Nil(t, r.Field(FieldPaymentMethod))
	})

	t.Run("unknown field yields nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, r.Field("tip_amount"))
	})
}

func TestReceipt_ItemCount(t *testing.T) {
	t.Parallel()

	t.Run("nil items absent", func(t *testing.T) {
		t.Parallel()
		n, ok := Receipt{}.ItemCount()
		assert.False(t, ok)
		assert.Zero(t, n)
	})

	t.Run("empty list present with zero", func(t *testing.T) {
		t.Parallel()
		n, ok := Receipt{Items: []LineItem{}}.ItemCount()
		assert.True(t, ok)
		assert.Zero(t, n)
	})

	t.Run("counts entries", func(t *testing.T) {
		t.Parallel()
		n, ok := Receipt{Items: make([]LineItem, 7)}.ItemCount()
		assert.True(t, ok)
		assert.Equal(t, 7, n)
	})
}

func TestFieldNames_Order(t *testing.T) {
	t.Parallel()

	want := []string{
		"merchant_name", "date", "payment_method",
		"total_amount", "subtotal_amount", "items",
	}
	assert.Equal(t, want, FieldNames())
}

func TestEvaluation_ScoreFor(t *testing.T) {
	t.Parallel()

	e := Evaluation{Scores: []FieldScore{
		{Field: FieldMerchantName, Score: 1.0},
		{Field: FieldTotalAmount, Score: 0.9},
	}}

	fs, ok := e.ScoreFor(FieldTotalAmount)
	assert.True(t, ok)
	assert.Equal(t, 0.9, fs.Score)

	_, ok = e.ScoreFor(FieldDate)
	assert.False(t, ok)
}
