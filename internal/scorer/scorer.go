package scorer

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/receipt-eval/internal/model"
)

// FieldScorer scores one extracted field value against its ground-truth
// counterpart. Pure: no I/O, no logging, no shared mutable state, so a single
// instance is safe across concurrent evaluations.
type FieldScorer struct {
	params *levenshtein.Params
}

// New returns a FieldScorer. Substitution cost 2 makes the Levenshtein
// similarity equal to the standard sequence ratio (2*matches / total length).
func New() *FieldScorer {
	return &FieldScorer{params: levenshtein.NewParams().SubCost(2)}
}

// Score returns a similarity in [0,1] for one field. A missing value (nil)
// counts as the kind's empty value, empty string or zero, and a value of
// the wrong type is treated the same way; bad data is absorbed into the
// score, never an error. A spec with an unrecognized kind compares as a
// string; schemas are validated before they get here.
func (s *FieldScorer) Score(spec FieldSpec, extracted, truth any) float64 {
	switch spec.Kind {
	case KindMoney, KindPercentage:
		e, _ := model.CoerceFloat(extracted)
		g, _ := model.CoerceFloat(truth)
		return scoreNumeric(e, g)

	case KindCount:
		e, _ := model.CoerceCount(extracted)
		g, _ := model.CoerceCount(truth)
		return scoreNumeric(float64(e), float64(g))

	case KindEnum:
		e, _ := model.CoerceString(extracted)
		g, _ := model.CoerceString(truth)
		if Normalize(e) == Normalize(g) {
			return 1
		}
		return 0

	case KindBool:
		e, _ := model.CoerceBool(extracted)
		g, _ := model.CoerceBool(truth)
		if e == g {
			return 1
		}
		return 0

	default: // KindString, KindDate
		e, _ := model.CoerceString(extracted)
		g, _ := model.CoerceString(truth)
		return s.ratio(Normalize(e), Normalize(g))
	}
}

// Ratio returns the sequence similarity of two strings after normalization.
// Used by agreement scoring, which compares strategy outputs to each other
// rather than to ground truth.
func (s *FieldScorer) Ratio(a, b string) float64 {
	return s.ratio(Normalize(a), Normalize(b))
}

// ratio expects already-normalized inputs. Equal strings (including both
// empty) score 1 without touching the matrix.
func (s *FieldScorer) ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, s.params)
}

// scoreNumeric implements relative-error scoring. A ground truth of exactly
// zero is a hard category: the extraction either agrees or it scores zero,
// since no ratio is defined against zero.
func scoreNumeric(e, g float64) float64 {
	if g == 0 {
		if e == 0 {
			return 1
		}
		return 0
	}
	rel := math.Abs(e-g) / math.Abs(g)
	return math.Max(0, 1-rel)
}

// Normalize prepares a string for comparison: trim, NFC (OCR output mixes
// composed and decomposed forms), lowercase.
func Normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
