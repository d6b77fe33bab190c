// Package cost prices extraction runs from a per-strategy rate card.
package cost

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/receipt-eval/internal/results"
)

// StrategyRate holds one strategy's pricing. Flat covers per-receipt charges
// (OCR APIs, local compute); the token rates are per million tokens. The
// components add, so a strategy can carry both.
type StrategyRate struct {
	Flat       float64 `yaml:"flat" mapstructure:"flat"`
	InputMTok  float64 `yaml:"input_mtok" mapstructure:"input_mtok"`
	OutputMTok float64 `yaml:"output_mtok" mapstructure:"output_mtok"`
}

// Rates holds the full rate card, keyed by strategy ID.
type Rates struct {
	Strategies map[string]StrategyRate `yaml:"strategies" mapstructure:"strategies"`
}

// Calculator computes costs for strategy runs.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the rate-card cost of one extraction.
func (c *Calculator) Tokens(strategy string, tokensIn, tokensOut int) float64 {
	rate, ok := c.rateFor(strategy)
	if !ok {
		return 0
	}
	return rate.Flat +
		(float64(tokensIn)/1e6)*rate.InputMTok +
		(float64(tokensOut)/1e6)*rate.OutputMTok
}

// Price prices one pipeline output. A cost the pipeline recorded itself wins;
// the rate card only fills the gap when no cost was recorded.
func (c *Calculator) Price(strategy string, ext results.Extraction) float64 {
	if ext.Cost > 0 {
		return ext.Cost
	}
	return c.Tokens(strategy, ext.TokensIn, ext.TokensOut)
}

// rateFor resolves a strategy to its rate. Versioned prompt IDs fall back to
// their base strategy: "deepseek_r1_v3" prices as "deepseek_r1".
func (c *Calculator) rateFor(strategy string) (StrategyRate, bool) {
	if rate, ok := c.rates.Strategies[strategy]; ok {
		return rate, true
	}
	for id, rate := range c.rates.Strategies {
		if strings.HasPrefix(strategy, id+"_") {
			return rate, true
		}
	}
	return StrategyRate{}, false
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Strategies: map[string]StrategyRate{
			"google_vision": {Flat: 0.0015},
			"gpt4o_mini":    {InputMTok: 0.15, OutputMTok: 0.60},
			"deepseek_r1":   {Flat: 0.00001},
		},
	}
}

// LoadRates reads a YAML rate card and overlays it onto the defaults,
// strategy by strategy.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrap(err, "cost: read rates file")
	}

	var loaded Rates
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Rates{}, eris.Wrap(err, "cost: parse rates file")
	}

	rates := DefaultRates()
	for id, rate := range loaded.Strategies {
		rates.Strategies[id] = rate
	}
	return rates, nil
}
