// Package cost estimates provider spend from token usage.
package cost

import "github.com/sells-group/minutes-cli/internal/model"

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model identifiers to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Known reports whether the calculator has pricing for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates[model]
	return ok
}

// Estimate returns the USD cost of usage on model. Unknown models cost 0.
func (c *Calculator) Estimate(model string, u model.Usage) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.InputTokens) / 1e6) * rate.Input
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWriteTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Merge returns a copy of base with overrides applied on top.
func Merge(base, overrides Rates) Rates {
	out := make(Rates, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// DefaultRates returns list pricing for the models the CLI is usually run
// with.
func DefaultRates() Rates {
	return Rates{
		// OpenAI: cached input is billed at a fraction of input; there is
		// no separate cache write charge.
		"gpt-4.1-2025-04-14": {Input: 2.00, Output: 8.00, CacheReadMul: 0.25},
		"gpt-4.1":            {Input: 2.00, Output: 8.00, CacheReadMul: 0.25},
		"gpt-4.1-mini":       {Input: 0.40, Output: 1.60, CacheReadMul: 0.25},
		"gpt-4o-mini":        {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
		"o4-mini-2025-04-16": {Input: 1.10, Output: 4.40, CacheReadMul: 0.25},
		"o3-mini-2025-01-31": {Input: 1.10, Output: 4.40, CacheReadMul: 0.5},

		// Anthropic: cache writes cost more than input, reads much less.
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	}
}
