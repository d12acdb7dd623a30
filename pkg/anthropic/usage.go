package anthropic

import "go.uber.org/zap"

// TokenUsage tracks token consumption of one call.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// model -> {input $/MTok, output $/MTok}
var modelPricing = map[string][2]float64{
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost returns the approximate USD cost of u for model, or 0 for an
// unknown model. Cache writes cost 1.25x input, cache reads 0.1x.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	in := float64(u.InputTokens) / 1e6 * p[0]
	out := float64(u.OutputTokens) / 1e6 * p[1]
	write := float64(u.CacheCreationInputTokens) / 1e6 * p[0] * 1.25
	read := float64(u.CacheReadInputTokens) / 1e6 * p[0] * 0.1
	return in + out + write + read
}

// Log records usage and estimated cost for one feature ("qa", "report").
func (u TokenUsage) Log(model, feature string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("feature", feature),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
