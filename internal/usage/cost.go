package usage

import (
	"fmt"

	"github.com/willpenman/llm-philosophy/internal/core"
)

// OutputIncludesReasoning reports whether a provider's output token count
// already contains the reasoning tokens. When it does, the reasoning share is
// carved out of the output figure before billing so the tokens are not
// charged twice.
func OutputIncludesReasoning(provider string) bool {
	switch provider {
	case "openai", "grok", "fireworks":
		return true
	}
	return false
}

// MatchTier picks the first tier whose input-token condition holds. A tier
// with MaxInputTokens == 0 is unconditional and matches everything.
func MatchTier(model string, tiers []core.PriceTier, inputTokens int) (core.PriceTier, error) {
	for _, tier := range tiers {
		if tier.MaxInputTokens == 0 || inputTokens <= tier.MaxInputTokens {
			return tier, nil
		}
	}
	return core.PriceTier{}, core.NewNoMatchingPriceTierError(model, inputTokens)
}

// Compute prices a token breakdown against a model's rate schedule. Rates are
// USD per million tokens; reasoning tokens bill at the output rate. When the
// provider did not report enough figures to price the run, Compute returns a
// nil breakdown and a caveat instead of guessing.
func Compute(provider, model string, u core.Usage, tiers []core.PriceTier) (*core.CostBreakdown, string, error) {
	if len(tiers) == 0 {
		return nil, "no rate schedule on file for this model", nil
	}
	if u.InputTokens == nil || u.OutputTokens == nil {
		return nil, "provider did not report token usage; cost not computed", nil
	}

	inputTokens := *u.InputTokens
	tier, err := MatchTier(model, tiers, inputTokens)
	if err != nil {
		return nil, "", err
	}

	inputCost := perMtok(inputTokens, tier.InputPerMtok)
	if u.CachedInputTokens != nil && tier.CachedInputPerMtok > 0 {
		cached := *u.CachedInputTokens
		if cached > inputTokens {
			cached = inputTokens
		}
		inputCost = perMtok(inputTokens-cached, tier.InputPerMtok) + perMtok(cached, tier.CachedInputPerMtok)
	}

	reasoningTokens := 0
	if u.ReasoningTokens != nil {
		reasoningTokens = *u.ReasoningTokens
	}
	outputTokens := *u.OutputTokens
	if OutputIncludesReasoning(provider) {
		outputTokens -= reasoningTokens
		if outputTokens < 0 {
			outputTokens = 0
		}
	}

	reasoningCost := perMtok(reasoningTokens, tier.OutputPerMtok)
	outputCost := perMtok(outputTokens, tier.OutputPerMtok)

	breakdown := &core.CostBreakdown{
		InputCost:     inputCost,
		ReasoningCost: reasoningCost,
		OutputCost:    outputCost,
		TotalCost:     inputCost + reasoningCost + outputCost,
		TierID:        tier.ID,
	}
	return breakdown, "", nil
}

func perMtok(tokens int, rate float64) float64 {
	return float64(tokens) * rate / 1_000_000
}

// FormatCost renders a dollar amount the way run summaries print it: amounts
// under a tenth of a cent round to zero, sub-dollar amounts print in cents,
// anything larger prints in dollars.
func FormatCost(cost float64) string {
	switch {
	case cost < 0.001:
		return "rounds to 0¢"
	case cost < 1:
		return fmt.Sprintf("%.1f¢", cost*100)
	default:
		return fmt.Sprintf("$%.2f", cost)
	}
}

// CostLine renders the one-line cost summary.
func CostLine(b *core.CostBreakdown) string {
	return fmt.Sprintf("Cost: %s (input %s, reasoning %s, output %s)",
		FormatCost(b.TotalCost),
		FormatCost(b.InputCost),
		FormatCost(b.ReasoningCost),
		FormatCost(b.OutputCost),
	)
}
