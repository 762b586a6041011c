// Package usage reads token accounting out of canonical response payloads
// and prices it against the catalog's rate schedules. Extraction is
// pure: payloads are never modified, and a missing figure stays nil rather
// than defaulting to zero.
package usage

import (
	"github.com/tidwall/gjson"

	"github.com/willpenman/llm-philosophy/internal/core"
)

// ExtractTokens reads the normalized token breakdown from a provider payload.
// Each provider reports usage under its own shape; fields the provider never
// reports stay nil. A payload with no usage object at all returns an empty
// Usage, not an error, so that partial captures still persist.
func ExtractTokens(provider string, payload []byte) core.Usage {
	switch provider {
	case "openai":
		return extractResponsesUsage(payload)
	case "anthropic":
		return extractMessagesUsage(payload)
	case "gemini":
		return extractGeminiUsage(payload)
	case "grok", "fireworks":
		return extractChatCompletionsUsage(payload)
	}
	return core.Usage{}
}

func intField(payload []byte, path string) *int {
	v := gjson.GetBytes(payload, path)
	if v.Type != gjson.Number {
		return nil
	}
	n := int(v.Int())
	return &n
}

func extractResponsesUsage(payload []byte) core.Usage {
	return core.Usage{
		InputTokens:       intField(payload, "usage.input_tokens"),
		CachedInputTokens: intField(payload, "usage.input_tokens_details.cached_tokens"),
		ReasoningTokens:   intField(payload, "usage.output_tokens_details.reasoning_tokens"),
		OutputTokens:      intField(payload, "usage.output_tokens"),
	}
}

// extractMessagesUsage sums cache-creation and cache-read tokens into the
// input figure; the Messages API excludes them from input_tokens. Thinking
// tokens are not reported separately, so ReasoningTokens stays nil.
func extractMessagesUsage(payload []byte) core.Usage {
	input := intField(payload, "usage.input_tokens")
	if input != nil {
		total := *input
		if v := intField(payload, "usage.cache_creation_input_tokens"); v != nil {
			total += *v
		}
		if v := intField(payload, "usage.cache_read_input_tokens"); v != nil {
			total += *v
		}
		input = &total
	}
	return core.Usage{
		InputTokens:       input,
		CachedInputTokens: intField(payload, "usage.cache_read_input_tokens"),
		OutputTokens:      intField(payload, "usage.output_tokens"),
	}
}

func extractGeminiUsage(payload []byte) core.Usage {
	return core.Usage{
		InputTokens:       intField(payload, "usageMetadata.promptTokenCount"),
		CachedInputTokens: intField(payload, "usageMetadata.cachedContentTokenCount"),
		ReasoningTokens:   intField(payload, "usageMetadata.thoughtsTokenCount"),
		OutputTokens:      intField(payload, "usageMetadata.candidatesTokenCount"),
	}
}

// extractChatCompletionsUsage tolerates both the prompt/completion naming and
// the input/output naming the compatible providers use.
func extractChatCompletionsUsage(payload []byte) core.Usage {
	input := intField(payload, "usage.prompt_tokens")
	if input == nil {
		input = intField(payload, "usage.input_tokens")
	}
	output := intField(payload, "usage.completion_tokens")
	if output == nil {
		output = intField(payload, "usage.output_tokens")
	}
	reasoning := intField(payload, "usage.completion_tokens_details.reasoning_tokens")
	if reasoning == nil {
		reasoning = intField(payload, "usage.output_tokens_details.reasoning_tokens")
	}
	cached := intField(payload, "usage.prompt_tokens_details.cached_tokens")
	if cached == nil {
		cached = intField(payload, "usage.cached_prompt_tokens")
	}
	return core.Usage{
		InputTokens:       input,
		CachedInputTokens: cached,
		ReasoningTokens:   reasoning,
		OutputTokens:      output,
	}
}
