package providers

import (
	"sort"

	"github.com/willpenman/llm-philosophy/internal/core"
)

// ValidateOverrides rejects any override the descriptor does not list as
// supported. Silently dropping a parameter would falsify the experiment's
// provenance, so the check runs before any payload is built. Keys are checked
// in sorted order so the first error is deterministic.
func ValidateOverrides(provider string, model *core.ModelDescriptor, overrides map[string]any) error {
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !model.SupportsParam(key) {
			return core.NewUnsupportedParameterError(provider, key)
		}
	}
	return nil
}

// MaxOutputTokens resolves the output cap: the override when given, the
// catalog default otherwise. Neither present is a build error, not a guess.
// Overrides above the model's ceiling fail closed.
func MaxOutputTokens(provider string, model *core.ModelDescriptor, overrides map[string]any) (int, error) {
	ceiling := model.MaxOutputTokensCeiling
	if ceiling == 0 {
		ceiling = model.MaxOutputTokensDefault
	}
	if v, ok := IntOverride(overrides, "max_output_tokens"); ok {
		if v <= 0 {
			return 0, core.NewBuildError(provider, "max_output_tokens must be positive", nil)
		}
		if ceiling > 0 && v > ceiling {
			return 0, core.NewBuildError(provider, "max_output_tokens exceeds the model ceiling", nil)
		}
		return v, nil
	}
	if model.MaxOutputTokensDefault > 0 {
		return model.MaxOutputTokensDefault, nil
	}
	return 0, core.NewMissingParameterError(provider, "max_output_tokens")
}

// IntOverride reads an integer-valued override. Flag parsing and JSON
// decoding both feed this map, so float64 representations of whole numbers
// are accepted.
func IntOverride(overrides map[string]any, key string) (int, bool) {
	v, ok := overrides[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// FloatOverride reads a float-valued override.
func FloatOverride(overrides map[string]any, key string) (float64, bool) {
	v, ok := overrides[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// StringOverride reads a string-valued override.
func StringOverride(overrides map[string]any, key string) (string, bool) {
	v, ok := overrides[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// BoolOverride reads a boolean-valued override.
func BoolOverride(overrides map[string]any, key string) (bool, bool) {
	v, ok := overrides[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
