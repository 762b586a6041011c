package core

// ReasoningMode classifies how a model exposes reasoning.
type ReasoningMode string

const (
	// ReasoningNone means the model has no reasoning surface.
	ReasoningNone ReasoningMode = "none"
	// ReasoningEffortLevels means reasoning is tuned by an effort level
	// parameter (low/medium/high).
	ReasoningEffortLevels ReasoningMode = "effort_levels"
	// ReasoningAdaptive means reasoning is always on or budgeted rather
	// than tuned by effort (Anthropic thinking budgets, Gemini thinking
	// levels, Grok reasoning models).
	ReasoningAdaptive ReasoningMode = "adaptive"
)

// ModelDescriptor is the static per-model capability record. Consumed, never
// mutated, by everything above the catalog; two concurrent runs against
// different models share nothing mutable.
type ModelDescriptor struct {
	// ID is the storage/catalog model id.
	ID string `yaml:"-"`
	// WireID is the id sent on the wire when it differs from ID
	// (Fireworks "accounts/fireworks/models/..." paths).
	WireID string `yaml:"wire_id,omitempty"`
	// Alias is the human display name.
	Alias string `yaml:"alias,omitempty"`
	// ResolveAliases are additional ids that resolve to this model.
	// Resolution is case-sensitive; a collision is a load-time error.
	ResolveAliases []string `yaml:"aliases,omitempty"`
	// StorageProvider overrides the partition provider name (DeepSeek and
	// friends are stored under their lab, not under "fireworks").
	StorageProvider string `yaml:"storage_provider,omitempty"`
	// ProviderDisplay overrides the provider's display name in artifacts
	// ("DeepSeek AI (via Fireworks)").
	ProviderDisplay string `yaml:"provider_display,omitempty"`

	Reasoning ReasoningMode `yaml:"reasoning,omitempty"`
	// DefaultReasoningEffort applies when Reasoning == effort_levels and
	// no override is given; the evaluation default is the highest level.
	DefaultReasoningEffort string `yaml:"default_reasoning_effort,omitempty"`
	// DefaultThinkingBudget applies to budget-style reasoning (Anthropic).
	DefaultThinkingBudget int `yaml:"default_thinking_budget,omitempty"`

	// MaxOutputTokensDefault is the documented "longest output" default
	// applied when no override is given.
	MaxOutputTokensDefault int `yaml:"max_output_tokens,omitempty"`
	// MaxOutputTokensCeiling bounds overrides; 0 means the default is the
	// ceiling.
	MaxOutputTokensCeiling int `yaml:"max_output_tokens_ceiling,omitempty"`

	// SupportedParams is the set of canonical override names this model
	// accepts. Anything else fails closed at build time.
	SupportedParams []string `yaml:"supported_params,omitempty"`

	// PriceTiers is the ordered price schedule; the first matching tier
	// wins.
	PriceTiers []PriceTier `yaml:"price_tiers,omitempty"`
}

// SupportsParam reports whether a canonical override name is accepted.
func (m *ModelDescriptor) SupportsParam(name string) bool {
	for _, p := range m.SupportedParams {
		if p == name {
			return true
		}
	}
	return false
}

// DisplayName returns the alias, falling back to the id.
func (m *ModelDescriptor) DisplayName() string {
	if m.Alias != "" {
		return m.Alias
	}
	return m.ID
}

// ResolvedWireID returns the id to put on the wire.
func (m *ModelDescriptor) ResolvedWireID() string {
	if m.WireID != "" {
		return m.WireID
	}
	return m.ID
}

// ProviderDescriptor is the static per-provider transport configuration.
type ProviderDescriptor struct {
	Name        string `yaml:"-"`
	DisplayName string `yaml:"display_name,omitempty"`
	BaseURL     string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the key;
	// APIKeyEnvAlt is a tolerated fallback (GOOGLE_API_KEY vs
	// GEMINI_API_KEY).
	APIKeyEnv    string `yaml:"api_key_env"`
	APIKeyEnvAlt string `yaml:"api_key_env_alt,omitempty"`
	// TimeoutSeconds is the whole-call budget. Long-reasoning providers
	// carry materially larger values; this is catalog data, never a
	// per-call constant.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}
