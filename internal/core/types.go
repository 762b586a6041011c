// Package core defines the shared types, error taxonomy, and adapter
// contract for the provider response capture engine.
package core

import (
	"encoding/json"
	"time"
)

// Mode selects how a request is transmitted.
type Mode string

const (
	// ModeBlocking sends one request and waits for the complete payload.
	ModeBlocking Mode = "blocking"
	// ModeStreaming reads the response as an incremental event stream.
	ModeStreaming Mode = "streaming"
)

// CanonicalInput is the provider-agnostic description of one evaluation
// call. It is immutable once constructed; SystemText already carries the
// output-length guidance sentence when one applies.
type CanonicalInput struct {
	SystemText string
	UserText   string
	Model      string
	// Overrides is a sparse map of canonical parameter name to value,
	// present only for non-default experimentation. Recognized names:
	// max_output_tokens, temperature, top_p, top_k, seed,
	// reasoning_effort, reasoning_summary, thinking_budget_tokens,
	// thinking_level, include_thoughts.
	Overrides map[string]any
}

// ProviderRequest is the wire-shaped payload actually transmitted. Payload
// is marshaled exactly once at build time; transmission and persistence both
// use these bytes so the stored request is byte-for-byte what was sent.
type ProviderRequest struct {
	Provider string
	// Model is the wire model id (for Fireworks this differs from the
	// storage name).
	Model   string
	Payload json.RawMessage
}

// CanonicalResponse is either the provider's genuine non-streaming payload
// (passed through untouched) or a payload reconstructed from stream events
// in exactly the provider's non-streaming shape. Fields outside Payload are
// adapter conveniences that belong in derived metadata, never in the payload
// itself.
type CanonicalResponse struct {
	Provider string
	Payload  json.RawMessage

	// OutputText is the assembled plain output.
	OutputText string
	// ReasoningText is the assembled reasoning/thinking text, empty when
	// the provider surfaced none.
	ReasoningText string
	// Partial reports that the stream ended before a terminal signal and
	// Payload was synthesized from whatever had accumulated.
	Partial bool
	// StreamNote describes why a stream ended early, for derived metadata.
	StreamNote string
}

// StreamEvent is one provider-specific incremental unit, surfaced to the
// debug capture side channel. Events are never persisted in run records.
type StreamEvent struct {
	// Kind is the provider's event name ("response.output_text.delta",
	// "content_block_delta", ...) or "" for unnamed chunk streams.
	Kind string
	Raw  json.RawMessage
}

// Usage is the normalized token breakdown read from a canonical response.
// Nil pointers mean the provider did not report the figure.
type Usage struct {
	InputTokens       *int `json:"input_tokens,omitempty"`
	CachedInputTokens *int `json:"cached_input_tokens,omitempty"`
	ReasoningTokens   *int `json:"reasoning_tokens,omitempty"`
	OutputTokens      *int `json:"output_tokens,omitempty"`
}

// PriceTier is one row of a model's ordered price schedule. Rates are USD
// per million tokens. A tier with MaxInputTokens == 0 is unconditional.
type PriceTier struct {
	ID                 string  `json:"id" yaml:"id"`
	MaxInputTokens     int     `json:"max_input_tokens,omitempty" yaml:"max_input_tokens,omitempty"`
	InputPerMtok       float64 `json:"input" yaml:"input"`
	CachedInputPerMtok float64 `json:"input_cached,omitempty" yaml:"input_cached,omitempty"`
	OutputPerMtok      float64 `json:"output" yaml:"output"`
}

// CostBreakdown is derived metadata only; it is never written back into a
// canonical payload.
type CostBreakdown struct {
	InputCost     float64 `json:"input_cost"`
	ReasoningCost float64 `json:"reasoning_cost"`
	OutputCost    float64 `json:"output_cost"`
	TotalCost     float64 `json:"total_cost"`
	TierID        string  `json:"rate_schedule_id"`
}

// RunRecord is the persisted unit pairing one request, one response, and
// derived metadata under one run id. Request entries omit Response and
// Derived.
type RunRecord struct {
	RunID           string          `json:"run_id"`
	CreatedAt       string          `json:"created_at"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	PuzzleName      string          `json:"puzzle_name"`
	PuzzleVersion   string          `json:"puzzle_version,omitempty"`
	SpecialSettings string          `json:"special_settings"`
	Request         json.RawMessage `json:"request"`
	Response        json.RawMessage `json:"response,omitempty"`
	Derived         *Derived        `json:"derived,omitempty"`
}

// Derived holds everything computed after the fact: values here are
// conveniences and reproducible from the payloads plus the catalog.
type Derived struct {
	Timing        Timing          `json:"timing"`
	ModelAlias    string          `json:"model_alias,omitempty"`
	PriceSchedule json.RawMessage `json:"price_schedule,omitempty"`
	Usage         *Usage          `json:"tokens,omitempty"`
	Cost          *CostBreakdown  `json:"cost,omitempty"`
	CostCaveat    string          `json:"cost_caveat,omitempty"`
	Partial       bool            `json:"partial,omitempty"`
	StreamNote    string          `json:"stream_note,omitempty"`
}

// Timing brackets the transport exchange in UTC RFC 3339.
type Timing struct {
	RequestStartedAt   string `json:"request_started_at"`
	RequestCompletedAt string `json:"request_completed_at,omitempty"`
}

// UTCNow returns the current time formatted the way run records store it.
func UTCNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
