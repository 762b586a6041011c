package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stage identifies where in a run an error surfaced.
type Stage string

const (
	StageConfig    Stage = "config"
	StageBuild     Stage = "build"
	StageTransport Stage = "transport"
	StageStream    Stage = "stream"
	StageExtract   Stage = "extract"
	StageStore     Stage = "store"
)

// Sentinel errors for errors.Is checks. Anything that would require guessing
// provider behavior maps to one of these and is surfaced, never worked
// around.
var (
	ErrUnknownModel         = errors.New("unknown model")
	ErrAmbiguousAlias       = errors.New("ambiguous model alias")
	ErrUnsupportedParameter = errors.New("unsupported parameter")
	ErrMissingParameter     = errors.New("missing required parameter")
	ErrTransport            = errors.New("transport failure")
	ErrNoMatchingPriceTier  = errors.New("no matching price tier")
)

// RunError is the error type for all engine failures. Stage names which
// component failed so callers can report a structured failure.
type RunError struct {
	Stage    Stage
	Provider string
	Param    string
	Message  string
	Err      error
}

func (e *RunError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewUnknownModelError reports a model id that resolves to no capability
// descriptor. Fatal before any network call.
func NewUnknownModelError(model string) *RunError {
	return &RunError{
		Stage:   StageConfig,
		Message: fmt.Sprintf("model %q is not in the catalog", model),
		Err:     ErrUnknownModel,
	}
}

// NewAmbiguousAliasError reports an alias claimed by more than one model.
// This is a configuration defect caught at catalog load, not at call time.
func NewAmbiguousAliasError(alias string, models []string) *RunError {
	return &RunError{
		Stage:   StageConfig,
		Message: fmt.Sprintf("alias %q resolves to multiple models %v", alias, models),
		Err:     ErrAmbiguousAlias,
	}
}

// NewUnsupportedParameterError reports an override the descriptor marks
// unsupported. Silent dropping would corrupt the experiment's provenance, so
// this is fatal before transmission.
func NewUnsupportedParameterError(provider, param string) *RunError {
	return &RunError{
		Stage:    StageBuild,
		Provider: provider,
		Param:    param,
		Message:  fmt.Sprintf("parameter %q is not supported by this model", param),
		Err:      ErrUnsupportedParameter,
	}
}

// NewMissingParameterError reports a required parameter with neither an
// override nor a catalog default.
func NewMissingParameterError(provider, param string) *RunError {
	return &RunError{
		Stage:    StageBuild,
		Provider: provider,
		Param:    param,
		Message:  fmt.Sprintf("parameter %q must be set (no catalog default)", param),
		Err:      ErrMissingParameter,
	}
}

// NewBuildError wraps any other request-construction failure.
func NewBuildError(provider, message string, err error) *RunError {
	return &RunError{Stage: StageBuild, Provider: provider, Message: message, Err: err}
}

// NewTransportError reports a connection failure before any byte of the
// response was received. No run record is written for these.
func NewTransportError(provider string, err error) *RunError {
	return &RunError{
		Stage:    StageTransport,
		Provider: provider,
		Message:  err.Error(),
		Err:      fmt.Errorf("%w: %w", ErrTransport, err),
	}
}

// NewNoMatchingPriceTierError reports a price schedule none of whose tier
// conditions admit the run. Recorded as a derived-metadata gap, never a
// failure of the whole run.
func NewNoMatchingPriceTierError(model string, inputTokens int) *RunError {
	return &RunError{
		Stage:   StageExtract,
		Message: fmt.Sprintf("no price tier of %q matches input_tokens=%d", model, inputTokens),
		Err:     ErrNoMatchingPriceTier,
	}
}

// NewStoreError reports a persistence failure. The engine never silently
// drops a record it could not persist.
func NewStoreError(message string, err error) *RunError {
	return &RunError{Stage: StageStore, Message: message, Err: err}
}

// ParseAPIError turns a non-2xx provider response into a transport-stage
// RunError, pulling the human message out of the common
// {"error":{"message":...}} envelope when present.
func ParseAPIError(provider string, statusCode int, body []byte) *RunError {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	return &RunError{
		Stage:    StageTransport,
		Provider: provider,
		Message:  fmt.Sprintf("API error %d: %s", statusCode, message),
		Err:      ErrTransport,
	}
}
