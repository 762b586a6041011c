// Package grok adapts the xAI chat completions API.
package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/willpenman/llm-philosophy/internal/core"
	"github.com/willpenman/llm-philosophy/internal/httpclient"
	"github.com/willpenman/llm-philosophy/internal/providers"
	"github.com/willpenman/llm-philosophy/internal/sse"
)

const providerName = "grok"

func init() {
	providers.Register(providerName, func(opts providers.Options) (core.Adapter, error) {
		return New(opts), nil
	})
}

// Adapter implements core.Adapter for the xAI chat completions API.
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates a Grok adapter from factory options.
func New(opts providers.Options) *Adapter {
	client := opts.HTTPClient
	if client == nil {
		client = httpclient.NewClientForTimeout(time.Duration(opts.Descriptor.TimeoutSeconds) * time.Second)
	}
	return &Adapter{
		httpClient: client,
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimSuffix(opts.Descriptor.BaseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return providerName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// BuildRequest assembles the chat completions payload. Reasoning models on
// this API take no reasoning parameters on the wire; reasoning shows up only
// in the usage accounting.
func (a *Adapter) BuildRequest(input *core.CanonicalInput, model *core.ModelDescriptor, mode core.Mode) (*core.ProviderRequest, error) {
	if err := providers.ValidateOverrides(providerName, model, input.Overrides); err != nil {
		return nil, err
	}
	maxTokens, err := providers.MaxOutputTokens(providerName, model, input.Overrides)
	if err != nil {
		return nil, err
	}

	req := chatRequest{
		Model: model.ResolvedWireID(),
		Messages: []chatMessage{
			{Role: "system", Content: input.SystemText},
			{Role: "user", Content: input.UserText},
		},
		MaxTokens: maxTokens,
		Stream:    mode == core.ModeStreaming,
	}
	if v, ok := providers.FloatOverride(input.Overrides, "temperature"); ok {
		req.Temperature = &v
	}
	if v, ok := providers.FloatOverride(input.Overrides, "top_p"); ok {
		req.TopP = &v
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewBuildError(providerName, "marshal request payload", err)
	}
	return &core.ProviderRequest{
		Provider: providerName,
		Model:    req.Model,
		Payload:  payload,
	}, nil
}

func (a *Adapter) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, core.ParseAPIError(providerName, resp.StatusCode, body)
	}
	return resp, nil
}

// Send transmits a blocking request; the completion payload passes through
// untouched.
func (a *Adapter) Send(ctx context.Context, req *core.ProviderRequest) (*core.CanonicalResponse, error) {
	resp, err := a.post(ctx, req.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}
	return &core.CanonicalResponse{
		Provider:   providerName,
		Payload:    body,
		OutputText: gjson.GetBytes(body, "choices.0.message.content").Str,
	}, nil
}

// chunkState accumulates chat completion chunks into a single completion.
type chunkState struct {
	id                string
	created           int64
	model             string
	systemFingerprint string
	content           []string
	finishReason      string
	usage             json.RawMessage
}

func (s *chunkState) apply(data []byte) string {
	chunk := gjson.ParseBytes(data)
	if v := chunk.Get("id"); v.Type == gjson.String {
		s.id = v.Str
	}
	if v := chunk.Get("created"); v.Type == gjson.Number {
		s.created = v.Int()
	}
	if v := chunk.Get("model"); v.Type == gjson.String {
		s.model = v.Str
	}
	if v := chunk.Get("system_fingerprint"); v.Type == gjson.String {
		s.systemFingerprint = v.Str
	}
	if usage := chunk.Get("usage"); usage.IsObject() {
		s.usage = json.RawMessage(usage.Raw)
	}

	choice := chunk.Get("choices.0")
	if !choice.Exists() {
		return ""
	}
	if reason := choice.Get("finish_reason"); reason.Type == gjson.String && reason.Str != "" {
		s.finishReason = reason.Str
	}
	delta := choice.Get("delta.content")
	if delta.Type == gjson.String && delta.Str != "" {
		s.content = append(s.content, delta.Str)
		return delta.Str
	}
	return ""
}

// reconstruct renders the accumulated chunks in the non-streaming completion
// shape with a single choice.
func (s *chunkState) reconstruct(message map[string]any) json.RawMessage {
	choice := map[string]any{
		"index":   0,
		"message": message,
	}
	if s.finishReason != "" {
		choice["finish_reason"] = s.finishReason
	}
	payload := map[string]any{
		"object":  "chat.completion",
		"choices": []any{choice},
	}
	if s.id != "" {
		payload["id"] = s.id
	}
	if s.created != 0 {
		payload["created"] = s.created
	}
	if s.model != "" {
		payload["model"] = s.model
	}
	if s.systemFingerprint != "" {
		payload["system_fingerprint"] = s.systemFingerprint
	}
	if len(s.usage) > 0 {
		payload["usage"] = json.RawMessage(s.usage)
	}
	raw, _ := json.Marshal(payload)
	return raw
}

// Stream reads chat completion chunks and merges them into the non-streaming
// completion shape. A finish_reason marks completion; [DONE] ends the stream.
func (a *Adapter) Stream(ctx context.Context, req *core.ProviderRequest, opts core.StreamOptions) (*core.CanonicalResponse, error) {
	resp, err := a.post(ctx, req.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		state     chunkState
		sawEvent  bool
		streamErr error
	)

	scanner := sse.NewScanner(resp.Body)
	for {
		ev, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		if ev.IsDone() {
			break
		}
		sawEvent = true
		opts.EmitEvent(core.StreamEvent{Kind: "", Raw: ev.Data})
		if delta := state.apply(ev.Data); delta != "" {
			opts.EmitText(delta)
		}
	}

	if !sawEvent {
		if streamErr != nil {
			return nil, core.NewTransportError(providerName, streamErr)
		}
		return nil, core.NewTransportError(providerName, fmt.Errorf("stream closed without events"))
	}

	outputText := strings.Join(state.content, "")
	result := &core.CanonicalResponse{
		Provider: providerName,
		Payload: state.reconstruct(map[string]any{
			"role":    "assistant",
			"content": outputText,
		}),
		OutputText: outputText,
	}
	if state.finishReason == "" {
		result.Partial = true
		result.StreamNote = "stream ended before a finish_reason"
		if streamErr != nil {
			result.StreamNote = fmt.Sprintf("stream dropped: %v", streamErr)
		}
	}
	return result, nil
}
