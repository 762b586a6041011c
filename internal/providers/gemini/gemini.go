// Package gemini adapts the Gemini generateContent REST API. The wire format
// is camelCase JSON; the model id travels in the URL rather than the payload,
// and thought parts are distinguished from answer parts by a "thought" flag.
package gemini

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

const providerName = "gemini"

const thoughtSeparator = "\n\n\n"

func init() {
	providers.Register(providerName, func(opts providers.Options) (core.Adapter, error) {
		return New(opts), nil
	})
}

// Adapter implements core.Adapter for the Gemini REST API.
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates a Gemini adapter from factory options.
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

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type thinkingConfig struct {
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens int             `json:"maxOutputTokens"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *int            `json:"topK,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateContentRequest struct {
	SystemInstruction content          `json:"systemInstruction"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

// BuildRequest assembles the generateContent payload. For adaptive-reasoning
// models thinking defaults to the highest level with thought summaries
// included.
func (a *Adapter) BuildRequest(input *core.CanonicalInput, model *core.ModelDescriptor, mode core.Mode) (*core.ProviderRequest, error) {
	if err := providers.ValidateOverrides(providerName, model, input.Overrides); err != nil {
		return nil, err
	}
	maxOutputTokens, err := providers.MaxOutputTokens(providerName, model, input.Overrides)
	if err != nil {
		return nil, err
	}

	req := generateContentRequest{
		SystemInstruction: content{Parts: []part{{Text: input.SystemText}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: input.UserText}}}},
		GenerationConfig:  generationConfig{MaxOutputTokens: maxOutputTokens},
	}

	if v, ok := providers.FloatOverride(input.Overrides, "temperature"); ok {
		req.GenerationConfig.Temperature = &v
	}
	if v, ok := providers.FloatOverride(input.Overrides, "top_p"); ok {
		req.GenerationConfig.TopP = &v
	}
	if v, ok := providers.IntOverride(input.Overrides, "top_k"); ok {
		req.GenerationConfig.TopK = &v
	}

	if model.Reasoning == core.ReasoningAdaptive {
		thinking := &thinkingConfig{ThinkingLevel: "HIGH", IncludeThoughts: true}
		if v, ok := providers.StringOverride(input.Overrides, "thinking_level"); ok {
			thinking.ThinkingLevel = v
		}
		if v, ok := providers.BoolOverride(input.Overrides, "include_thoughts"); ok {
			thinking.IncludeThoughts = v
		}
		req.GenerationConfig.ThinkingConfig = thinking
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewBuildError(providerName, "marshal request payload", err)
	}
	return &core.ProviderRequest{
		Provider: providerName,
		Model:    model.ResolvedWireID(),
		Payload:  payload,
	}, nil
}

func (a *Adapter) post(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}
	httpReq.Header.Set("x-goog-api-key", a.apiKey)
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

// Send transmits a blocking generateContent call; the payload passes through
// untouched.
func (a *Adapter) Send(ctx context.Context, req *core.ProviderRequest) (*core.CanonicalResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, req.Model)
	resp, err := a.post(ctx, url, req.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}
	return &core.CanonicalResponse{
		Provider:      providerName,
		Payload:       body,
		OutputText:    extractText(body, false),
		ReasoningText: extractText(body, true),
	}, nil
}

// Stream reads streamGenerateContent chunks and merges them into one
// generateContent-shaped payload: answer and thought parts accumulate
// separately, the last usageMetadata snapshot wins, and a finishReason marks
// completion.
func (a *Adapter) Stream(ctx context.Context, req *core.ProviderRequest, opts core.StreamOptions) (*core.CanonicalResponse, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", a.baseURL, req.Model)
	resp, err := a.post(ctx, url, req.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		textChunks    []string
		thoughtChunks []string
		finishReason  string
		usageMetadata json.RawMessage
		modelVersion  string
		responseID    string
		sawEvent      bool
		streamErr     error
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

		chunk := gjson.ParseBytes(ev.Data)
		if usage := chunk.Get("usageMetadata"); usage.IsObject() {
			usageMetadata = json.RawMessage(usage.Raw)
		}
		if v := chunk.Get("modelVersion"); v.Type == gjson.String {
			modelVersion = v.Str
		}
		if v := chunk.Get("responseId"); v.Type == gjson.String {
			responseID = v.Str
		}

		candidate := chunk.Get("candidates.0")
		if !candidate.Exists() {
			continue
		}
		if reason := candidate.Get("finishReason"); reason.Type == gjson.String && reason.Str != "" {
			finishReason = reason.Str
		}
		candidate.Get("content.parts").ForEach(func(_, p gjson.Result) bool {
			text := p.Get("text")
			if text.Type != gjson.String {
				return true
			}
			if p.Get("thought").Bool() {
				thoughtChunks = append(thoughtChunks, text.Str)
				return true
			}
			textChunks = append(textChunks, text.Str)
			opts.EmitText(text.Str)
			return true
		})
	}

	if !sawEvent {
		if streamErr != nil {
			return nil, core.NewTransportError(providerName, streamErr)
		}
		return nil, core.NewTransportError(providerName, fmt.Errorf("stream closed without events"))
	}

	payload := reconstructPayload(reconstruction{
		texts:         textChunks,
		thoughts:      thoughtChunks,
		finishReason:  finishReason,
		usageMetadata: usageMetadata,
		modelVersion:  modelVersion,
		responseID:    responseID,
	})

	result := &core.CanonicalResponse{
		Provider:      providerName,
		Payload:       payload,
		OutputText:    strings.Join(textChunks, ""),
		ReasoningText: strings.Join(thoughtChunks, ""),
	}
	if finishReason == "" {
		result.Partial = true
		result.StreamNote = "stream ended before a finishReason"
		if streamErr != nil {
			result.StreamNote = fmt.Sprintf("stream dropped: %v", streamErr)
		}
	}
	return result, nil
}

type reconstruction struct {
	texts         []string
	thoughts      []string
	finishReason  string
	usageMetadata json.RawMessage
	modelVersion  string
	responseID    string
}

func reconstructPayload(r reconstruction) json.RawMessage {
	var parts []map[string]any
	if len(r.thoughts) > 0 {
		parts = append(parts, map[string]any{
			"text":    strings.Join(r.thoughts, ""),
			"thought": true,
		})
	}
	parts = append(parts, map[string]any{"text": strings.Join(r.texts, "")})

	candidate := map[string]any{
		"content": map[string]any{"role": "model", "parts": parts},
	}
	if r.finishReason != "" {
		candidate["finishReason"] = r.finishReason
	}

	payload := map[string]any{"candidates": []any{candidate}}
	if len(r.usageMetadata) > 0 {
		payload["usageMetadata"] = json.RawMessage(r.usageMetadata)
	}
	if r.modelVersion != "" {
		payload["modelVersion"] = r.modelVersion
	}
	if r.responseID != "" {
		payload["responseId"] = r.responseID
	}
	raw, _ := json.Marshal(payload)
	return raw
}

// extractText joins candidate parts, selecting thought parts or answer parts.
func extractText(payload []byte, thoughts bool) string {
	var chunks []string
	gjson.GetBytes(payload, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
		text := p.Get("text")
		if text.Type != gjson.String {
			return true
		}
		if p.Get("thought").Bool() != thoughts {
			return true
		}
		chunks = append(chunks, text.Str)
		return true
	})
	if thoughts {
		return strings.Join(chunks, thoughtSeparator)
	}
	return strings.Join(chunks, "")
}
