// Package anthropic adapts the Anthropic Messages API. Streaming responses
// are rebuilt into the exact non-streaming message shape by replaying the
// content-block event sequence.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/willpenman/llm-philosophy/internal/core"
	"github.com/willpenman/llm-philosophy/internal/httpclient"
	"github.com/willpenman/llm-philosophy/internal/providers"
	"github.com/willpenman/llm-philosophy/internal/sse"
)

const (
	providerName = "anthropic"
	apiVersion   = "2023-06-01"
)

// Thinking blocks are joined with a triple newline when collapsed to text.
const thinkingSeparator = "\n\n\n"

func init() {
	providers.Register(providerName, func(opts providers.Options) (core.Adapter, error) {
		return New(opts), nil
	})
}

// Adapter implements core.Adapter for the Anthropic Messages API.
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates an Anthropic adapter from factory options.
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

type systemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type messagesRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      []systemBlock   `json:"system"`
	Messages    []message       `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// BuildRequest assembles the Messages API payload. Thinking defaults on for
// adaptive-reasoning models; an explicit zero budget disables it. Thinking
// cannot be combined with temperature or top_k, and its budget must sit
// strictly below max_tokens.
func (a *Adapter) BuildRequest(input *core.CanonicalInput, model *core.ModelDescriptor, mode core.Mode) (*core.ProviderRequest, error) {
	if err := providers.ValidateOverrides(providerName, model, input.Overrides); err != nil {
		return nil, err
	}
	maxTokens, err := providers.MaxOutputTokens(providerName, model, input.Overrides)
	if err != nil {
		return nil, err
	}

	req := messagesRequest{
		Model:     model.ResolvedWireID(),
		MaxTokens: maxTokens,
		System:    []systemBlock{{Type: "text", Text: input.SystemText}},
		Messages:  []message{{Role: "user", Content: input.UserText}},
		Stream:    mode == core.ModeStreaming,
	}

	if v, ok := providers.FloatOverride(input.Overrides, "temperature"); ok {
		req.Temperature = &v
	}
	if v, ok := providers.FloatOverride(input.Overrides, "top_p"); ok {
		req.TopP = &v
	}
	if v, ok := providers.IntOverride(input.Overrides, "top_k"); ok {
		req.TopK = &v
	}

	budget := model.DefaultThinkingBudget
	if v, ok := providers.IntOverride(input.Overrides, "thinking_budget_tokens"); ok {
		budget = v
	}
	if model.Reasoning == core.ReasoningAdaptive && budget > 0 {
		if req.Temperature != nil {
			return nil, core.NewUnsupportedParameterError(providerName, "temperature")
		}
		if req.TopK != nil {
			return nil, core.NewUnsupportedParameterError(providerName, "top_k")
		}
		if budget >= maxTokens {
			return nil, core.NewBuildError(providerName, "thinking budget_tokens must be less than max_tokens", nil)
		}
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
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
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("content-type", "application/json")

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

// Send transmits a blocking request; the message payload passes through
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

	var payload map[string]any
	outputText, reasoningText := "", ""
	if err := json.Unmarshal(body, &payload); err == nil {
		outputText = extractOutputText(payload)
		reasoningText = extractThinkingText(payload)
	}
	return &core.CanonicalResponse{
		Provider:      providerName,
		Payload:       body,
		OutputText:    outputText,
		ReasoningText: reasoningText,
	}, nil
}

// Stream transmits a streaming request and replays the event sequence into
// the non-streaming message shape: message_start seeds the payload,
// content_block_start/delta build the blocks, message_delta supersedes stop
// reason and usage, message_stop is the terminal signal.
func (a *Adapter) Stream(ctx context.Context, req *core.ProviderRequest, opts core.StreamOptions) (*core.CanonicalResponse, error) {
	resp, err := a.post(ctx, req.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		payload   = make(map[string]any)
		blocks    = make(map[int]map[string]any)
		completed bool
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

		var data map[string]any
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			streamErr = fmt.Errorf("malformed stream event: %w", err)
			break
		}
		sawEvent = true

		kind := ev.Name
		if kind == "" {
			kind, _ = data["type"].(string)
		}
		opts.EmitEvent(core.StreamEvent{Kind: kind, Raw: ev.Data})

		switch kind {
		case "message_start":
			if msg, ok := data["message"].(map[string]any); ok {
				payload = make(map[string]any, len(msg))
				for k, v := range msg {
					payload[k] = v
				}
			}
		case "content_block_start":
			index, okIndex := asInt(data["index"])
			block, okBlock := data["content_block"].(map[string]any)
			if okIndex && okBlock {
				copied := make(map[string]any, len(block))
				for k, v := range block {
					copied[k] = v
				}
				blocks[index] = copied
			}
		case "content_block_delta":
			index, okIndex := asInt(data["index"])
			delta, okDelta := data["delta"].(map[string]any)
			if !okIndex || !okDelta {
				continue
			}
			block, ok := blocks[index]
			if !ok {
				block = map[string]any{"type": delta["type"]}
				blocks[index] = block
			}
			applyBlockDelta(block, delta)
			if delta["type"] == "text_delta" {
				if text, ok := delta["text"].(string); ok {
					opts.EmitText(text)
				}
			}
		case "message_delta":
			if delta, ok := data["delta"].(map[string]any); ok {
				if stop, present := delta["stop_reason"]; present {
					payload["stop_reason"] = stop
				}
				if stop, present := delta["stop_sequence"]; present {
					payload["stop_sequence"] = stop
				}
			}
			if usage, ok := data["usage"].(map[string]any); ok {
				payload["usage"] = usage
			}
		case "message_stop":
			completed = true
		}
	}

	if !sawEvent {
		if streamErr != nil {
			return nil, core.NewTransportError(providerName, streamErr)
		}
		return nil, core.NewTransportError(providerName, fmt.Errorf("stream closed without events"))
	}

	if len(blocks) > 0 {
		indexes := make([]int, 0, len(blocks))
		for index := range blocks {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)
		content := make([]any, 0, len(indexes))
		for _, index := range indexes {
			content = append(content, blocks[index])
		}
		payload["content"] = content
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewTransportError(providerName, err)
	}

	result := &core.CanonicalResponse{
		Provider:      providerName,
		Payload:       raw,
		OutputText:    extractOutputText(payload),
		ReasoningText: extractThinkingText(payload),
	}
	if !completed {
		result.Partial = true
		result.StreamNote = "stream ended before message_stop"
		if streamErr != nil {
			result.StreamNote = fmt.Sprintf("stream dropped: %v", streamErr)
		}
	}
	return result, nil
}

// applyBlockDelta folds one content_block_delta into its block. Text and
// thinking deltas append; signatures replace; tool-input JSON fragments
// concatenate.
func applyBlockDelta(block, delta map[string]any) {
	switch delta["type"] {
	case "text_delta":
		if text, ok := delta["text"].(string); ok {
			appendString(block, "text", text)
		}
	case "thinking_delta":
		if thinking, ok := delta["thinking"].(string); ok {
			appendString(block, "thinking", thinking)
		}
	case "signature_delta":
		if signature, ok := delta["signature"].(string); ok {
			block["signature"] = signature
		}
	case "input_json_delta":
		if partial, ok := delta["partial_json"].(string); ok {
			appendString(block, "partial_json", partial)
		}
	}
}

func appendString(block map[string]any, key, value string) {
	if existing, ok := block[key].(string); ok {
		block[key] = existing + value
		return
	}
	block[key] = value
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func extractOutputText(payload map[string]any) string {
	return strings.Join(blockTexts(payload, "text", "text"), "")
}

func extractThinkingText(payload map[string]any) string {
	return strings.Join(blockTexts(payload, "thinking", "thinking"), thinkingSeparator)
}

func blockTexts(payload map[string]any, blockType, field string) []string {
	content, ok := payload["content"].([]any)
	if !ok {
		return nil
	}
	var chunks []string
	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok || block["type"] != blockType {
			continue
		}
		if text, ok := block[field].(string); ok {
			chunks = append(chunks, text)
		}
	}
	return chunks
}
