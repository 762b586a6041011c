// Package openai adapts the OpenAI Responses API: request building against
// the capability catalog, blocking and streaming transport, and
// reconstruction of a Responses-shaped payload from stream events.
package openai

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

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/willpenman/llm-philosophy/internal/core"
	"github.com/willpenman/llm-philosophy/internal/httpclient"
	"github.com/willpenman/llm-philosophy/internal/providers"
	"github.com/willpenman/llm-philosophy/internal/sse"
)

const providerName = "openai"

// Streamed reasoning-summary parts are joined with a triple newline, and an
// authoritative part.done text replaces the joined deltas for its index.
const summaryPartSeparator = "\n\n\n"

func init() {
	providers.Register(providerName, func(opts providers.Options) (core.Adapter, error) {
		return New(opts), nil
	})
}

// Adapter implements core.Adapter for the OpenAI Responses API.
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates an OpenAI adapter from factory options.
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

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inputMessage struct {
	Role    string        `json:"role"`
	Content []contentItem `json:"content"`
}

type reasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []inputMessage   `json:"input"`
	MaxOutputTokens int              `json:"max_output_tokens"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	Reasoning       *reasoningConfig `json:"reasoning,omitempty"`
	Seed            *int             `json:"seed,omitempty"`
	Stream          bool             `json:"stream,omitempty"`
}

// BuildRequest assembles the Responses API payload. The payload is marshaled
// exactly once; transmission and persistence both use these bytes.
func (a *Adapter) BuildRequest(input *core.CanonicalInput, model *core.ModelDescriptor, mode core.Mode) (*core.ProviderRequest, error) {
	if err := providers.ValidateOverrides(providerName, model, input.Overrides); err != nil {
		return nil, err
	}
	maxOutputTokens, err := providers.MaxOutputTokens(providerName, model, input.Overrides)
	if err != nil {
		return nil, err
	}

	req := responsesRequest{
		Model: model.ResolvedWireID(),
		Input: []inputMessage{
			{Role: "system", Content: []contentItem{{Type: "input_text", Text: input.SystemText}}},
			{Role: "user", Content: []contentItem{{Type: "input_text", Text: input.UserText}}},
		},
		MaxOutputTokens: maxOutputTokens,
		Stream:          mode == core.ModeStreaming,
	}

	if v, ok := providers.FloatOverride(input.Overrides, "temperature"); ok {
		req.Temperature = &v
	}
	if v, ok := providers.FloatOverride(input.Overrides, "top_p"); ok {
		req.TopP = &v
	}
	if v, ok := providers.IntOverride(input.Overrides, "seed"); ok {
		req.Seed = &v
	}

	if model.Reasoning == core.ReasoningEffortLevels {
		reasoning := &reasoningConfig{
			Effort:  model.DefaultReasoningEffort,
			Summary: "detailed",
		}
		if v, ok := providers.StringOverride(input.Overrides, "reasoning_effort"); ok {
			reasoning.Effort = v
		}
		if v, ok := providers.StringOverride(input.Overrides, "reasoning_summary"); ok {
			reasoning.Summary = v
		}
		req.Reasoning = reasoning
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
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/responses", bytes.NewReader(payload))
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

// Send transmits a blocking request. The provider's genuine payload is
// passed through byte for byte.
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
		Provider:      providerName,
		Payload:       body,
		OutputText:    extractOutputText(body),
		ReasoningText: extractReasoningSummary(body),
	}, nil
}

// Stream transmits a streaming request and reconstructs the non-streaming
// payload shape. response.completed carries the genuine payload; streamed
// reasoning-summary parts are coalesced into it afterward because the
// terminal payload's summary field arrives empty when summaries streamed.
func (a *Adapter) Stream(ctx context.Context, req *core.ProviderRequest, opts core.StreamOptions) (*core.CanonicalResponse, error) {
	resp, err := a.post(ctx, req.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		textChunks []string
		summary    = newSummaryAccumulator()
		final      json.RawMessage
		streamErr  error
		sawEvent   bool
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
		kind := gjson.GetBytes(ev.Data, "type").Str
		opts.EmitEvent(core.StreamEvent{Kind: kind, Raw: ev.Data})

		switch kind {
		case "response.output_text.delta":
			if delta := gjson.GetBytes(ev.Data, "delta"); delta.Type == gjson.String {
				textChunks = append(textChunks, delta.Str)
				opts.EmitText(delta.Str)
			}
		case "response.reasoning_summary_text.delta":
			delta := gjson.GetBytes(ev.Data, "delta")
			index := gjson.GetBytes(ev.Data, "summary_index")
			if delta.Type == gjson.String && index.Exists() {
				summary.addDelta(int(index.Int()), delta.Str)
			}
		case "response.reasoning_summary_part.done":
			index := gjson.GetBytes(ev.Data, "summary_index")
			text := gjson.GetBytes(ev.Data, "part.text")
			if index.Exists() && text.Type == gjson.String {
				summary.setDone(int(index.Int()), text.Str)
			}
		case "response.completed", "response.failed":
			if response := gjson.GetBytes(ev.Data, "response"); response.IsObject() {
				final = json.RawMessage(response.Raw)
			}
		}
	}

	if !sawEvent {
		if streamErr != nil {
			return nil, core.NewTransportError(providerName, streamErr)
		}
		return nil, core.NewTransportError(providerName, fmt.Errorf("stream closed without events"))
	}

	result := &core.CanonicalResponse{Provider: providerName}
	if len(final) > 0 {
		result.Payload = final
		if injected, err := summary.injectInto(final); err == nil {
			result.Payload = injected
		}
	} else {
		result.Payload = synthesizeResponsePayload(req.Model, strings.Join(textChunks, ""), summary.text())
		result.Partial = true
		result.StreamNote = "stream ended before response.completed"
	}
	if streamErr != nil {
		result.Partial = true
		result.StreamNote = fmt.Sprintf("stream dropped: %v", streamErr)
	}

	result.OutputText = extractOutputText(result.Payload)
	if result.OutputText == "" && len(textChunks) > 0 {
		result.OutputText = strings.Join(textChunks, "")
	}
	result.ReasoningText = summary.text()
	if result.ReasoningText == "" {
		result.ReasoningText = extractReasoningSummary(result.Payload)
	}
	return result, nil
}

// synthesizeResponsePayload builds the minimal Responses-shaped payload for a
// stream that dropped before the terminal event. Only fields the genuine
// non-streaming response defines appear here; a reasoning output item leads
// when summary fragments were observed, as it does on the wire.
func synthesizeResponsePayload(model, text, reasoning string) json.RawMessage {
	var output []any
	if reasoning != "" {
		output = append(output, map[string]any{
			"type": "reasoning",
			"summary": []any{
				map[string]any{"type": "summary_text", "text": reasoning},
			},
		})
	}
	output = append(output, map[string]any{
		"type": "message",
		"role": "assistant",
		"content": []any{
			map[string]any{"type": "output_text", "text": text},
		},
	})
	payload := struct {
		Object string `json:"object"`
		Model  string `json:"model"`
		Status string `json:"status"`
		Output []any  `json:"output"`
	}{
		Object: "response",
		Model:  model,
		Status: "incomplete",
		Output: output,
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func extractOutputText(payload []byte) string {
	if t := gjson.GetBytes(payload, "output_text"); t.Type == gjson.String {
		return t.Str
	}
	var chunks []string
	gjson.GetBytes(payload, "output").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").Str != "message" {
			return true
		}
		item.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").Str == "output_text" {
				if t := part.Get("text"); t.Type == gjson.String {
					chunks = append(chunks, t.Str)
				}
			}
			return true
		})
		return true
	})
	return strings.Join(chunks, "\n")
}

func extractReasoningSummary(payload []byte) string {
	var parts []string
	gjson.GetBytes(payload, "output").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").Str != "reasoning" {
			return true
		}
		item.Get("summary").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").Str == "summary_text" {
				if t := part.Get("text"); t.Type == gjson.String && t.Str != "" {
					parts = append(parts, t.Str)
				}
			}
			return true
		})
		return true
	})
	return strings.Join(parts, summaryPartSeparator)
}

// summaryAccumulator coalesces streamed reasoning-summary parts per
// summary_index.
type summaryAccumulator struct {
	deltas map[int][]string
	done   map[int]string
}

func newSummaryAccumulator() *summaryAccumulator {
	return &summaryAccumulator{
		deltas: make(map[int][]string),
		done:   make(map[int]string),
	}
}

func (s *summaryAccumulator) addDelta(index int, delta string) {
	s.deltas[index] = append(s.deltas[index], delta)
}

func (s *summaryAccumulator) setDone(index int, text string) {
	s.done[index] = text
}

// text joins the coalesced parts in index order. An authoritative done text
// wins over the joined deltas for the same index.
func (s *summaryAccumulator) text() string {
	seen := make(map[int]bool)
	for index := range s.deltas {
		seen[index] = true
	}
	for index := range s.done {
		seen[index] = true
	}
	if len(seen) == 0 {
		return ""
	}
	indexes := make([]int, 0, len(seen))
	for index := range seen {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	var parts []string
	for _, index := range indexes {
		if text := s.done[index]; text != "" {
			parts = append(parts, text)
			continue
		}
		if deltas := s.deltas[index]; len(deltas) > 0 {
			parts = append(parts, strings.Join(deltas, ""))
		}
	}
	return strings.Join(parts, summaryPartSeparator)
}

// injectInto writes the coalesced summary into the payload's first reasoning
// output item, mirroring where the non-streaming response carries it.
func (s *summaryAccumulator) injectInto(payload json.RawMessage) (json.RawMessage, error) {
	text := s.text()
	if text == "" {
		return payload, nil
	}
	target := -1
	index := 0
	gjson.GetBytes(payload, "output").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").Str == "reasoning" {
			target = index
			return false
		}
		index++
		return true
	})
	if target < 0 {
		return payload, nil
	}
	summary, err := json.Marshal([]contentItem{{Type: "summary_text", Text: text}})
	if err != nil {
		return payload, err
	}
	return sjson.SetRawBytes(payload, fmt.Sprintf("output.%d.summary", target), summary)
}
