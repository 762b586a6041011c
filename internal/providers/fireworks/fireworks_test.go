package fireworks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/willpenman/llm-philosophy/internal/core"
	"github.com/willpenman/llm-philosophy/internal/providers"
)

func deepseekModel() *core.ModelDescriptor {
	return &core.ModelDescriptor{
		ID:                     "deepseek-v3p2",
		Alias:                  "DeepSeek V3.2",
		WireID:                 "accounts/fireworks/models/deepseek-v3p2",
		StorageProvider:        "deepseek",
		Reasoning:              core.ReasoningEffortLevels,
		DefaultReasoningEffort: "high",
		MaxOutputTokensDefault: 64000,
		SupportedParams:        []string{"max_output_tokens", "temperature", "top_p", "reasoning_effort"},
	}
}

func llamaModel() *core.ModelDescriptor {
	return &core.ModelDescriptor{
		ID:                     "llama-v3p3-70b-instruct",
		WireID:                 "accounts/fireworks/models/llama-v3p3-70b-instruct",
		StorageProvider:        "meta",
		Reasoning:              core.ReasoningNone,
		MaxOutputTokensDefault: 8192,
		SupportedParams:        []string{"max_output_tokens", "temperature", "top_p"},
	}
}

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	return New(providers.Options{
		Descriptor: &core.ProviderDescriptor{
			Name:           "fireworks",
			BaseURL:        serverURL,
			TimeoutSeconds: 5,
		},
		APIKey: "test-key",
	})
}

func TestBuildRequest(t *testing.T) {
	a := newTestAdapter(t, "http://unused")

	tests := []struct {
		name    string
		input   *core.CanonicalInput
		model   *core.ModelDescriptor
		wantErr error
		checkFn func(*testing.T, *core.ProviderRequest)
	}{
		{
			name:  "reasoning model defaults to catalog effort and wire id",
			input: &core.CanonicalInput{SystemText: "sys", UserText: "user"},
			model: deepseekModel(),
			checkFn: func(t *testing.T, req *core.ProviderRequest) {
				if req.Model != "accounts/fireworks/models/deepseek-v3p2" {
					t.Errorf("Model = %q", req.Model)
				}
				payload := string(req.Payload)
				if got := gjson.Get(payload, "model").Str; got != "accounts/fireworks/models/deepseek-v3p2" {
					t.Errorf("payload model = %q", got)
				}
				if got := gjson.Get(payload, "reasoning_effort").Str; got != "high" {
					t.Errorf("reasoning_effort = %q", got)
				}
				if got := gjson.Get(payload, "max_tokens").Int(); got != 64000 {
					t.Errorf("max_tokens = %d", got)
				}
			},
		},
		{
			name: "effort override",
			input: &core.CanonicalInput{
				SystemText: "sys", UserText: "user",
				Overrides: map[string]any{"reasoning_effort": "low"},
			},
			model: deepseekModel(),
			checkFn: func(t *testing.T, req *core.ProviderRequest) {
				if got := gjson.GetBytes(req.Payload, "reasoning_effort").Str; got != "low" {
					t.Errorf("reasoning_effort = %q", got)
				}
			},
		},
		{
			name:  "non-reasoning model omits reasoning_effort",
			input: &core.CanonicalInput{SystemText: "sys", UserText: "user"},
			model: llamaModel(),
			checkFn: func(t *testing.T, req *core.ProviderRequest) {
				if gjson.GetBytes(req.Payload, "reasoning_effort").Exists() {
					t.Error("reasoning_effort present for non-reasoning model")
				}
			},
		},
		{
			name: "effort rejected for non-reasoning model",
			input: &core.CanonicalInput{
				SystemText: "sys", UserText: "user",
				Overrides: map[string]any{"reasoning_effort": "high"},
			},
			model:   llamaModel(),
			wantErr: core.ErrUnsupportedParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := a.BuildRequest(tt.input, tt.model, core.ModeBlocking)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildRequest: %v", err)
			}
			tt.checkFn(t, req)
		})
	}
}

func TestSendPassthrough(t *testing.T) {
	body := `{"id":"cmpl-1","object":"chat.completion","model":"accounts/fireworks/models/deepseek-v3p2","choices":[{"index":0,"message":{"role":"assistant","content":"the answer","reasoning_content":"working it out"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":9}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	resp, err := a.Send(context.Background(), &core.ProviderRequest{
		Provider: "fireworks",
		Payload:  json.RawMessage(`{"model":"accounts/fireworks/models/deepseek-v3p2"}`),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Payload) != body {
		t.Error("payload was not passed through untouched")
	}
	if resp.OutputText != "the answer" {
		t.Errorf("OutputText = %q", resp.OutputText)
	}
	if resp.ReasoningText != "working it out" {
		t.Errorf("ReasoningText = %q", resp.ReasoningText)
	}
}

func sseBody(chunks ...string) string {
	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString("data: ")
		b.WriteString(chunk)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestStreamReconstruction(t *testing.T) {
	body := sseBody(
		`{"id":"cmpl-2","model":"accounts/fireworks/models/deepseek-v3p2","choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"thinking "}}]}`,
		`{"id":"cmpl-2","choices":[{"index":0,"delta":{"reasoning_content":"hard"}}]}`,
		`{"id":"cmpl-2","choices":[{"index":0,"delta":{"content":"hello "}}]}`,
		`{"id":"cmpl-2","choices":[{"index":0,"delta":{"content":"world"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":8}}`,
		`[DONE]`,
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	var deltas []string
	resp, err := a.Stream(context.Background(), &core.ProviderRequest{
		Provider: "fireworks",
		Payload:  json.RawMessage(`{"stream":true}`),
	}, core.StreamOptions{
		OnTextDelta: func(s string) { deltas = append(deltas, s) },
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if resp.Partial {
		t.Errorf("completed stream flagged partial: %s", resp.StreamNote)
	}
	if resp.OutputText != "hello world" {
		t.Errorf("OutputText = %q", resp.OutputText)
	}
	if resp.ReasoningText != "thinking hard" {
		t.Errorf("ReasoningText = %q", resp.ReasoningText)
	}
	// Reasoning deltas never reach the text callback.
	if strings.Join(deltas, "") != "hello world" {
		t.Errorf("deltas = %q", deltas)
	}

	payload := string(resp.Payload)
	if got := gjson.Get(payload, "choices.0.message.content").Str; got != "hello world" {
		t.Errorf("message content = %q", got)
	}
	if got := gjson.Get(payload, "choices.0.message.reasoning_content").Str; got != "thinking hard" {
		t.Errorf("reasoning_content = %q", got)
	}
	if got := gjson.Get(payload, "choices.0.finish_reason").Str; got != "stop" {
		t.Errorf("finish_reason = %q", got)
	}
	if got := gjson.Get(payload, "usage.completion_tokens").Int(); got != 8 {
		t.Errorf("completion_tokens = %d", got)
	}
}

func TestStreamDropIsPartial(t *testing.T) {
	body := sseBody(
		`{"id":"cmpl-3","choices":[{"index":0,"delta":{"content":"cut off"}}]}`,
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	resp, err := a.Stream(context.Background(), &core.ProviderRequest{
		Payload: json.RawMessage(`{"stream":true}`),
	}, core.StreamOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !resp.Partial {
		t.Fatal("stream without finish_reason not flagged partial")
	}
	if resp.OutputText != "cut off" {
		t.Errorf("OutputText = %q", resp.OutputText)
	}
}

func TestStreamNoEventsIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	_, err := a.Stream(context.Background(), &core.ProviderRequest{
		Payload: json.RawMessage(`{"stream":true}`),
	}, core.StreamOptions{})
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}
