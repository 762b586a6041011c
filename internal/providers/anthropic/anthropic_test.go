package anthropic

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

func opusModel() *core.ModelDescriptor {
	return &core.ModelDescriptor{
		ID:                     "claude-opus-4-5-20251101",
		Alias:                  "Opus 4.5",
		Reasoning:              core.ReasoningAdaptive,
		DefaultThinkingBudget:  20000,
		MaxOutputTokensDefault: 64000,
		SupportedParams:        []string{"max_output_tokens", "temperature", "top_p", "top_k", "thinking_budget_tokens"},
	}
}

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	return New(providers.Options{
		Descriptor: &core.ProviderDescriptor{
			Name:           "anthropic",
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
		wantErr error
		checkFn func(*testing.T, *core.ProviderRequest)
	}{
		{
			name:  "thinking defaults on with catalog budget",
			input: &core.CanonicalInput{SystemText: "sys", UserText: "user"},
			checkFn: func(t *testing.T, req *core.ProviderRequest) {
				payload := string(req.Payload)
				if got := gjson.Get(payload, "thinking.type").Str; got != "enabled" {
					t.Errorf("thinking.type = %q, want enabled", got)
				}
				if got := gjson.Get(payload, "thinking.budget_tokens").Int(); got != 20000 {
					t.Errorf("budget_tokens = %d, want 20000", got)
				}
				if got := gjson.Get(payload, "max_tokens").Int(); got != 64000 {
					t.Errorf("max_tokens = %d, want 64000", got)
				}
				if got := gjson.Get(payload, "system.0.text").Str; got != "sys" {
					t.Errorf("system text = %q", got)
				}
				if got := gjson.Get(payload, "messages.0.content").Str; got != "user" {
					t.Errorf("user content = %q", got)
				}
			},
		},
		{
			name: "zero budget disables thinking and frees temperature",
			input: &core.CanonicalInput{
				SystemText: "sys", UserText: "user",
				Overrides: map[string]any{"thinking_budget_tokens": 0, "temperature": 1.0},
			},
			checkFn: func(t *testing.T, req *core.ProviderRequest) {
				payload := string(req.Payload)
				if gjson.Get(payload, "thinking").Exists() {
					t.Error("thinking present despite zero budget")
				}
				if got := gjson.Get(payload, "temperature").Float(); got != 1.0 {
					t.Errorf("temperature = %v, want 1.0", got)
				}
			},
		},
		{
			name: "temperature conflicts with thinking",
			input: &core.CanonicalInput{
				SystemText: "sys", UserText: "user",
				Overrides: map[string]any{"temperature": 0.7},
			},
			wantErr: core.ErrUnsupportedParameter,
		},
		{
			name: "top_k conflicts with thinking",
			input: &core.CanonicalInput{
				SystemText: "sys", UserText: "user",
				Overrides: map[string]any{"top_k": 40},
			},
			wantErr: core.ErrUnsupportedParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := a.BuildRequest(tt.input, opusModel(), core.ModeBlocking)
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

func TestBuildRequestBudgetBelowMaxTokens(t *testing.T) {
	a := newTestAdapter(t, "http://unused")
	_, err := a.BuildRequest(&core.CanonicalInput{
		SystemText: "sys", UserText: "user",
		Overrides: map[string]any{"thinking_budget_tokens": 64000},
	}, opusModel(), core.ModeBlocking)
	if err == nil {
		t.Fatal("budget equal to max_tokens accepted")
	}
}

func TestSendPassthrough(t *testing.T) {
	body := `{"id":"msg_1","type":"message","role":"assistant","model":"claude-opus-4-5-20251101","content":[{"type":"thinking","thinking":"deep thought","signature":"sig"},{"type":"text","text":"surface answer"}],"stop_reason":"end_turn","usage":{"input_tokens":30,"output_tokens":12}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	resp, err := a.Send(context.Background(), &core.ProviderRequest{
		Provider: "anthropic",
		Payload:  json.RawMessage(`{"model":"claude-opus-4-5-20251101"}`),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Payload) != body {
		t.Error("payload was not passed through untouched")
	}
	if resp.OutputText != "surface answer" {
		t.Errorf("OutputText = %q", resp.OutputText)
	}
	if resp.ReasoningText != "deep thought" {
		t.Errorf("ReasoningText = %q", resp.ReasoningText)
	}
}

func namedEvent(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func TestStreamReconstruction(t *testing.T) {
	var stream strings.Builder
	stream.WriteString(namedEvent("message_start",
		`{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-opus-4-5-20251101","content":[],"usage":{"input_tokens":25,"output_tokens":1}}}`))
	stream.WriteString(namedEvent("content_block_start",
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`))
	stream.WriteString(namedEvent("content_block_delta",
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"let me think"}}`))
	stream.WriteString(namedEvent("content_block_delta",
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig123"}}`))
	stream.WriteString(namedEvent("content_block_stop",
		`{"type":"content_block_stop","index":0}`))
	stream.WriteString(namedEvent("content_block_start",
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`))
	stream.WriteString(namedEvent("content_block_delta",
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"hello "}}`))
	stream.WriteString(namedEvent("content_block_delta",
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"world"}}`))
	stream.WriteString(namedEvent("message_delta",
		`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"input_tokens":25,"output_tokens":42}}`))
	stream.WriteString(namedEvent("message_stop", `{"type":"message_stop"}`))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream.String()))
	}))
	defer server.Close()

	a := newTestAdapter(t, server.URL)
	var deltas []string
	resp, err := a.Stream(context.Background(), &core.ProviderRequest{
		Provider: "anthropic",
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
	if resp.ReasoningText != "let me think" {
		t.Errorf("ReasoningText = %q", resp.ReasoningText)
	}
	if strings.Join(deltas, "") != "hello world" {
		t.Errorf("deltas = %q", deltas)
	}

	payload := string(resp.Payload)
	if got := gjson.Get(payload, "content.0.type").Str; got != "thinking" {
		t.Errorf("content.0.type = %q", got)
	}
	if got := gjson.Get(payload, "content.0.signature").Str; got != "sig123" {
		t.Errorf("signature = %q", got)
	}
	if got := gjson.Get(payload, "content.1.text").Str; got != "hello world" {
		t.Errorf("content.1.text = %q", got)
	}
	if got := gjson.Get(payload, "stop_reason").Str; got != "end_turn" {
		t.Errorf("stop_reason = %q", got)
	}
	// message_delta usage supersedes the message_start snapshot.
	if got := gjson.Get(payload, "usage.output_tokens").Int(); got != 42 {
		t.Errorf("usage.output_tokens = %d, want 42", got)
	}
	if got := gjson.Get(payload, "id").Str; got != "msg_2" {
		t.Errorf("id = %q", got)
	}
}

func TestStreamDropIsPartial(t *testing.T) {
	var stream strings.Builder
	stream.WriteString(namedEvent("message_start",
		`{"type":"message_start","message":{"id":"msg_3","type":"message","role":"assistant","content":[]}}`))
	stream.WriteString(namedEvent("content_block_start",
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`))
	stream.WriteString(namedEvent("content_block_delta",
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"cut off"}}`))
	// No message_stop: the connection drops here.

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream.String()))
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
		t.Fatal("dropped stream not flagged partial")
	}
	if resp.OutputText != "cut off" {
		t.Errorf("OutputText = %q", resp.OutputText)
	}
	if got := gjson.GetBytes(resp.Payload, "content.0.text").Str; got != "cut off" {
		t.Errorf("reconstructed text = %q", got)
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
