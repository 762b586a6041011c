package runstore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/willpenman/llm-philosophy/internal/core"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Temperature 0.5", "temperature_0_5"},
		{"--odd--label--", "odd_label"},
		{"", "default"},
		{"!!!", "default"},
		{"already_fine", "already_fine"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSpecialSettings(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "default"},
		{"  ", "default"},
		{"Default", "default"},
		{"seed 42", "seed_42"},
	}
	for _, tt := range tests {
		if got := NormalizeSpecialSettings(tt.in); got != tt.want {
			t.Errorf("NormalizeSpecialSettings(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sampleRecord(runID string) *core.RunRecord {
	return &core.RunRecord{
		RunID:           runID,
		CreatedAt:       "2026-08-24T10:30:00.123456Z",
		Provider:        "anthropic",
		Model:           "claude-opus-4-5-20251101",
		PuzzleName:      "panopticon",
		PuzzleVersion:   "0.8",
		SpecialSettings: "default",
		Request:         json.RawMessage(`{"model":"claude-opus-4-5-20251101"}`),
	}
}

func TestAppendRequestAndResponse(t *testing.T) {
	store := New(t.TempDir())

	reqPath, err := store.AppendRequest(sampleRecord("run-1"))
	if err != nil {
		t.Fatalf("AppendRequest: %v", err)
	}
	wantReq := filepath.Join(store.BaseDir(), "anthropic", "claude-opus-4-5-20251101", "requests.jsonl")
	if reqPath != wantReq {
		t.Errorf("request path = %q, want %q", reqPath, wantReq)
	}

	resp := sampleRecord("run-1")
	resp.Response = json.RawMessage(`{"id":"msg_1"}`)
	respPath, err := store.AppendResponse(resp)
	if err != nil {
		t.Fatalf("AppendResponse: %v", err)
	}

	for _, path := range []string{reqPath, respPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) != 1 {
			t.Fatalf("%s holds %d lines, want 1", path, len(lines))
		}
		var rec core.RunRecord
		if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
			t.Fatalf("record in %s is not valid JSON: %v", path, err)
		}
		if rec.RunID != "run-1" {
			t.Errorf("run_id = %q", rec.RunID)
		}
	}
}

func TestAppendNeverTruncates(t *testing.T) {
	store := New(t.TempDir())
	for i := 0; i < 3; i++ {
		if _, err := store.AppendRequest(sampleRecord("run-1")); err != nil {
			t.Fatalf("AppendRequest: %v", err)
		}
	}
	path := filepath.Join(store.BaseDir(), "anthropic", "claude-opus-4-5-20251101", "requests.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 3 {
		t.Errorf("line count = %d, want 3", got)
	}
}

func TestConcurrentAppends(t *testing.T) {
	store := New(t.TempDir())
	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := store.AppendRequest(sampleRecord("run-c")); err != nil {
					t.Errorf("AppendRequest: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	path := filepath.Join(store.BaseDir(), "anthropic", "claude-opus-4-5-20251101", "requests.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var rec core.RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("interleaved record: %v", err)
		}
		count++
	}
	if count != writers*perWriter {
		t.Errorf("records = %d, want %d", count, writers*perWriter)
	}
}

func TestWriteText(t *testing.T) {
	store := New(t.TempDir())
	path, err := store.WriteText(TextArtifact{
		Provider:        "anthropic",
		Model:           "claude-opus-4-5-20251101",
		ModelDisplay:    "Opus 4.5",
		ProviderDisplay: "Anthropic",
		PuzzleTitle:     "LLM Panopticon",
		PuzzleName:      "panopticon",
		PuzzleVersion:   "0.8",
		SpecialSettings: "default",
		CreatedAt:       "2026-08-24T10:30:00.123456Z",
		InputText:       "System:\nsys\n\nUser:\nuser",
		OutputText:      "the model's answer",
	})
	if err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	if got := filepath.Base(path); got != "default-panopticon-v0.8-2026-08-24T103000Z.md" {
		t.Errorf("filename = %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)

	wantLines := []string{
		"Philosophy problem: LLM Panopticon",
		"Model: Opus 4.5 (Anthropic)",
		"Completed: Aug 24, 2026",
		"---- INPUT ----",
		"---- Opus 4.5'S OUTPUT ----",
		"the model's answer",
	}
	for _, want := range wantLines {
		if !strings.Contains(body, want) {
			t.Errorf("artifact missing %q", want)
		}
	}
}

func TestWriteTextSettingsSuffix(t *testing.T) {
	store := New(t.TempDir())
	path, err := store.WriteText(TextArtifact{
		Provider:        "openai",
		Model:           "o3-2025-04-16",
		ModelDisplay:    "o3",
		SpecialSettings: "temperature 0.5",
		PuzzleName:      "panopticon",
		PuzzleVersion:   "0.8",
		CreatedAt:       "2026-08-24T10:30:00Z",
		OutputText:      "out",
	})
	if err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if got := filepath.Base(path); !strings.HasPrefix(got, "temperature_0_5-panopticon-") {
		t.Errorf("filename = %q", got)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "Model: o3 (openai), temperature 0.5") {
		t.Errorf("settings suffix missing from %q", string(data))
	}
}

func TestDebugLog(t *testing.T) {
	store := New(t.TempDir())
	log, err := store.OpenDebugLog("openai", "o3-2025-04-16", "run-9")
	if err != nil {
		t.Fatalf("OpenDebugLog: %v", err)
	}
	events := []core.StreamEvent{
		{Kind: "response.output_text.delta", Raw: json.RawMessage(`{"delta":"a"}`)},
		{Kind: "response.completed", Raw: json.RawMessage(`{"response":{}}`)},
	}
	for _, ev := range events {
		if err := log.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(log.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var first struct {
		Seq  int             `json:"seq"`
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Seq != 1 || first.Kind != "response.output_text.delta" {
		t.Errorf("first event = %+v", first)
	}
}
