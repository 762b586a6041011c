// Package runstore persists run records as append-only JSONL partitioned by
// provider and model, plus one human-readable text artifact per completed
// run. Records are single lines written with one Write on an O_APPEND
// handle, so uncoordinated processes can share a partition without
// interleaving. Nothing is ever rewritten or deleted.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/willpenman/llm-philosophy/internal/core"
)

const (
	requestsFile  = "requests.jsonl"
	responsesFile = "responses.jsonl"
	textsDir      = "texts"
	debugDir      = "debug"
)

var slugPattern = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Slugify collapses a label to filename-safe form: non-alphanumeric runs
// become underscores, edges are trimmed, the result is lowercased. An empty
// result falls back to "default".
func Slugify(value string) string {
	cleaned := strings.ToLower(strings.Trim(slugPattern.ReplaceAllString(value, "_"), "_"))
	if cleaned == "" {
		return "default"
	}
	return cleaned
}

// NormalizeSpecialSettings maps the free-form settings label onto its storage
// slug; blank and "default" both normalize to "default".
func NormalizeSpecialSettings(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "default") {
		return "default"
	}
	return Slugify(trimmed)
}

// Store is the append-only run archive rooted at a base directory.
type Store struct {
	baseDir string
}

// New creates a store rooted at baseDir. Directories are created lazily on
// first write.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the archive root.
func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) partitionDir(provider, model string) string {
	return filepath.Join(s.baseDir, provider, model)
}

// appendJSONL writes one record as a single line with a single Write call.
func (s *Store) appendJSONL(path string, rec *core.RunRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return core.NewStoreError("marshal run record", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewStoreError("create partition directory", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return core.NewStoreError("open "+filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return core.NewStoreError("append to "+filepath.Base(path), err)
	}
	return nil
}

// AppendRequest logs the outbound request record before transport. The
// partition comes from the record's provider and model fields.
func (s *Store) AppendRequest(rec *core.RunRecord) (string, error) {
	path := filepath.Join(s.partitionDir(rec.Provider, rec.Model), requestsFile)
	if err := s.appendJSONL(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

// AppendResponse logs the paired response record under the same run id.
func (s *Store) AppendResponse(rec *core.RunRecord) (string, error) {
	path := filepath.Join(s.partitionDir(rec.Provider, rec.Model), responsesFile)
	if err := s.appendJSONL(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

// TextArtifact carries everything the human-readable capture file needs.
type TextArtifact struct {
	Provider        string
	Model           string
	ModelDisplay    string
	ProviderDisplay string
	TitlePrefix     string
	PuzzleTitle     string
	PuzzleName      string
	PuzzleVersion   string
	SpecialSettings string
	CreatedAt       string
	InputText       string
	OutputText      string
}

func filenameTimestamp(createdAt string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		t = time.Now().UTC()
	}
	return t.UTC().Format("2006-01-02T150405Z")
}

func displayDate(createdAt string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		t = time.Now().UTC()
	}
	return t.UTC().Format("Jan 02, 2006")
}

func textFilename(art TextArtifact) string {
	version := art.PuzzleVersion
	if version == "" {
		version = "unknown"
	}
	return fmt.Sprintf("%s-%s-v%s-%s.md",
		NormalizeSpecialSettings(art.SpecialSettings),
		art.PuzzleName,
		version,
		filenameTimestamp(art.CreatedAt),
	)
}

// WriteText renders and writes the per-run text artifact, returning its path.
func (s *Store) WriteText(art TextArtifact) (string, error) {
	dir := filepath.Join(s.partitionDir(art.Provider, art.Model), textsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", core.NewStoreError("create texts directory", err)
	}

	modelDisplay := art.ModelDisplay
	if modelDisplay == "" {
		modelDisplay = art.Model
	}
	providerDisplay := art.ProviderDisplay
	if providerDisplay == "" {
		providerDisplay = art.Provider
	}
	title := art.PuzzleTitle
	if title == "" {
		title = art.PuzzleName
	}
	prefix := art.TitlePrefix
	if prefix == "" {
		prefix = "Philosophy problem"
	}
	settingsSuffix := ""
	if NormalizeSpecialSettings(art.SpecialSettings) != "default" {
		settingsSuffix = ", " + art.SpecialSettings
	}

	body := strings.Join([]string{
		fmt.Sprintf("%s: %s", prefix, title),
		fmt.Sprintf("Model: %s (%s)%s", modelDisplay, providerDisplay, settingsSuffix),
		fmt.Sprintf("Completed: %s", displayDate(art.CreatedAt)),
		"",
		"---- INPUT ----",
		art.InputText,
		"",
		fmt.Sprintf("---- %s'S OUTPUT ----", modelDisplay),
		art.OutputText,
	}, "\n")

	path := filepath.Join(dir, textFilename(art))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", core.NewStoreError("write text artifact", err)
	}
	return path, nil
}

// DebugLog captures every raw stream event of one run as its own JSONL file.
type DebugLog struct {
	f   *os.File
	seq int
}

// OpenDebugLog creates the per-run event capture file under the partition's
// debug directory.
func (s *Store) OpenDebugLog(provider, model, runID string) (*DebugLog, error) {
	dir := filepath.Join(s.partitionDir(provider, model), debugDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewStoreError("create debug directory", err)
	}
	path := filepath.Join(dir, runID+".events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, core.NewStoreError("open debug log", err)
	}
	return &DebugLog{f: f}, nil
}

// Path returns the capture file location.
func (l *DebugLog) Path() string { return l.f.Name() }

// Append writes one raw stream event with its arrival order.
func (l *DebugLog) Append(ev core.StreamEvent) error {
	l.seq++
	record := struct {
		Seq  int             `json:"seq"`
		Kind string          `json:"kind,omitempty"`
		Data json.RawMessage `json:"data"`
	}{Seq: l.seq, Kind: ev.Kind, Data: ev.Raw}
	line, err := json.Marshal(record)
	if err != nil {
		return core.NewStoreError("marshal debug event", err)
	}
	line = append(line, '\n')
	if _, err := l.f.Write(line); err != nil {
		return core.NewStoreError("append debug event", err)
	}
	return nil
}

// Close releases the capture file.
func (l *DebugLog) Close() error { return l.f.Close() }
