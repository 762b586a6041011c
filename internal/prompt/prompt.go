// Package prompt loads the evaluation fixtures: the shared system prompt and
// the per-puzzle problem statements. Fixtures are YAML documents embedded in
// the binary and overridable by a directory on disk, so a run's exact input
// text is always reconstructible.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed system.yaml puzzles
var embeddedFixtures embed.FS

// SystemPrompt is the shared framing text sent as the system message.
type SystemPrompt struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Text    string `yaml:"text"`
	Notes   string `yaml:"notes,omitempty"`
}

// Puzzle is one problem statement sent as the user message.
type Puzzle struct {
	Name    string   `yaml:"name"`
	Title   string   `yaml:"title,omitempty"`
	Version string   `yaml:"version,omitempty"`
	Domain  string   `yaml:"domain,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
	Text    string   `yaml:"text"`
	Notes   string   `yaml:"notes,omitempty"`
}

// DisplayTitle returns the title, falling back to the name.
func (p *Puzzle) DisplayTitle() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}

// LoadSystemPrompt reads system.yaml from dir, or the embedded fixture when
// dir is empty.
func LoadSystemPrompt(dir string) (*SystemPrompt, error) {
	data, err := readFixture(dir, "system.yaml")
	if err != nil {
		return nil, err
	}
	var sp SystemPrompt
	if err := yaml.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	if strings.TrimSpace(sp.Text) == "" {
		return nil, fmt.Errorf("system prompt has no text")
	}
	return &sp, nil
}

// LoadPuzzle reads puzzles/<name>.yaml from dir, or the embedded fixture when
// dir is empty. A fixture whose declared name disagrees with its filename is
// rejected rather than silently trusted.
func LoadPuzzle(dir, name string) (*Puzzle, error) {
	data, err := readFixture(dir, filepath.Join("puzzles", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("puzzle %q: %w", name, err)
	}
	var p Puzzle
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse puzzle %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.Name != name {
		return nil, fmt.Errorf("puzzle %q: fixture declares name %q", name, p.Name)
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, fmt.Errorf("puzzle %q has no text", name)
	}
	return &p, nil
}

// ListPuzzles returns the available puzzle names, sorted.
func ListPuzzles(dir string) ([]string, error) {
	var entries []fs.DirEntry
	var err error
	if dir == "" {
		entries, err = embeddedFixtures.ReadDir("puzzles")
	} else {
		entries, err = os.ReadDir(filepath.Join(dir, "puzzles"))
	}
	if err != nil {
		return nil, fmt.Errorf("list puzzles: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

func readFixture(dir, rel string) ([]byte, error) {
	if dir == "" {
		return embeddedFixtures.ReadFile(filepath.ToSlash(rel))
	}
	return os.ReadFile(filepath.Join(dir, rel))
}

// Output length guidance. Word estimates rather than page counts: they don't
// presume a format, and tokenization varies enough per provider that anything
// more precise would be false precision.
var outputLengthGuidance = []struct {
	maxOutputTokens int
	label           string
}{
	{4000, "a few pages"},
	{8000, "about 2,000 words"},
	{16000, "about 4,000 words"},
	{32000, "about 8,000 words"},
	{64000, "about 16,000 words"},
	{100000, "about 25,000 words"},
	{128000, "about 32,000 words"},
	{256000, "about 64,000 words"},
}

// WithLengthGuidance appends the output-length sentence for the given token
// cap. Below the smallest threshold no guidance applies and the text is
// returned unchanged. The leading space preserves single-paragraph formatting.
func WithLengthGuidance(systemText string, maxOutputTokens int) string {
	label := ""
	for _, g := range outputLengthGuidance {
		if maxOutputTokens >= g.maxOutputTokens {
			label = g.label
		}
	}
	if label == "" {
		return systemText
	}
	return systemText + fmt.Sprintf(
		" For a problem with unrestricted length, your response may be up to %s (max %s tokens), if desired.",
		label, groupThousands(maxOutputTokens))
}

// FormatInputText renders the combined input the text artifacts record.
func FormatInputText(systemText, puzzleText string) string {
	return fmt.Sprintf("System:\n%s\n\nUser:\n%s", systemText, puzzleText)
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
