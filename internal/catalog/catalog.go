// Package catalog is the capability descriptor store: static per-model facts
// (parameter support, reasoning mode, output limits, price tiers, aliases)
// and per-provider transport configuration. Read-only after load; every model
// referenced by a run must resolve here or the run fails closed.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/willpenman/llm-philosophy/internal/core"
)

//go:embed models.yaml
var embeddedCatalog []byte

// Entry pairs a model descriptor with its provider's transport facts.
type Entry struct {
	Model    *core.ModelDescriptor
	Provider *core.ProviderDescriptor
}

// StorageProvider returns the partition name for the append store.
func (e *Entry) StorageProvider() string {
	if e.Model.StorageProvider != "" {
		return e.Model.StorageProvider
	}
	return e.Provider.Name
}

// Store resolves model ids and aliases to descriptors.
type Store struct {
	entries map[string]*Entry
	aliases map[string]string // alias -> canonical model id
	order   []string
}

type catalogFile struct {
	Providers map[string]*providerSection `yaml:"providers"`
}

type providerSection struct {
	core.ProviderDescriptor `yaml:",inline"`
	Models                  map[string]*core.ModelDescriptor `yaml:"models"`
}

// Load parses the embedded catalog.
func Load() (*Store, error) {
	return loadBytes(embeddedCatalog)
}

// LoadFile parses an external catalog, for independently-verified model
// facts supplied outside the binary.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return loadBytes(data)
}

func loadBytes(data []byte) (*Store, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	store := &Store{
		entries: make(map[string]*Entry),
		aliases: make(map[string]string),
	}

	providerNames := make([]string, 0, len(file.Providers))
	for name := range file.Providers {
		providerNames = append(providerNames, name)
	}
	sort.Strings(providerNames)

	for _, providerName := range providerNames {
		section := file.Providers[providerName]
		provider := section.ProviderDescriptor
		provider.Name = providerName
		if provider.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: missing base_url", providerName)
		}
		if provider.TimeoutSeconds <= 0 {
			return nil, fmt.Errorf("provider %q: missing timeout_seconds", providerName)
		}

		modelIDs := make([]string, 0, len(section.Models))
		for id := range section.Models {
			modelIDs = append(modelIDs, id)
		}
		sort.Strings(modelIDs)

		for _, id := range modelIDs {
			model := section.Models[id]
			model.ID = id
			if _, exists := store.entries[id]; exists {
				return nil, fmt.Errorf("model %q declared twice", id)
			}
			p := provider
			store.entries[id] = &Entry{Model: model, Provider: &p}
			store.order = append(store.order, id)

			for _, alias := range resolutionAliases(model) {
				if alias == id {
					continue
				}
				if prior, ok := store.aliases[alias]; ok && prior != id {
					return nil, core.NewAmbiguousAliasError(alias, []string{prior, id})
				}
				if _, ok := store.entries[alias]; ok {
					return nil, core.NewAmbiguousAliasError(alias, []string{alias, id})
				}
				store.aliases[alias] = id
			}
		}
	}

	// An alias colliding with a later-declared model id is ambiguous too.
	for alias := range store.aliases {
		if _, ok := store.entries[alias]; ok {
			return nil, core.NewAmbiguousAliasError(alias, []string{store.aliases[alias], alias})
		}
	}

	return store, nil
}

func resolutionAliases(model *core.ModelDescriptor) []string {
	aliases := append([]string(nil), model.ResolveAliases...)
	if model.WireID != "" {
		aliases = append(aliases, model.WireID)
	}
	return aliases
}

// Resolve maps a model id or alias to its descriptor. Resolution is
// case-sensitive and total; unknown ids fail closed.
func (s *Store) Resolve(modelID string) (*Entry, error) {
	if entry, ok := s.entries[modelID]; ok {
		return entry, nil
	}
	if canonical, ok := s.aliases[modelID]; ok {
		return s.entries[canonical], nil
	}
	return nil, core.NewUnknownModelError(modelID)
}

// Models returns all entries in declaration order (providers sorted, then
// model ids sorted within a provider).
func (s *Store) Models() []*Entry {
	entries := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.entries[id])
	}
	return entries
}
