// Package providers provides the adapter factory. Adapter packages register
// themselves from init(); a blank import of each adapter package is what puts
// it in the registry.
package providers

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/willpenman/llm-philosophy/internal/core"
)

// Options carries the per-provider wiring resolved at startup: catalog
// transport facts, the API key, and the timeout-configured HTTP client.
type Options struct {
	Descriptor *core.ProviderDescriptor
	APIKey     string
	HTTPClient *http.Client
}

// Builder creates an adapter instance from options.
type Builder func(opts Options) (core.Adapter, error)

// registry holds all registered adapter builders.
var registry = make(map[string]Builder)

// Register allows adapter packages to register themselves. This should be
// called from init() functions in adapter packages.
func Register(name string, builder Builder) {
	registry[name] = builder
}

// Create instantiates the named provider's adapter.
func Create(name string, opts Options) (core.Adapter, error) {
	builder, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return builder(opts)
}

// ListRegistered returns all registered provider names, sorted.
func ListRegistered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
