// Package importer provides the raw-record import capability for building a
// dataset inventory from a named source type.
package importer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// RawAttributes holds the imported attributes of one record before label
// filtering is applied.
type RawAttributes struct {
	Labels map[string][]string `json:"labels"`
	Images []string            `json:"images,omitempty"`
	Meta   map[string]string   `json:"meta,omitempty"`
}

// Importer produces the raw record map from a source location. A malformed
// or unreadable source must be reported as an error, never as a partial
// silent result.
type Importer interface {
	Import(ctx context.Context, path string) (map[string]RawAttributes, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Importer)
)

// Register adds an importer factory under a source type name. Registering a
// duplicate name panics; importer names are a compile-time contract.
func Register(name string, factory func() Importer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("importer: duplicate registration for %q", name))
	}
	registry[name] = factory
}

// Create returns a new importer for the given source type.
func Create(sourceType string) (Importer, error) {
	registryMu.RLock()
	factory, ok := registry[sourceType]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Newf("unknown importer source type %q (available: %v)", sourceType, Names()).
			Category(errors.CategoryNotFound).
			Context("source_type", sourceType).
			Build()
	}
	return factory(), nil
}

// Names returns the sorted list of registered source types.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
