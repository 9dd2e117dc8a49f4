package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]ExtractionProfile)
	registryMu sync.RWMutex
)

// Register adds a profile to the registry.
// Panics if the profile is invalid or a profile with the same name is already registered.
func Register(p ExtractionProfile) {
	if err := RegisterProfile(p); err != nil {
		panic(err.Error())
	}
}

// RegisterProfile adds a profile to the registry, returning an error
// instead of panicking. Used for profiles loaded at runtime.
func RegisterProfile(p ExtractionProfile) error {
	if p.EmptyPolicy == "" {
		p.EmptyPolicy = EmptyDrop
	}
	if err := p.Validate(); err != nil {
		return err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[p.Name]; exists {
		return &ConfigError{Field: "profile " + p.Name, Reason: "already registered"}
	}

	registry[p.Name] = p
	return nil
}

// Get returns a profile by name.
// Returns false if not found.
func Get(name string) (ExtractionProfile, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[name]
	return p, ok
}

// Resolve returns a profile by name, or a *ConfigError naming the known profiles.
func Resolve(name string) (ExtractionProfile, error) {
	if p, ok := Get(name); ok {
		return p, nil
	}
	return ExtractionProfile{}, &ConfigError{
		Field:  "profile",
		Reason: fmt.Sprintf("unknown profile %q (known: %v)", name, Names()),
	}
}

// All returns all registered profiles sorted by name.
func All() []ExtractionProfile {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ExtractionProfile, 0, len(registry))
	for _, p := range registry {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Names returns all registered profile names, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name
	}
	return names
}

// ProfileCount returns the number of registered profiles.
func ProfileCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered profiles.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]ExtractionProfile)
}
