package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// OptionsRegistry holds the named provider option sets a host registers once
// at startup ("github", "twitter", ...) and reads for every account flow it
// constructs.
type OptionsRegistry struct {
	mu        sync.RWMutex
	providers map[string]Options
}

func NewOptionsRegistry() *OptionsRegistry {
	return &OptionsRegistry{providers: make(map[string]Options)}
}

func (r *OptionsRegistry) Register(name string, options Options) error {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("core: provider name is required")
	}
	if err := options.WithDefaults().Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("core: provider already registered: %s", name)
	}
	r.providers[name] = options
	return nil
}

func (r *OptionsRegistry) Get(name string) (Options, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Options{}, false
	}
	r.mu.RLock()
	options, ok := r.providers[name]
	r.mu.RUnlock()
	return options, ok
}

func (r *OptionsRegistry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
