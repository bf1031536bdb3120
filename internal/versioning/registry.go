package versioning

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one VersionConfig per base character for the lifetime of
// the process. It is constructed explicitly and injected into the service;
// there is no package-level instance.
//
// Thread safety: Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*VersionConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*VersionConfig)}
}

// Register validates the config and stores it, replacing any existing
// config for the same character.
func (r *Registry) Register(cfg VersionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.CharacterID] = cfg.Clone()
	return nil
}

// RegisterAll registers every config, stopping at the first invalid one.
func (r *Registry) RegisterAll(cfgs []VersionConfig) error {
	for _, cfg := range cfgs {
		if err := r.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the config for the character or ErrNotFound.
func (r *Registry) Get(characterID string) (*VersionConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[characterID]
	if !ok {
		return nil, fmt.Errorf("%w: character %q", ErrNotFound, characterID)
	}
	return cfg.Clone(), nil
}

// CharacterIDs returns the registered character ids in sorted order.
func (r *Registry) CharacterIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
