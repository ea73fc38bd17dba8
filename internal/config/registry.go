package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/guardianvoice/maya/pkg/audio"
	"github.com/guardianvoice/maya/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider and platform names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	live      map[string]func(ProviderConfig) (live.Provider, error)
	platforms map[string]func(*Config) (audio.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:      make(map[string]func(ProviderConfig) (live.Provider, error)),
		platforms: make(map[string]func(*Config) (audio.Platform, error)),
	}
}

// RegisterLive registers a live provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(ProviderConfig) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterPlatform registers an audio platform factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterPlatform(name string, factory func(*Config) (audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[name] = factory
}

// CreateLive constructs the live provider selected by entry.Name.
func (r *Registry) CreateLive(entry ProviderConfig) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePlatform constructs the audio platform selected by cfg.Audio.Platform.
func (r *Registry) CreatePlatform(cfg *Config) (audio.Platform, error) {
	r.mu.RLock()
	factory, ok := r.platforms[cfg.Audio.Platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio platform %q", ErrProviderNotRegistered, cfg.Audio.Platform)
	}
	return factory(cfg)
}
