// Package registry maps portal keys to engine factories.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"portalgrades/internal/portal"
)

var (
	ErrDuplicateEngine = errors.New("engine already registered")
	ErrFrozen          = errors.New("registry is frozen")
)

// Registry is a case-insensitive map from portal key to engine factory.
// Registration happens at startup, lookups are safe from any goroutine.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]portal.Factory
	frozen    bool
}

func New() *Registry {
	return &Registry{factories: map[string]portal.Factory{}}
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *Registry) Register(key string, factory portal.Factory) error {
	normalized := normalize(key)
	if normalized == "" {
		return fmt.Errorf("register: empty portal key")
	}
	if factory == nil {
		return fmt.Errorf("register %s: nil factory", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: %w", key, ErrFrozen)
	}
	if _, exists := r.factories[normalized]; exists {
		return fmt.Errorf("register %s: %w", key, ErrDuplicateEngine)
	}
	r.factories[normalized] = factory
	return nil
}

// MustRegister is Register that panics, for static startup lists.
func (r *Registry) MustRegister(key string, factory portal.Factory) {
	err := r.Register(key, factory)
	if err != nil {
		panic(err)
	}
}

// Freeze makes every later Register fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns a fresh engine for key or an *portal.UnknownPortalError.
func (r *Registry) Resolve(key string) (portal.Engine, error) {
	r.mu.RLock()
	factory, ok := r.factories[normalize(key)]
	r.mu.RUnlock()

	if !ok {
		return nil, &portal.UnknownPortalError{Key: key}
	}
	return factory(), nil
}

// Keys lists the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
