// Package app maps entrypoint names to HTTP application factories.
//
// The supervisor never inspects an application beyond resolving its
// entrypoint string; everything behind the returned handler belongs to the
// application itself.
package app

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Factory builds the application handler inside a worker process.
type Factory func() (http.Handler, error)

var (
	// ErrNotRegistered is the load error for an unknown entrypoint.
	ErrNotRegistered = errors.New("application entrypoint not registered")

	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes an application loadable under the given entrypoint name.
// Registering the same name twice panics; that is always a programming
// error in the embedding binary.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if name == "" {
		panic("app: entrypoint name must not be empty")
	}
	if factory == nil {
		panic("app: factory must not be nil")
	}
	if _, dup := registry[name]; dup {
		panic("app: duplicate entrypoint " + name)
	}
	registry[name] = factory
}

// Resolve loads the application registered under name. A missing name or a
// failing factory is a load error for the calling worker.
func Resolve(name string) (http.Handler, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	handler, err := factory()
	if err != nil {
		return nil, fmt.Errorf("entrypoint %q failed to load: %w", name, err)
	}
	return handler, nil
}

// Registered returns the known entrypoint names, for diagnostics.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
