package factory

import (
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// ModuleConfig declares one module instance: its registered type name and
// the raw settings the factory decodes.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Factory builds an implementation of T from raw settings.
type Factory[T any] func(map[string]any) (T, error)

// Registry maps type names to factories. The zero value is not usable; use
// NewRegistry.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// Register binds a factory to a type name. Registering the same name twice
// or a nil factory is an error.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	if f == nil {
		return fmt.Errorf("factory: nil constructor for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("factory: %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Create builds the module the config names.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("factory: no module registered as %q", cfg.Type)
	}
	return f(cfg.Conf)
}

// Decode fills the target struct using the json tags of its fields,
// matching how the config package unmarshals the rest of the configuration.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
