package provider

import (
	"fmt"
	"sort"
)

// Registry resolves adapters by provider code. Built once at startup; safe
// for concurrent reads.
type Registry struct {
	adapters    map[string]Adapter
	defaultCode string
}

// NewRegistry creates a registry with the given default provider code.
func NewRegistry(defaultCode string) *Registry {
	return &Registry{
		adapters:    make(map[string]Adapter),
		defaultCode: defaultCode,
	}
}

// Register adds an adapter under its own code.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Code()] = a
}

// Get resolves an adapter by code. An empty code resolves the default
// provider.
func (r *Registry) Get(code string) (Adapter, error) {
	if code == "" {
		code = r.defaultCode
	}
	a, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", code)
	}
	return a, nil
}

// DefaultCode returns the default provider code.
func (r *Registry) DefaultCode() string {
	return r.defaultCode
}

// Codes lists the registered provider codes, sorted.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
