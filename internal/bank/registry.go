package bank

import (
	"sort"
	"sync"
	"time"
)

// RegistryOptions configures adapter construction.
type RegistryOptions struct {
	Client   *Client
	Location *time.Location
}

// Registry resolves institution codes to adapters.
type Registry struct {
	mu       sync.RWMutex
	catalog  Catalog
	adapters map[string]Adapter
	fallback Adapter
}

// Constructor builds the adapter for one catalog entry.
type Constructor func(inst Institution, c *Client, loc *time.Location) Adapter

// builtin maps institution codes to their adapter constructors.
var builtin = map[string]Constructor{
	"bbva":      func(i Institution, c *Client, l *time.Location) Adapter { return NewBBVA(i, c, l) },
	"banorte":   func(i Institution, c *Client, l *time.Location) Adapter { return NewBanorte(i, c, l) },
	"santander": func(i Institution, c *Client, l *time.Location) Adapter { return NewSantander(i, c, l) },
	"belvo":     func(i Institution, c *Client, l *time.Location) Adapter { return NewBelvo(i, c, l) },
}

// NewRegistry builds the built-in adapters for every catalog entry that has one.
func NewRegistry(catalog Catalog, opts RegistryOptions) *Registry {
	if opts.Client == nil {
		opts.Client = NewClient(ClientOptions{})
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	r := &Registry{
		catalog:  catalog,
		adapters: make(map[string]Adapter),
		fallback: NewGeneric(catalog[GenericCode]),
	}
	for code, inst := range catalog {
		if build, ok := builtin[code]; ok {
			r.adapters[code] = build(inst, opts.Client, opts.Location)
		}
	}
	return r
}

// Register adds or replaces the adapter for its institution code.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[NormalizeCode(a.Institution().Code)] = a
}

// Lookup returns the adapter for code, or the generic fallback.
func (r *Registry) Lookup(code string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[NormalizeCode(code)]; ok {
		return a
	}
	return r.fallback
}

// Supported reports whether code has a real adapter.
func (r *Registry) Supported(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[NormalizeCode(code)]
	return ok
}

// Institution returns the catalog entry for code.
func (r *Registry) Institution(code string) (Institution, bool) {
	inst, ok := r.catalog[NormalizeCode(code)]
	return inst, ok
}

// Codes lists the codes with real adapters, sorted.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
