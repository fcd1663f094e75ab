package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps provider names to providers and holds the process-wide
// credentials. Adding a provider never touches router logic.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	creds     Credentials
}

// NewRegistry creates a Registry that resolves secrets from creds.
func NewRegistry(creds Credentials) *Registry {
	copied := make(Credentials, len(creds))
	for k, v := range creds {
		copied[k] = v
	}
	return &Registry{
		providers: make(map[string]Provider),
		creds:     copied,
	}
}

// Register adds p. Duplicate or empty names are wiring bugs and panic.
func (r *Registry) Register(p Provider) {
	name := strings.TrimSpace(p.Name())
	if name == "" {
		panic("provider: register with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.providers[name]; dup {
		panic(fmt.Sprintf("provider: %q registered twice", name))
	}
	r.providers[name] = p
}

// Resolve looks up a provider by name.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Credentials returns the secrets p declared, or a *MissingSecretError when
// one is absent. It never performs I/O.
func (r *Registry) Credentials(p Provider) (Credentials, error) {
	secrets := p.RequiredSecrets()
	if err := r.creds.Require(p.Name(), secrets...); err != nil {
		return nil, err
	}
	return r.creds.Subset(secrets...), nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
