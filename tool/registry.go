package tool

import "sync"

// Registry is a name-keyed, append-only-per-instance collection of
// capability descriptors built once per (workspace, backend-configuration)
// pair. A registry handed to a client is frozen for that client's lifetime;
// configuration changes discard the registry wholesale and build a new one,
// so a client always observes one consistent snapshot.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Descriptor
	order  []string
	frozen bool
}

// NewRegistry creates an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a descriptor. It fails with ErrDuplicateName on collision
// and with ErrExecution once the registry has been frozen.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return NewError(ErrExecution, "registry is frozen; rebuild instead of mutating")
	}

	name := d.Name()
	if _, exists := r.tools[name]; exists {
		return NewError(ErrDuplicateName, "tool already registered: %s", name)
	}

	r.tools[name] = d
	r.order = append(r.order, name)
	return nil
}

// Freeze closes the registry for registration. Idempotent. After Freeze the
// registry is read-only and safe to share without locking concerns.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the registry has been closed for registration.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get resolves a descriptor by name, failing with ErrNotFound on a miss.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return nil, NewError(ErrNotFound, "tool not found: %s", name)
	}
	return d, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Declarations returns the advertisement payload for every capability, in
// registration order, stable for the life of the registry instance.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name]
		decls = append(decls, Declaration{
			Name:        d.Name(),
			Description: d.Description(),
			Parameters:  d.Schema(),
		})
	}
	return decls
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
