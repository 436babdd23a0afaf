// Package registry is the in-process directory of handler modules and the
// capabilities they expose. Modules are wired at startup and live for the
// process lifetime; there is no unregister.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrInvalidModule rejects a registration that violates the module contract.
	ErrInvalidModule = errors.New("invalid module")
	// ErrDuplicateID rejects a second registration under an already known id.
	ErrDuplicateID = errors.New("module id already registered")
	// ErrNotFound is returned by MustLookup for unknown module ids.
	ErrNotFound = errors.New("module not found")
)

// HandlerFunc executes one intent. Entities carry the structured arguments,
// callContext carries ambient state; both may be nil.
type HandlerFunc func(ctx context.Context, intent string, entities, callContext map[string]any) (any, error)

// Module describes a named unit of capability. ID is the immutable registry
// key; Priority only breaks ties between modules advertising the same
// capability (higher wins, default 0).
type Module struct {
	ID           string
	Name         string
	Capabilities []string
	Priority     int
	Init         func(ctx context.Context) error
	HandleIntent HandlerFunc
}

// Registry maps module ids to modules and capability names to providers.
// Safe for concurrent use; mutation happens only through Register.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	// byCapability keeps module ids in registration order per capability.
	byCapability map[string][]string
	registered   map[string]time.Time
}

func New() *Registry {
	return &Registry{
		modules:      map[string]*Module{},
		byCapability: map[string][]string{},
		registered:   map[string]time.Time{},
	}
}

// Register validates and inserts a module. The registry stores a shallow copy,
// so later mutation of the caller's value does not affect routing. Returns
// ErrDuplicateID when the id is taken and ErrInvalidModule for contract
// violations; in both cases the registry is left unchanged.
func (r *Registry) Register(m *Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", ErrInvalidModule)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidModule)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: module %q missing name", ErrInvalidModule, m.ID)
	}
	if m.Capabilities == nil {
		return fmt.Errorf("%w: module %q missing capabilities", ErrInvalidModule, m.ID)
	}
	if m.Init == nil {
		return fmt.Errorf("%w: module %q missing init", ErrInvalidModule, m.ID)
	}
	if m.HandleIntent == nil {
		return fmt.Errorf("%w: module %q missing intent handler", ErrInvalidModule, m.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, m.ID)
	}
	stored := *m
	stored.Capabilities = append([]string(nil), m.Capabilities...)
	r.modules[m.ID] = &stored
	r.registered[m.ID] = time.Now()
	for _, capability := range stored.Capabilities {
		r.byCapability[capability] = append(r.byCapability[capability], m.ID)
	}
	return nil
}

// Lookup returns the module registered under id.
func (r *Registry) Lookup(id string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// MustLookup is the strict variant of Lookup.
func (r *Registry) MustLookup(id string) (*Module, error) {
	if m, ok := r.Lookup(id); ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// ListAll returns every registered module in unspecified order.
func (r *Registry) ListAll() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	return out
}

// FindByCapability returns the modules advertising capability, sorted by
// descending priority. Equal priorities keep registration order. An unknown
// capability yields an empty slice, never an error.
func (r *Registry) FindByCapability(capability string) []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byCapability[capability]
	out := make([]*Module, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.modules[id]; ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// ListCapabilities returns all known capability names, alphabetically sorted.
func (r *Registry) ListCapabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byCapability))
	for capability := range r.byCapability {
		out = append(out, capability)
	}
	sort.Strings(out)
	return out
}

// RegistrationInfo returns when id was registered.
func (r *Registry) RegistrationInfo(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.registered[id]
	return at, ok
}

// InitAll runs every module's Init in registration-independent order and
// returns the first failure.
func (r *Registry) InitAll(ctx context.Context) error {
	for _, m := range r.ListAll() {
		if err := m.Init(ctx); err != nil {
			return fmt.Errorf("init module %q: %w", m.ID, err)
		}
	}
	return nil
}
