package plugin

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// FactoryRegistry is the host-side Registrar. It maps node type ids to the
// factory and owning plugin that provide them.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]registered
}

type registered struct {
	pluginID string
	factory  NodeFactory
}

// NewFactoryRegistry creates an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]registered)}
}

// For returns a Registrar that records pluginID as the owner of every factory
// registered through it.
func (r *FactoryRegistry) For(pluginID string) Registrar {
	return &scoped{reg: r, pluginID: pluginID}
}

func (r *FactoryRegistry) register(pluginID string, f NodeFactory) error {
	if f == nil {
		return NewError(KindRegistration, "nil node factory from plugin %s", pluginID)
	}
	typeID := strings.TrimSpace(f.Metadata().TypeID)
	if typeID == "" {
		return NewError(KindRegistration, "node factory from plugin %s has no type id", pluginID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.factories[typeID]; ok {
		return NewError(KindRegistration, "node type %q already registered by plugin %s", typeID, prev.pluginID)
	}
	r.factories[typeID] = registered{pluginID: pluginID, factory: f}
	return nil
}

// Lookup returns the factory for typeID and the plugin that registered it.
func (r *FactoryRegistry) Lookup(typeID string) (NodeFactory, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[typeID]
	if !ok {
		return nil, "", NewError(KindOther, "node type %q is not registered", typeID)
	}
	return reg.factory, reg.pluginID, nil
}

// NodeTypes returns every registered type id, sorted.
func (r *FactoryRegistry) NodeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// HasNodeType reports whether typeID is registered.
func (r *FactoryRegistry) HasNodeType(typeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeID]
	return ok
}

// RemovePlugin drops every factory registered by pluginID and returns how many
// were removed.
func (r *FactoryRegistry) RemovePlugin(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.factories)
	maps.DeleteFunc(r.factories, func(_ string, reg registered) bool {
		return reg.pluginID == pluginID
	})
	return n - len(r.factories)
}

type scoped struct {
	reg      *FactoryRegistry
	pluginID string
}

func (s *scoped) RegisterNodeFactory(f NodeFactory) error {
	if err := s.reg.register(s.pluginID, f); err != nil {
		return fmt.Errorf("register %s: %w", s.pluginID, err)
	}
	return nil
}

func (s *scoped) NodeTypes() []string {
	return s.reg.NodeTypes()
}

func (s *scoped) HasNodeType(typeID string) bool {
	return s.reg.HasNodeType(typeID)
}

var _ Registrar = (*scoped)(nil)
