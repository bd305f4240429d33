package agentic

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/victorarias/agentic-relay/agentic/schema"
)

// Registry stores the tool definitions offered to the model. It is the
// source of truth for tool names and input schemas when calls are
// validated and repaired.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]ToolDefinition
	policy Policy
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPolicy sets the registry policy.
func WithPolicy(policy Policy) RegistryOption {
	return func(r *Registry) {
		if policy != nil {
			r.policy = policy
		}
	}
}

// NewRegistry creates an empty registry with optional policy.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]ToolDefinition),
		policy: AllowAllPolicy{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tool definitions to the registry, filling SchemaHash when
// the definition carries a schema.
func (r *Registry) Register(defs ...ToolDefinition) error {
	prepared := make([]ToolDefinition, 0, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("tool at index %d has empty name", i)
		}
		if def.SchemaHash == "" && len(def.InputSchema) > 0 {
			hash, err := schema.HashJSON(def.InputSchema)
			if err != nil {
				return fmt.Errorf("tool %s: invalid input schema: %w", def.Name, err)
			}
			def.SchemaHash = hash
		}
		prepared = append(prepared, def)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range prepared {
		r.tools[def.Name] = def
	}
	return nil
}

// ListTools returns tool definitions in stable order.
func (r *Registry) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		if err := r.policy.AllowTool(def); err != nil {
			continue
		}
		defs = append(defs, def)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})

	return defs, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (ToolDefinition, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ToolDefinition{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if err := r.policy.AllowTool(def); err != nil {
		return ToolDefinition{}, err
	}
	return def, nil
}

// Names returns the visible tool names in stable order.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	defs, err := r.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names, nil
}
