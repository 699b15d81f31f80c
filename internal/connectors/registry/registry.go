package registry

import (
	"fmt"
	"strings"
)

// ConnectorRegistry keeps connector definitions in registration order.
type ConnectorRegistry struct {
	definitions map[string]ConnectorDefinition
	order       []string
}

// NewRegistry creates a new connector registry.
func NewRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{
		definitions: make(map[string]ConnectorDefinition),
		order:       make([]string, 0),
	}
}

// Register adds a connector definition to the registry.
func (r *ConnectorRegistry) Register(def ConnectorDefinition) error {
	if def == nil {
		return fmt.Errorf("connector definition is nil")
	}
	kind := strings.ToLower(strings.TrimSpace(def.Kind()))
	if kind == "" {
		return fmt.Errorf("connector kind cannot be empty")
	}
	if _, exists := r.definitions[kind]; exists {
		return fmt.Errorf("connector kind %q already registered", kind)
	}
	r.definitions[kind] = def
	r.order = append(r.order, kind)
	return nil
}

// Get retrieves a connector definition by kind.
func (r *ConnectorRegistry) Get(kind string) (ConnectorDefinition, bool) {
	def, ok := r.definitions[strings.ToLower(strings.TrimSpace(kind))]
	return def, ok
}

// All returns all registered connector definitions in order.
func (r *ConnectorRegistry) All() []ConnectorDefinition {
	defs := make([]ConnectorDefinition, 0, len(r.order))
	for _, kind := range r.order {
		defs = append(defs, r.definitions[kind])
	}
	return defs
}
