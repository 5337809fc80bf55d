package tool

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Schema is a tool's name paired with its JSON Schema, returned by Registry.Schemas.
type Schema struct {
	Name   string
	Schema json.RawMessage
}

// Registry holds registered tools. It is instance-based (not global) for
// better testability.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
// It returns ErrEmptyToolName for a blank name and ErrDuplicateTool if a
// tool with the same name is already registered.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = t
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Validate checks a requested invocation before policy evaluation:
// the tool must exist, the arguments must be valid JSON, and a tool
// implementing ArgValidator must accept them. A non-nil error means the
// call moves straight to its error state without consulting policy.
func (r *Registry) Validate(name string, args json.RawMessage) (Tool, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 && !json.Valid(args) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedArguments, name)
	}

	if v, ok := t.(ArgValidator); ok {
		if err := v.ValidateArgs(args); err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	return t, nil
}

// Describe renders the human-readable confirmation detail for an
// invocation, preferring the tool's own Describer when present.
func Describe(t Tool, args json.RawMessage) string {
	if d, ok := t.(Describer); ok {
		if s := strings.TrimSpace(d.DescribeCall(args)); s != "" {
			return s
		}
	}
	return t.Description()
}

// Schemas returns all registered tool schemas sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.tools))
	for name, t := range r.tools {
		schemas = append(schemas, Schema{
			Name:   name,
			Schema: t.Schema(),
		})
	}
	slices.SortFunc(schemas, func(a, b Schema) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return schemas
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
