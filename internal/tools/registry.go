// Package tools provides the tool catalogue available to the agent
// pipeline.
//
// Every tool is registered with Genkit (so the model can be offered its
// declared schema) and mirrored in the Registry together with a resolved
// JSON schema used to validate the model's raw arguments before execution.
// The registry can be disabled by configuration: the pipeline still routes
// through it, but no tool schemas are offered to the model.
package tools

import (
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/agrisight/agrisight/internal/log"
)

var (
	// ErrUnknownTool indicates a lookup for a name the registry does not hold.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates tool arguments that fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Entry is one registered tool with its resolved input schema.
type Entry struct {
	Tool   ai.Tool
	schema *jsonschema.Resolved
}

// Registry is the static tool catalogue. It is populated once at startup
// and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	g       *genkit.Genkit
	logger  log.Logger
	enabled bool
	entries map[string]*Entry
}

// NewRegistry creates an empty registry. When enabled is false the
// catalogue stays inert: Refs returns nothing, so the model is never
// offered a tool, but lookups still work so unsolicited tool calls can
// be answered with an error response.
func NewRegistry(g *genkit.Genkit, enabled bool, logger log.Logger) *Registry {
	return &Registry{
		g:       g,
		logger:  logger,
		enabled: enabled,
		entries: make(map[string]*Entry),
	}
}

// Register defines fn as a Genkit tool and records it in the registry with
// a schema derived from its input type.
func Register[In, Out any](r *Registry, name, description string, fn func(*ai.ToolContext, In) (Out, error)) error {
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("deriving schema for %q: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolving schema for %q: %w", name, err)
	}

	tool := genkit.DefineTool(r.g, name, description, fn)
	r.entries[name] = &Entry{Tool: tool, schema: resolved}

	r.logger.Debug("tool registered", "name", name, "enabled", r.enabled)
	return nil
}

// Enabled reports whether the catalogue is offered to the model.
func (r *Registry) Enabled() bool {
	return r.enabled
}

// Refs returns tool references for the model request. Disabled registries
// offer nothing.
func (r *Registry) Refs() []ai.ToolRef {
	if !r.enabled {
		return nil
	}
	refs := make([]ai.ToolRef, 0, len(r.entries))
	for _, e := range r.entries {
		refs = append(refs, e.Tool)
	}
	return refs
}

// Lookup returns the registered tool by name.
func (r *Registry) Lookup(name string) (ai.Tool, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return e.Tool, nil
}

// Validate checks raw model-supplied arguments against the tool's declared
// input schema.
func (r *Registry) Validate(name string, args any) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if err := e.schema.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// Names returns the registered tool names, for logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
