package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lumenanalytics/agentd/toolerrors"
)

// ErasedTool is a tool with both Params and Output erased to JSON, the
// boundary type the Registry and Executor operate on. Strongly typed Tool
// implementations are lifted to ErasedTool via Register; callers of the
// registry never see the concrete Params/Output types.
type ErasedTool interface {
	Spec() Spec
	Enabled(ctx context.Context, meta CallMeta) bool
	Execute(ctx context.Context, meta CallMeta, payload json.RawMessage) (json.RawMessage, error)
}

type erasedTool[Params, Output any] struct {
	tool        Tool[Params, Output]
	spec        Spec
	paramsCodec JSONCodec[Params]
	resultCodec JSONCodec[Output]
	schema      *jsonschema.Schema
}

// Register lifts a strongly typed Tool into an ErasedTool, compiling its
// payload JSON Schema (when present) so malformed calls are rejected before
// Execute ever sees them. The schema is compiled once, at registration time,
// not on every call.
func Register[Params, Output any](tool Tool[Params, Output], paramsCodec JSONCodec[Params], resultCodec JSONCodec[Output]) (ErasedTool, error) {
	spec := tool.Spec()
	if spec.Name == "" {
		return nil, fmt.Errorf("toolkit: tool spec has empty Name")
	}
	et := &erasedTool[Params, Output]{
		tool:        tool,
		spec:        spec,
		paramsCodec: paramsCodec,
		resultCodec: resultCodec,
	}
	if len(spec.Payload.Schema) > 0 {
		schema, err := compileSchema(spec.Payload.Schema)
		if err != nil {
			return nil, fmt.Errorf("toolkit: compile schema for %s: %w", spec.Name, err)
		}
		et.schema = schema
	}
	return et, nil
}

func compileSchema(schemaBytes []byte) (*jsonschema.Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resource := fmt.Sprintf("schema-%p.json", schemaBytes)
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resource)
}

func (e *erasedTool[Params, Output]) Spec() Spec { return e.spec }

func (e *erasedTool[Params, Output]) Enabled(ctx context.Context, meta CallMeta) bool {
	return e.tool.Enabled(ctx, meta)
}

func (e *erasedTool[Params, Output]) Execute(ctx context.Context, meta CallMeta, payload json.RawMessage) (json.RawMessage, error) {
	if e.schema != nil {
		var doc any
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, toolerrors.NewWithCause("invalid tool call payload: not valid JSON", err)
		}
		if err := e.schema.Validate(doc); err != nil {
			return nil, toolerrors.NewWithCause(fmt.Sprintf("tool %q payload failed schema validation", e.spec.Name), err)
		}
	}
	params, err := e.paramsCodec.FromJSON(payload)
	if err != nil {
		return nil, toolerrors.NewWithCause(fmt.Sprintf("tool %q payload decode failed", e.spec.Name), err)
	}
	out, err := e.tool.Execute(ctx, meta, params)
	if err != nil {
		return nil, err
	}
	encoded, err := e.resultCodec.ToJSON(out)
	if err != nil {
		return nil, toolerrors.NewWithCause(fmt.Sprintf("tool %q result encode failed", e.spec.Name), err)
	}
	return encoded, nil
}

// Registry holds the set of tools available to agents, keyed by Ident. It is
// safe for concurrent use: Add, Lookup and Specs all hold its lock. The
// orchestrator builds one Registry per conversation.
type Registry struct {
	mu    sync.RWMutex
	tools map[Ident]ErasedTool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Ident]ErasedTool)}
}

// Add registers an ErasedTool under its spec name. It returns an error if a
// tool with the same name is already registered.
func (r *Registry) Add(tool ErasedTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Spec().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("toolkit: tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name Ident) (ErasedTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the Spec of every tool in names that is registered and
// Enabled for meta, in the order of names, so the ToolDefinition list built
// from it is stable for a model request.
func (r *Registry) Specs(ctx context.Context, meta CallMeta, names []Ident) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok || !t.Enabled(ctx, meta) {
			continue
		}
		specs = append(specs, t.Spec())
	}
	return specs
}
