package toolkit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lumenanalytics/agentd/toolerrors"
)

// Executor dispatches individual tool calls against a Registry, honoring
// each tool's declared idempotency scope. Concurrent dispatch of multiple
// calls in one turn is the caller's responsibility (agentrt runs one
// goroutine per call and fans results back in); Executor itself only needs
// to be safe for concurrent Execute calls, which it is.
type Executor struct {
	registry *Registry

	mu      sync.Mutex
	results map[string]json.RawMessage // idempotency key -> cached result
}

// NewExecutor constructs an Executor backed by registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry, results: make(map[string]json.RawMessage)}
}

// Call is a single tool invocation request.
type Call struct {
	Name    Ident
	Payload json.RawMessage
	Meta    CallMeta
}

// Result is the outcome of one Execute call.
type Result struct {
	Name    Ident
	CallID  string
	Payload json.RawMessage
	Err     error
	// Terminal mirrors Spec.Terminal for the executed tool, so callers can
	// decide whether to stop the turn loop without a second registry lookup.
	Terminal bool
}

// Execute runs call against the registry, applying idempotency de-duplication
// when the tool declares a scope via its tags. A thread-scoped duplicate call
// short-circuits to the previously cached result without re-invoking Execute.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		return Result{
			Name:   call.Name,
			CallID: call.Meta.CallID,
			Err:    toolerrors.New("tool_unavailable: " + string(call.Name)),
		}
	}
	spec := tool.Spec()

	scope, hasScope, err := IdempotencyScopeFromTags(spec.Tags)
	if err != nil {
		return Result{Name: call.Name, CallID: call.Meta.CallID, Err: toolerrors.NewWithCause("bad idempotency tag", err)}
	}
	var key string
	if hasScope && scope == IdempotencyScopeThread {
		key = idempotencyKey(call.Name, call.Payload)
		if cached, found := e.cached(key); found {
			return Result{Name: call.Name, CallID: call.Meta.CallID, Payload: cached, Terminal: spec.Terminal}
		}
	}

	if !tool.Enabled(ctx, call.Meta) {
		return Result{Name: call.Name, CallID: call.Meta.CallID, Err: toolerrors.New("tool disabled: " + string(call.Name))}
	}

	out, execErr := tool.Execute(ctx, call.Meta, call.Payload)
	if execErr != nil {
		return Result{Name: call.Name, CallID: call.Meta.CallID, Err: execErr, Terminal: spec.Terminal}
	}
	if key != "" {
		e.store(key, out)
	}
	return Result{Name: call.Name, CallID: call.Meta.CallID, Payload: out, Terminal: spec.Terminal}
}

func (e *Executor) cached(key string) (json.RawMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.results[key]
	return v, ok
}

func (e *Executor) store(key string, value json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[key] = value
}
