package toolkit

import "context"

// CallMeta carries conversation-scoped identifiers for a single tool
// invocation. It gives executors explicit access to business context (thread,
// turn, call correlation) without relying on context values.
type CallMeta struct {
	// ThreadID identifies the AgentThread that owns this call.
	ThreadID string
	// TurnID identifies the conversational turn that produced this call.
	TurnID string
	// CallID uniquely identifies this invocation for correlation and
	// idempotency de-duplication.
	CallID string
	// ParentCallID is set when this call was issued by an agent-as-tool
	// running as a child of another tool call.
	ParentCallID string
	// OrgID and UserID scope the call for permission checks performed by the
	// tool implementation itself (most permission checks happen earlier, in
	// the orchestrator, but some tools re-check on specific sub-resources).
	OrgID  string
	UserID string
}

// Tool is a strongly typed capability: Params in, Output out. Implementations
// stay fully typed; the registry erases both to JSON only at the dispatch
// boundary via Register, mirroring a typed-execute/type-erased-dispatch split.
type Tool[Params, Output any] interface {
	// Spec describes the tool's metadata and JSON schemas.
	Spec() Spec
	// Execute runs the tool for one call.
	Execute(ctx context.Context, meta CallMeta, params Params) (Output, error)
	// Enabled reports whether the tool is available for the given call. Most
	// tools are always enabled; feature-flagged or role-gated tools override
	// this to hide themselves from the model entirely.
	Enabled(ctx context.Context, meta CallMeta) bool
}

// AlwaysEnabled can be embedded by Tool implementations that have no
// conditional availability, so they only need to implement Spec and Execute.
type AlwaysEnabled struct{}

// Enabled always returns true.
func (AlwaysEnabled) Enabled(context.Context, CallMeta) bool { return true }
