package toolkit

// JSONCodec serializes and deserializes strongly typed values to and from JSON.
type JSONCodec[T any] struct {
	// ToJSON encodes the value into canonical JSON.
	ToJSON func(T) ([]byte, error)
	// FromJSON decodes the JSON payload into the typed value.
	FromJSON func([]byte) (T, error)
}

// TypeSpec describes the payload or result schema for a tool.
type TypeSpec struct {
	// Name is the Go identifier associated with the type.
	Name string
	// Schema contains the JSON Schema definition for the type, validated at
	// registration time via jsonschema.
	Schema []byte
	// ExampleJSON optionally contains a canonical example document. The
	// Executor does not read it, and its errors do not include it.
	ExampleJSON []byte
}

// ConfirmationSpec declares the confirmation protocol for a tool that must
// pause for an out-of-band human decision before it executes (for example,
// destructive writes to a shared Asset).
type ConfirmationSpec struct {
	// Title is an optional title shown in the confirmation UI.
	Title string
	// PromptTemplate is rendered with the tool payload to produce the prompt
	// text shown to the approver.
	PromptTemplate string
	// DeniedResultTemplate is rendered with the tool payload to produce the
	// JSON tool result used when the approver denies the call.
	DeniedResultTemplate string
}

// Spec enumerates the metadata for a registered tool, independent of its
// concrete Go parameter/output types.
type Spec struct {
	// Name is the globally unique tool identifier.
	Name Ident
	// Description is presented to the model to decide when to call the tool.
	Description string
	// Tags carries metadata labels such as idempotency declarations, which
	// the Executor reads. Mode tool lists are built from tool names, not tags.
	Tags []string
	// Terminal indicates that once this tool executes, the agent turn loop
	// should stop requesting further planner turns after publishing the
	// result (used by the built-in done/idle tools and any custom
	// terminal-response tool).
	Terminal bool
	// IsAgentTool indicates this tool is implemented by running another
	// agent as a child turn loop rather than a plain function.
	IsAgentTool bool
	// AgentID identifies the child agent to run when IsAgentTool is true.
	AgentID string
	// Confirmation configures a human-approval gate for this tool. Nil means
	// no confirmation is required.
	Confirmation *ConfirmationSpec
	// Payload describes the request schema for the tool.
	Payload TypeSpec
	// Result describes the response schema for the tool.
	Result TypeSpec
}
