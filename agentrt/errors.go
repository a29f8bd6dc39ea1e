package agentrt

import "fmt"

// ErrorKind enumerates the agent failure taxonomy from spec.md §4.5.
type ErrorKind string

const (
	// KindLlmTransient is a retryable model-provider failure (rate limit,
	// transient network error). The runtime retries up to 3x with
	// exponential backoff before escalating.
	KindLlmTransient ErrorKind = "LlmTransient"
	// KindLlmFatal aborts the conversation; the model provider failed in a
	// way retrying cannot fix (e.g. invalid request, auth failure).
	KindLlmFatal ErrorKind = "LlmFatal"
	// KindToolError is a non-fatal tool execution failure; it becomes a Tool
	// message and the turn loop continues.
	KindToolError ErrorKind = "ToolError"
	// KindToolFatal aborts the conversation following a tool failure marked
	// fatal by its Spec.
	KindToolFatal ErrorKind = "ToolFatal"
	// KindStepLimitExceeded stops the loop once step_count reaches max_steps.
	KindStepLimitExceeded ErrorKind = "StepLimitExceeded"
	// KindRecursionLimitExceeded stops the loop once recursion depth
	// (tool -> agent -> tool) reaches max_recursion.
	KindRecursionLimitExceeded ErrorKind = "RecursionLimitExceeded"
	// KindShutdown indicates the caller requested Shutdown.
	KindShutdown ErrorKind = "Shutdown"
	// KindInternal is an unexpected runtime failure outside the above
	// categories.
	KindInternal ErrorKind = "Internal"
)

// AgentError is the structured failure type the runtime's broadcast channel
// carries for any non-nil Result.Err.
type AgentError struct {
	Kind ErrorKind
	// ToolName is set for KindToolError/KindToolFatal.
	ToolName string
	Message  string
	Cause    error
}

func (e *AgentError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("agentrt: %s (tool %s): %s", e.Kind, e.ToolName, e.Message)
	}
	return fmt.Sprintf("agentrt: %s: %s", e.Kind, e.Message)
}

// Unwrap exposes Cause for errors.Is/As.
func (e *AgentError) Unwrap() error { return e.Cause }

// NewAgentError constructs a plain AgentError of kind with message.
func NewAgentError(kind ErrorKind, message string) *AgentError {
	return &AgentError{Kind: kind, Message: message}
}

// NewToolError constructs a KindToolError/KindToolFatal AgentError.
func NewToolError(fatal bool, toolName, message string, cause error) *AgentError {
	kind := KindToolError
	if fatal {
		kind = KindToolFatal
	}
	return &AgentError{Kind: kind, ToolName: toolName, Message: message, Cause: cause}
}

// IsRetryable reports whether kind should be retried by the runtime's own
// LLM-call retry loop (only KindLlmTransient).
func (k ErrorKind) IsRetryable() bool { return k == KindLlmTransient }
