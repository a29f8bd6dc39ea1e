// Package agentrt implements the Agent Runtime (C5): the single-conversation
// turn loop that drives one AgentThread through repeated LLM/tool rounds,
// broadcasting progress over a bounded, lossy channel until a terminating
// tool fires, a bound is exceeded, or the caller requests shutdown.
package agentrt

import (
	"errors"
	"fmt"

	"github.com/lumenanalytics/agentd/mode"
)

// Progress marks whether a message is still accumulating or has reached its
// final form.
type Progress string

const (
	ProgressInProgress Progress = "InProgress"
	ProgressComplete   Progress = "Complete"
)

// MessageKind tags which AgentThread message variant a Message holds.
type MessageKind string

const (
	KindDeveloper MessageKind = "Developer"
	KindUser      MessageKind = "User"
	KindAssistant MessageKind = "Assistant"
	KindTool      MessageKind = "Tool"
	KindDone      MessageKind = "Done"
)

// ToolCall is a single requested tool invocation within an Assistant
// message. Arguments arrive incrementally as string chunks during
// streaming; ArgumentsJSON holds the fully accumulated buffer once the LLM
// signals completion.
type ToolCall struct {
	ID            string
	FunctionName  string
	ArgumentsJSON string
}

// Message is one entry of an AgentThread. Not every field is meaningful for
// every Kind; see the Kind-specific constructors below.
type Message struct {
	Kind MessageKind

	// Developer
	Content string

	// User
	ID   string
	Name string

	// Assistant
	ToolCalls []ToolCall
	Progress  Progress
	Initial   bool

	// Tool
	ToolCallID string
	ToolName   string
}

// NewDeveloperMessage constructs a Developer (system prompt) message.
func NewDeveloperMessage(content string) Message {
	return Message{Kind: KindDeveloper, Content: content}
}

// NewUserMessage constructs a User message.
func NewUserMessage(id, content, name string) Message {
	return Message{Kind: KindUser, ID: id, Content: content, Name: name}
}

// NewAssistantMessage constructs an in-progress Assistant message with no
// content yet accumulated.
func NewAssistantMessage(initial bool) Message {
	return Message{Kind: KindAssistant, Progress: ProgressInProgress, Initial: initial}
}

// NewToolMessage constructs a Tool (tool result) message.
func NewToolMessage(toolCallID, toolName, content string) Message {
	return Message{Kind: KindTool, ToolCallID: toolCallID, ToolName: toolName, Content: content, Progress: ProgressComplete}
}

// DoneMessage is the sentinel final message of a completed thread.
var DoneMessage = Message{Kind: KindDone}

// AgentThread is an ordered list of messages belonging to one conversation,
// plus its owning identities.
type AgentThread struct {
	ID             string
	UserID         string
	OrganizationID string
	Messages       []Message

	// CurrentMode tracks the mode the thread is currently running under, so
	// mode.Resolve has a value to fall back to when no transition rule
	// matches.
	CurrentMode mode.Name
}

// ErrDanglingToolResult is returned by Validate when a Tool message's
// ToolCallID does not match any prior Assistant.ToolCalls entry in the same
// thread (spec.md §3's AgentThread invariant).
var ErrDanglingToolResult = errors.New("agentrt: tool result references unknown tool_call_id")

// ErrMultipleInProgressAssistant is returned by Validate when more than one
// Assistant message in the thread carries Progress=InProgress at once.
var ErrMultipleInProgressAssistant = errors.New("agentrt: more than one in-progress assistant message")

// Validate checks the two AgentThread invariants from spec.md §3: every Tool
// message's ToolCallID resolves to a prior Assistant tool call, and at most
// one Assistant message is InProgress at a time.
func (t *AgentThread) Validate() error {
	knownCallIDs := make(map[string]struct{})
	inProgress := 0
	for i, m := range t.Messages {
		switch m.Kind {
		case KindAssistant:
			for _, tc := range m.ToolCalls {
				knownCallIDs[tc.ID] = struct{}{}
			}
			if m.Progress == ProgressInProgress {
				inProgress++
			}
		case KindTool:
			if _, ok := knownCallIDs[m.ToolCallID]; !ok {
				return fmt.Errorf("%w: message %d, tool_call_id %q", ErrDanglingToolResult, i, m.ToolCallID)
			}
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("%w: found %d", ErrMultipleInProgressAssistant, inProgress)
	}
	return nil
}

// Append adds m to the thread's message list.
func (t *AgentThread) Append(m Message) {
	t.Messages = append(t.Messages, m)
}

// DeveloperMessageIndex returns the index of the current Developer message,
// or -1 if none is present. spec.md §4.5 step 1 requires exactly one,
// always at position 0.
func (t *AgentThread) DeveloperMessageIndex() int {
	for i, m := range t.Messages {
		if m.Kind == KindDeveloper {
			return i
		}
	}
	return -1
}

// EnsureDeveloperMessage replaces or inserts the Developer message at
// position 0 so it matches prompt, per spec.md §4.5 step 1 and §4.4's
// transition contract.
func (t *AgentThread) EnsureDeveloperMessage(prompt string) {
	if i := t.DeveloperMessageIndex(); i >= 0 {
		if t.Messages[i].Content == prompt {
			return
		}
		t.Messages = append(t.Messages[:i], t.Messages[i+1:]...)
	}
	t.Messages = append([]Message{NewDeveloperMessage(prompt)}, t.Messages...)
}
