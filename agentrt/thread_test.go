package agentrt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAgentThreadValidateAcceptsAnyToolResultMatchingAPriorCall is spec.md
// §8 property 1: for any sequence of Assistant tool calls followed by Tool
// messages referencing those calls' ids, Validate never reports a dangling
// tool result, no matter how many calls or how they're interleaved with
// plain Developer/User messages.
func TestAgentThreadValidateAcceptsAnyToolResultMatchingAPriorCall(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every tool result whose id was issued by a prior assistant call validates", prop.ForAllNoError(
		func(names []string) bool {
			thread := &AgentThread{ID: "t-1"}
			thread.Append(NewDeveloperMessage("system prompt"))
			thread.Append(NewUserMessage("u-1", "hello", ""))

			calls := make([]ToolCall, len(names))
			for i, name := range names {
				calls[i] = ToolCall{ID: fmt.Sprintf("call-%d", i), FunctionName: name, ArgumentsJSON: "{}"}
			}
			assistant := NewAssistantMessage(false)
			assistant.Progress = ProgressComplete
			assistant.ToolCalls = calls
			thread.Append(assistant)

			for _, tc := range calls {
				thread.Append(NewToolMessage(tc.ID, tc.FunctionName, "{}"))
			}

			return thread.Validate() == nil
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("a tool result whose id was never issued by any assistant call always fails validation", prop.ForAllNoError(
		func(names []string, strayID string) bool {
			thread := &AgentThread{ID: "t-1"}
			thread.Append(NewDeveloperMessage("system prompt"))

			calls := make([]ToolCall, len(names))
			issued := make(map[string]struct{}, len(names))
			for i, name := range names {
				id := fmt.Sprintf("call-%d", i)
				calls[i] = ToolCall{ID: id, FunctionName: name, ArgumentsJSON: "{}"}
				issued[id] = struct{}{}
			}
			assistant := NewAssistantMessage(false)
			assistant.Progress = ProgressComplete
			assistant.ToolCalls = calls
			thread.Append(assistant)

			if _, ok := issued[strayID]; ok {
				// Generated id collided with a real call id: not the scenario
				// this property checks.
				return true
			}
			thread.Append(NewToolMessage(strayID, "whatever", "{}"))

			return errors.Is(thread.Validate(), ErrDanglingToolResult)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}

// TestAgentThreadValidateRejectsMoreThanOneInProgressAssistant is the second
// half of spec.md §8 property 1's invariant: at most one Assistant message
// may be InProgress at a time, for any count of InProgress messages appended.
func TestAgentThreadValidateRejectsMoreThanOneInProgressAssistant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("n in-progress assistant messages validate iff n <= 1", prop.ForAllNoError(
		func(n int) bool {
			thread := &AgentThread{ID: "t-1"}
			thread.Append(NewDeveloperMessage("system prompt"))
			for i := 0; i < n; i++ {
				thread.Append(NewAssistantMessage(i == 0))
			}
			err := thread.Validate()
			if n <= 1 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
