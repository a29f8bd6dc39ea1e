package agentrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenanalytics/agentd/chunkproc"
	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/telemetry"
	"github.com/lumenanalytics/agentd/toolkit"
)

// maxSteps bounds the number of assistant/tool rounds a single
// StreamProcessThread call will run before failing with
// KindStepLimitExceeded (spec.md §4.5).
const maxSteps = 24

// maxRecursion bounds how many levels deep an agent-as-tool call chain may
// nest before failing with KindRecursionLimitExceeded.
const maxRecursion = 6

// Agent drives one AgentThread through the turn loop described by spec.md
// §4.5: resolve the current mode's prompt/tools/model, stream one LLM
// round, dispatch any requested tool calls, resolve the next mode, and
// repeat until a terminating tool fires, a bound is hit, or the caller
// requests Shutdown.
type Agent struct {
	client   model.Client
	registry *toolkit.Registry
	executor *toolkit.Executor
	modes    *mode.Registry
	pipeline *chunkproc.Pipeline
	state    *State

	userID         string
	organizationID string
	name           string

	tracer  telemetry.Tracer
	metrics telemetry.Metrics

	mu            sync.Mutex
	toolsOverride []toolkit.Ident
	cancel        context.CancelFunc
}

// New constructs an Agent. registry must already hold every tool any mode
// this Agent runs under can name, including the built-in done/idle
// terminating tools (see RegisterTerminalTools). tracer and metrics may be
// nil, in which case the turn loop runs untraced (telemetry.NewNoopTracer/
// NewNoopMetrics's behavior).
func New(client model.Client, registry *toolkit.Registry, modes *mode.Registry, state *State, userID, organizationID, name string, tracer telemetry.Tracer, metrics telemetry.Metrics) *Agent {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Agent{
		client:         client,
		registry:       registry,
		executor:       toolkit.NewExecutor(registry),
		modes:          modes,
		pipeline:       chunkproc.DefaultPipeline(),
		state:          state,
		userID:         userID,
		organizationID: organizationID,
		name:           name,
		tracer:         tracer,
		metrics:        metrics,
	}
}

// AddTool pins name as an additional always-available tool regardless of the
// current mode's ToolLoader, for callers that need to inject a one-off
// capability (e.g. a session-specific agent-as-tool).
func (a *Agent) AddTool(name toolkit.Ident) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolsOverride = append(a.toolsOverride, name)
}

// ClearTools drops any tools previously pinned by AddTool, reverting to
// exactly what each mode's ToolLoader supplies.
func (a *Agent) ClearTools() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolsOverride = nil
}

// SetStateValue stores a process-local scratch value against this Agent's
// State, visible to any tool that reads it back via GetStateValue.
func (a *Agent) SetStateValue(key string, value any) { a.state.SetValue(key, value) }

// GetStateValue retrieves a value previously stored with SetStateValue.
func (a *Agent) GetStateValue(key string) (any, bool) { return a.state.GetValue(key) }

// Shutdown requests the in-flight StreamProcessThread loop stop at its next
// safe point, surfacing KindShutdown on the broadcast channel.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// StreamProcessThread runs the turn loop against thread until termination,
// returning a receive-only channel of Events. The channel is closed after
// the final event (always either a terminating AgentError or a Done
// AgentMessage) is sent. thread is mutated in place as the loop appends
// Developer/Assistant/Tool messages.
func (a *Agent) StreamProcessThread(ctx context.Context, thread *AgentThread) <-chan Event {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	b := newBroadcaster()
	go func() {
		defer cancel()
		defer b.Close()
		err := a.run(runCtx, thread, b, 0)
		if err != nil {
			var ae *AgentError
			if !errors.As(err, &ae) {
				ae = &AgentError{Kind: KindInternal, Message: err.Error(), Cause: err}
			}
			b.Send(Event{Err: ae})
			return
		}
		b.Send(Event{Value: &AgentMessage{Done: true}})
	}()
	return b.Recv()
}

// run executes the loop invariant for thread, starting at recursionDepth
// (0 for a top-level call; a non-zero value is passed when an agent-as-tool
// is driving a child AgentThread from within a tool Execute call).
func (a *Agent) run(ctx context.Context, thread *AgentThread, b *broadcaster, recursionDepth int) error {
	if recursionDepth >= maxRecursion {
		return NewAgentError(KindRecursionLimitExceeded, fmt.Sprintf("exceeded max recursion depth %d", maxRecursion))
	}

	userPromptPresent := len(thread.Messages) > 0 && thread.Messages[len(thread.Messages)-1].Kind == KindUser

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return NewAgentError(KindShutdown, "context canceled")
		}
		if step >= maxSteps {
			return NewAgentError(KindStepLimitExceeded, fmt.Sprintf("exceeded max steps %d", maxSteps))
		}

		cfg, err := a.modes.Get(thread.CurrentMode)
		if err != nil {
			return &AgentError{Kind: KindInternal, Message: "unknown mode", Cause: err}
		}

		prompt, err := mode.RenderPrompt(cfg.PromptTemplate, mode.PromptData{
			OrganizationName: a.organizationID,
			TodaysDate:       time.Now().UTC().Format("2006-01-02"),
		})
		if err != nil {
			return &AgentError{Kind: KindInternal, Message: "render prompt", Cause: err}
		}
		thread.EnsureDeveloperMessage(prompt)

		toolNames, err := a.resolveToolNames(ctx, cfg)
		if err != nil {
			return &AgentError{Kind: KindInternal, Message: "resolve tools", Cause: err}
		}

		assistantIdx := len(thread.Messages)
		thread.Append(NewAssistantMessage(step == 0))

		turnCtx, turnSpan := a.tracer.Start(ctx, "agentrt.turn", trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(
			attribute.String("mode", string(thread.CurrentMode)),
			attribute.Int("step", step),
		))
		turnStart := time.Now()
		err = a.runAssistantTurn(turnCtx, thread, assistantIdx, cfg, toolNames, b)
		a.metrics.RecordTimer("agentrt.turn.duration", time.Since(turnStart), "mode", string(thread.CurrentMode))
		if err != nil {
			turnSpan.RecordError(err)
			turnSpan.SetStatus(codes.Error, "assistant turn failed")
			turnSpan.End()
			return err
		}
		turnSpan.SetStatus(codes.Ok, "ok")
		turnSpan.End()

		assistant := thread.Messages[assistantIdx]

		dispatchCtx, dispatchSpan := a.tracer.Start(ctx, "agentrt.tool_dispatch", trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(
			attribute.Int("tool_calls", len(assistant.ToolCalls)),
		))
		dispatchStart := time.Now()
		results := a.dispatchAndAppend(dispatchCtx, thread, assistant, b)
		a.metrics.RecordTimer("agentrt.tool_dispatch.duration", time.Since(dispatchStart))
		for _, r := range results {
			if r.Err != nil {
				dispatchSpan.RecordError(r.Err)
			}
			a.metrics.IncCounter("agentrt.tool_dispatch.count", 1, "tool", string(r.Name))
		}
		dispatchSpan.SetStatus(codes.Ok, "ok")
		dispatchSpan.End()

		terminatingFired := false
		for _, r := range results {
			if r.Terminal && r.Err == nil {
				terminatingFired = true
			}
		}

		thread.CurrentMode = mode.Resolve(thread.CurrentMode, a.state.Flags(), terminatingFired, userPromptPresent && step == 0)
		userPromptPresent = false

		if terminatingFired || len(assistant.ToolCalls) == 0 {
			return nil
		}
	}
}

func (a *Agent) resolveToolNames(ctx context.Context, cfg mode.Config) ([]toolkit.Ident, error) {
	names, err := cfg.ToolLoader(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	extra := append([]toolkit.Ident(nil), a.toolsOverride...)
	a.mu.Unlock()
	return append(names, extra...), nil
}

// runAssistantTurn streams one LLM round into thread.Messages[assistantIdx],
// broadcasting progress and chunkproc output as tool-call arguments
// accumulate, then flips the message to Complete once the stream ends.
func (a *Agent) runAssistantTurn(ctx context.Context, thread *AgentThread, assistantIdx int, cfg mode.Config, toolNames []toolkit.Ident, b *broadcaster) error {
	req := &model.Request{
		RunID:      thread.ID,
		ModelClass: cfg.ModelClass,
		Messages:   toModelMessages(thread.Messages[:assistantIdx]),
		Tools:      a.toolDefinitions(ctx, thread, toolNames),
		Stream:     true,
	}

	var content strings.Builder
	toolCalls := map[string]*ToolCall{}
	var order []string
	argBuf := map[string]*strings.Builder{}
	var usage model.TokenUsage

	err := withLLMRetry(ctx, func(ctx context.Context) error {
		content.Reset()
		toolCalls = map[string]*ToolCall{}
		order = nil
		argBuf = map[string]*strings.Builder{}
		usage = model.TokenUsage{}

		stream, err := a.client.Stream(ctx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if chunk.Type == model.ChunkTypeUsage && chunk.UsageDelta != nil {
				usage = *chunk.UsageDelta
				continue
			}
			a.applyChunk(chunk, &content, toolCalls, &order, argBuf)
			thread.Messages[assistantIdx].Content = content.String()
			thread.Messages[assistantIdx].ToolCalls = flattenToolCalls(order, toolCalls)
			msgCopy := thread.Messages[assistantIdx]
			b.Send(Event{Value: &AgentMessage{Message: &msgCopy}})

			if chunk.Type == model.ChunkTypeToolCallDelta && chunk.ToolCallDelta != nil {
				id := chunk.ToolCallDelta.ID
				out, procErr := a.pipeline.Process(id, argBuf[id].String())
				if procErr == nil {
					b.Send(Event{Value: &AgentMessage{Message: &msgCopy, CallID: id, Chunk: &out}})
				}
			}
		}
		return nil
	})
	if err != nil {
		var ae *AgentError
		if errors.As(err, &ae) {
			return ae
		}
		return &AgentError{Kind: KindLlmFatal, Message: "model stream failed", Cause: err}
	}

	if usage.TotalTokens > 0 {
		a.metrics.IncCounter("agentrt.llm.tokens", float64(usage.TotalTokens), "model", string(cfg.ModelClass))
	}

	thread.Messages[assistantIdx].Progress = ProgressComplete
	finalCopy := thread.Messages[assistantIdx]
	b.Send(Event{Value: &AgentMessage{Message: &finalCopy}})
	for _, id := range order {
		a.pipeline.Forget(id)
	}
	return nil
}

func (a *Agent) applyChunk(chunk model.Chunk, content *strings.Builder, toolCalls map[string]*ToolCall, order *[]string, argBuf map[string]*strings.Builder) {
	switch chunk.Type {
	case model.ChunkTypeText:
		if chunk.Message != nil {
			for _, p := range chunk.Message.Parts {
				if tp, ok := p.(model.TextPart); ok {
					content.WriteString(tp.Text)
				}
			}
		}
	case model.ChunkTypeToolCallDelta:
		d := chunk.ToolCallDelta
		if d == nil {
			return
		}
		if _, ok := toolCalls[d.ID]; !ok {
			toolCalls[d.ID] = &ToolCall{ID: d.ID, FunctionName: string(d.Name)}
			argBuf[d.ID] = &strings.Builder{}
			*order = append(*order, d.ID)
		}
		argBuf[d.ID].WriteString(d.Delta)
		toolCalls[d.ID].ArgumentsJSON = argBuf[d.ID].String()
	case model.ChunkTypeToolCall:
		tc := chunk.ToolCall
		if tc == nil {
			return
		}
		if _, ok := toolCalls[tc.ID]; !ok {
			argBuf[tc.ID] = &strings.Builder{}
			*order = append(*order, tc.ID)
		}
		toolCalls[tc.ID] = &ToolCall{ID: tc.ID, FunctionName: string(tc.Name), ArgumentsJSON: string(tc.Payload)}
		argBuf[tc.ID].Reset()
		argBuf[tc.ID].WriteString(string(tc.Payload))
	}
}

func flattenToolCalls(order []string, toolCalls map[string]*ToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(order))
	for _, id := range order {
		if tc, ok := toolCalls[id]; ok {
			out = append(out, *tc)
		}
	}
	return out
}

func (a *Agent) toolDefinitions(ctx context.Context, thread *AgentThread, names []toolkit.Ident) []*model.ToolDefinition {
	meta := toolkit.CallMeta{ThreadID: thread.ID, UserID: a.userID, OrgID: a.organizationID}
	specs := a.registry.Specs(ctx, meta, names)
	defs := make([]*model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, &model.ToolDefinition{Name: string(s.Name), Description: s.Description, InputSchema: s.Payload.Schema})
	}
	return defs
}

// dispatchAndAppend runs every requested tool call from assistant through
// the executor and appends the resulting Tool messages to thread in their
// original order (spec.md §4.3 step 4-5).
func (a *Agent) dispatchAndAppend(ctx context.Context, thread *AgentThread, assistant Message, b *broadcaster) []toolkit.Result {
	if len(assistant.ToolCalls) == 0 {
		return nil
	}
	calls := make([]toolkit.Call, len(assistant.ToolCalls))
	for i, tc := range assistant.ToolCalls {
		calls[i] = toolkit.Call{
			Name:    toolkit.Ident(tc.FunctionName),
			Payload: []byte(tc.ArgumentsJSON),
			Meta: toolkit.CallMeta{
				ThreadID: thread.ID,
				TurnID:   uuid.NewString(),
				CallID:   tc.ID,
				OrgID:    a.organizationID,
				UserID:   a.userID,
			},
		}
	}
	results := dispatchToolCalls(ctx, a.executor, calls)
	for _, r := range results {
		msg := resultToToolMessage(r)
		thread.Append(msg)
		msgCopy := msg
		b.Send(Event{Value: &AgentMessage{Message: &msgCopy}})
	}
	return results
}

// toModelMessages converts the AgentThread's message log into the
// model.Message shape a Client understands. Tool messages round-trip as a
// User message carrying a ToolResultPart, matching how providers expect
// tool results to be attached to the conversation.
func toModelMessages(messages []Message) []*model.Message {
	out := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Kind {
		case KindDeveloper:
			out = append(out, &model.Message{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: m.Content}}})
		case KindUser:
			out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: m.Content}}})
		case KindAssistant:
			parts := make([]model.Part, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, model.TextPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, model.ToolUsePart{ID: tc.ID, Name: tc.FunctionName, Input: tc.ArgumentsJSON})
			}
			out = append(out, &model.Message{Role: model.ConversationRoleAssistant, Parts: parts})
		case KindTool:
			out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.ToolResultPart{ToolUseID: m.ToolCallID, Content: m.Content}}})
		}
	}
	return out
}
