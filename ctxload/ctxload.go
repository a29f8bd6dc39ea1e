// Package ctxload implements the Context Loader (C7): strategies that turn
// a new chat request into the agent's seed message list and initial
// capability flags, selected by the orchestrator from the shape of the
// incoming request (spec.md §4.7).
package ctxload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumenanalytics/agentd/agentrt"
	"github.com/lumenanalytics/agentd/asset"
)

// Actor identifies who is loading context, for the permission checks each
// strategy (other than NoContext) performs via asset.Service.
type Actor struct {
	UserID         string
	OrganizationID string
}

// Result is a strategy's output: the seed messages to append to a fresh
// AgentThread, plus the capability flags those messages imply.
type Result struct {
	Messages     []agentrt.Message
	Capabilities []string // agentrt.Capability* names to set true
}

// Strategy loads the initial context for a new chat.
type Strategy interface {
	Load(ctx context.Context, actor Actor) (Result, error)
}

// Apply appends r's messages to thread and sets r's capabilities on state,
// the two effects every Strategy caller must perform together.
func (r Result) Apply(thread *agentrt.AgentThread, state *agentrt.State) {
	for _, m := range r.Messages {
		thread.Append(m)
	}
	for _, c := range r.Capabilities {
		state.SetCapability(c)
	}
}

// NoContext is the strategy for a chat with no prior history and no seed
// asset: an empty message list.
type NoContext struct{}

func (NoContext) Load(context.Context, Actor) (Result, error) { return Result{}, nil }

// persistedMessage is the JSON shape a Chat asset's latest version stores
// its raw LLM-facing message log as.
type persistedMessage = agentrt.Message

// toolCapability maps a tool name seen in a replayed Assistant message's
// tool calls onto the capability flag it should set, mirroring
// original_source's chat_context.rs update_context_from_tool_calls.
func toolCapability(toolName string) (string, bool) {
	switch toolName {
	case "search_data_catalog":
		return agentrt.CapabilityDataContext, true
	case "create_metrics", "update_metrics":
		return agentrt.CapabilityMetricsAvailable, true
	case "create_dashboards", "update_dashboards":
		return agentrt.CapabilityDashboardsAvailable, true
	}
	if strings.Contains(toolName, "file") || strings.Contains(toolName, "read") ||
		strings.Contains(toolName, "write") || strings.Contains(toolName, "edit") {
		return agentrt.CapabilityFilesAvailable, true
	}
	return "", false
}

// ChatContext replays the most recently persisted version of an existing
// Chat's message log: original_source's ChatContextLoader reads a single
// most-recent "message row"'s raw_llm_messages; in this system a Chat
// asset's latest VersionHistory entry *is* that most-recent snapshot, so
// replaying it is the equivalent operation.
type ChatContext struct {
	ChatID string
	Assets *asset.Service
}

func (l ChatContext) Load(ctx context.Context, actor Actor) (Result, error) {
	a, _, err := l.Assets.Get(ctx, l.ChatID, asset.TypeChat, actor.UserID, actor.OrganizationID)
	if err != nil {
		return Result{}, fmt.Errorf("ctxload: load chat %s: %w", l.ChatID, err)
	}
	latest, ok := a.History.Latest()
	if !ok || len(latest.Content) == 0 {
		return Result{}, nil
	}

	var raw []persistedMessage
	if err := json.Unmarshal(latest.Content, &raw); err != nil {
		return Result{}, fmt.Errorf("ctxload: decode chat %s message log: %w", l.ChatID, err)
	}

	seen := make(map[string]struct{}, len(raw))
	messages := make([]agentrt.Message, 0, len(raw))
	capSet := make(map[string]struct{})

	for _, m := range raw {
		if m.Kind == agentrt.KindAssistant {
			for _, tc := range m.ToolCalls {
				if cap, ok := toolCapability(tc.FunctionName); ok {
					capSet[cap] = struct{}{}
				}
			}
		}
		id := messageDedupeKey(m)
		if id == "" {
			messages = append(messages, m)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		messages = append(messages, m)
	}

	caps := make([]string, 0, len(capSet))
	for c := range capSet {
		caps = append(caps, c)
	}
	return Result{Messages: messages, Capabilities: caps}, nil
}

// messageDedupeKey returns the identifier ChatContext dedupes a replayed
// message by, or "" if the message carries none (always included, per
// original_source's "messages without IDs are always included").
func messageDedupeKey(m agentrt.Message) string {
	switch m.Kind {
	case agentrt.KindUser:
		return m.ID
	case agentrt.KindTool:
		return m.ToolCallID
	default:
		return ""
	}
}
