package agentrt

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/toolkit"
)

// fakeStreamer replays a fixed chunk sequence then io.EOF.
type fakeStreamer struct {
	chunks []model.Chunk
	i      int
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	if f.i >= len(f.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := f.chunks[f.i]
	f.i++
	return c, nil
}
func (f *fakeStreamer) Close() error             { return nil }
func (f *fakeStreamer) Metadata() map[string]any { return nil }

// fakeClient replays its fixed chunk sequence on every Stream call.
type fakeClient struct {
	chunks []model.Chunk
}

func (c *fakeClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return &fakeStreamer{chunks: c.chunks}, nil
}

func doneToolCallChunks() []model.Chunk {
	return []model.Chunk{
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{ID: "call-1", Name: mode.ToolDone, Delta: `{"summary":`}},
		{Type: model.ChunkTypeToolCallDelta, ToolCallDelta: &model.ToolCallDelta{ID: "call-1", Name: mode.ToolDone, Delta: `"all done"}`}},
		{Type: model.ChunkTypeStop, StopReason: "tool_use"},
	}
}

func newTestAgent(t *testing.T, chunks []model.Chunk) (*Agent, *AgentThread) {
	t.Helper()
	state := NewState()
	registry := toolkit.NewRegistry()
	require.NoError(t, RegisterTerminalTools(registry, state))

	configs := mode.DefaultConfigs(map[mode.Name][]toolkit.Ident{
		mode.Review: {mode.ToolDone},
	})
	modes, err := mode.NewRegistry(configs...)
	require.NoError(t, err)

	agent := New(&fakeClient{chunks: chunks}, registry, modes, state, "user-1", "org-1", "test-agent", nil, nil)

	thread := &AgentThread{
		ID:          "thread-1",
		UserID:      "user-1",
		CurrentMode: mode.Review,
	}
	thread.Append(NewUserMessage("msg-1", "please wrap up", ""))
	return agent, thread
}

func TestStreamProcessThreadDispatchesTerminatingTool(t *testing.T) {
	agent, thread := newTestAgent(t, doneToolCallChunks())

	events := agent.StreamProcessThread(context.Background(), thread)
	var done bool
	for evt := range events {
		require.Nil(t, evt.Err)
		if evt.Value != nil && evt.Value.Done {
			done = true
		}
	}
	require.True(t, done)

	require.NoError(t, thread.Validate())
	// mode.Resolve checks "no data context and a user prompt present" before
	// "terminating tool fired", so a done call on the first step of a thread
	// that starts from a user prompt lands in DataContextSearch.
	require.Equal(t, mode.DataContextSearch, thread.CurrentMode)

	var sawAssistant, sawTool bool
	for _, m := range thread.Messages {
		if m.Kind == KindAssistant {
			sawAssistant = true
			require.Equal(t, ProgressComplete, m.Progress)
			require.Len(t, m.ToolCalls, 1)
			require.Equal(t, "done", m.ToolCalls[0].FunctionName)
		}
		if m.Kind == KindTool {
			sawTool = true
			require.Equal(t, "call-1", m.ToolCallID)
		}
	}
	require.True(t, sawAssistant)
	require.True(t, sawTool)
}

func TestStreamProcessThreadStopsWithoutToolCalls(t *testing.T) {
	agent, thread := newTestAgent(t, []model.Chunk{
		{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: "all good, nothing to do"}}}},
		{Type: model.ChunkTypeStop, StopReason: "end_turn"},
	})

	events := agent.StreamProcessThread(context.Background(), thread)
	for evt := range events {
		require.Nil(t, evt.Err)
	}

	require.NoError(t, thread.Validate())
	var assistantCount int
	for _, m := range thread.Messages {
		if m.Kind == KindAssistant {
			assistantCount++
			require.Equal(t, "all good, nothing to do", m.Content)
		}
	}
	require.Equal(t, 1, assistantCount)
}

func TestStreamProcessThreadSurfacesShutdownOnCanceledContext(t *testing.T) {
	agent, thread := newTestAgent(t, doneToolCallChunks())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := agent.StreamProcessThread(ctx, thread)
	var sawShutdown bool
	for evt := range events {
		if evt.Err != nil && evt.Err.Kind == KindShutdown {
			sawShutdown = true
		}
	}
	require.True(t, sawShutdown)
}
