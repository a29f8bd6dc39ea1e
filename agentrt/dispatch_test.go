package agentrt

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/lumenanalytics/agentd/toolkit"
)

// echoOutput is the result shape of echoTool: it hands back whatever call
// index it was given, so dispatch order can be checked without relying on
// goroutine completion order.
type echoOutput struct {
	Index int `json:"index"`
}

type echoTool struct {
	toolkit.AlwaysEnabled
}

func (echoTool) Spec() toolkit.Spec {
	return toolkit.Spec{Name: "echo", Description: "echoes its input index back"}
}

func (echoTool) Execute(_ context.Context, _ toolkit.CallMeta, params echoOutput) (echoOutput, error) {
	return params, nil
}

func echoRegistry(t *testing.T) *toolkit.Registry {
	t.Helper()
	registry := toolkit.NewRegistry()
	codec := toolkit.JSONCodec[echoOutput]{
		ToJSON:   json.Marshal,
		FromJSON: func(b []byte) (echoOutput, error) { var o echoOutput; err := json.Unmarshal(b, &o); return o, err },
	}
	tool, err := toolkit.Register[echoOutput, echoOutput](echoTool{}, codec, codec)
	require.NoError(t, err)
	require.NoError(t, registry.Add(tool))
	return registry
}

// TestDispatchToolCallsPreservesRequestOrder is spec.md §8 property 2: N
// requested tool calls in one Assistant message produce exactly N Tool
// messages, in the same order as requested, regardless of concurrent
// dispatch completion order.
func TestDispatchToolCallsPreservesRequestOrder(t *testing.T) {
	registry := echoRegistry(t)
	executor := toolkit.NewExecutor(registry)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("n tool calls produce n tool messages in request order", prop.ForAllNoError(
		func(n int) bool {
			calls := make([]toolkit.Call, n)
			for i := 0; i < n; i++ {
				payload, _ := json.Marshal(echoOutput{Index: i})
				calls[i] = toolkit.Call{
					Name:    "echo",
					Payload: payload,
					Meta:    toolkit.CallMeta{CallID: fmt.Sprintf("call-%d", i)},
				}
			}

			results := dispatchToolCalls(context.Background(), executor, calls)
			if len(results) != n {
				return false
			}
			messages := make([]Message, n)
			for i, r := range results {
				messages[i] = resultToToolMessage(r)
			}

			for i, m := range messages {
				if m.Kind != KindTool {
					return false
				}
				if m.ToolCallID != fmt.Sprintf("call-%d", i) {
					return false
				}
				var out echoOutput
				if err := json.Unmarshal([]byte(m.Content), &out); err != nil {
					return false
				}
				if out.Index != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}
