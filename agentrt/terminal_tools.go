package agentrt

import (
	"context"
	"encoding/json"

	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/toolkit"
)

// FinalResponseParams is the payload shape for the built-in done/idle
// terminating tools: a final-response summary shown to the user.
type FinalResponseParams struct {
	Summary string `json:"summary"`
}

// FinalResponseOutput echoes the summary back as the tool result content.
type FinalResponseOutput struct {
	Summary string `json:"summary"`
}

func finalResponseCodecs() (toolkit.JSONCodec[FinalResponseParams], toolkit.JSONCodec[FinalResponseOutput]) {
	paramsCodec := toolkit.JSONCodec[FinalResponseParams]{
		ToJSON:   json.Marshal,
		FromJSON: func(b []byte) (FinalResponseParams, error) { var p FinalResponseParams; err := json.Unmarshal(b, &p); return p, err },
	}
	resultCodec := toolkit.JSONCodec[FinalResponseOutput]{
		ToJSON:   json.Marshal,
		FromJSON: func(b []byte) (FinalResponseOutput, error) { var o FinalResponseOutput; err := json.Unmarshal(b, &o); return o, err },
	}
	return paramsCodec, resultCodec
}

// terminalTool implements the done/idle terminating tools: original_source's
// done.rs/idle.rs mark all outstanding todos complete as a side effect
// before returning their final-response payload.
type terminalTool struct {
	toolkit.AlwaysEnabled
	name  toolkit.Ident
	desc  string
	state *State
}

func (t *terminalTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        t.name,
		Description: t.desc,
		Terminal:    true,
	}
}

func (t *terminalTool) Execute(_ context.Context, _ toolkit.CallMeta, params FinalResponseParams) (FinalResponseOutput, error) {
	t.state.CompleteAllTodos()
	return FinalResponseOutput{Summary: params.Summary}, nil
}

// RegisterTerminalTools registers the built-in done/idle tools against
// registry, backed by state. Call once per Agent (state is per-conversation).
func RegisterTerminalTools(registry *toolkit.Registry, state *State) error {
	paramsCodec, resultCodec := finalResponseCodecs()
	done := &terminalTool{name: mode.ToolDone, desc: "Signal that the requested task is complete and provide a final summary.", state: state}
	idle := &terminalTool{name: mode.ToolIdle, desc: "Signal that there is nothing further to do and provide a final summary.", state: state}

	erasedDone, err := toolkit.Register[FinalResponseParams, FinalResponseOutput](done, paramsCodec, resultCodec)
	if err != nil {
		return err
	}
	if err := registry.Add(erasedDone); err != nil {
		return err
	}
	erasedIdle, err := toolkit.Register[FinalResponseParams, FinalResponseOutput](idle, paramsCodec, resultCodec)
	if err != nil {
		return err
	}
	return registry.Add(erasedIdle)
}
