// Package orchestrator implements the Chat Orchestrator (C8): the single
// post_chat entrypoint spec.md §4.8 describes, wiring the Permission
// Kernel, Artifact Store, Tool Registry/Executor, Mode Configuration,
// Agent Runtime, and Context Loader together for one conversation turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumenanalytics/agentd/agentrt"
	"github.com/lumenanalytics/agentd/asset"
	"github.com/lumenanalytics/agentd/ctxload"
	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/telemetry"
	"github.com/lumenanalytics/agentd/toolkit"
)

// eventBufferSize mirrors the runtime's own broadcast capacity (spec.md
// §4.5/§5): the channel PostChat hands back to its caller is bounded the
// same way, so a slow transport-layer consumer degrades by dropping old
// events rather than stalling the forwarding goroutine.
const eventBufferSize = 1024

// Request is post_chat's input: the caller's identity, which chat to
// continue (or start), and/or which asset to seed context from.
type Request struct {
	UserID         string
	OrganizationID string

	// ChatID continues an existing Chat asset when set; when empty, PostChat
	// creates a new one.
	ChatID string

	// Prompt is the new user message to append, if any. Mutually exclusive
	// with the asset_id+asset_type-without-prompt synthetic-message flow
	// spec.md §4.8 step 1 describes.
	Prompt string

	// AssetID/AssetType seed context from an existing Metric/Dashboard
	// asset. When Prompt is empty, this produces synthetic user+assistant
	// messages and a message-to-file association instead of a real model
	// turn.
	AssetID   string
	AssetType asset.Type

	// Sink optionally receives every event PostChat's caller also receives,
	// for a second consumer (e.g. an audit log) per spec.md §4.8 step 4.
	// Sends to Sink are best-effort: a full or nil Sink never blocks the
	// conversation.
	Sink chan<- agentrt.Event

	// InitialMode overrides the thread's starting mode; zero value means
	// mode.InitialAnalysis (spec.md §4.8 step 3: "apply the initial mode
	// (InitialAnalysis unless overridden by CLI orchestrator)"). A CLI
	// frontend driving agentd interactively sets this to mode.CliAssist to
	// get the run_bash_command/find_files_glob/... toolkit instead of the
	// data-analyst tool set.
	InitialMode mode.Name
}

// Outcome is what PostChat hands back immediately: the chat id (freshly
// minted or the caller's own) and the live event stream.
type Outcome struct {
	ChatID string
	Events <-chan agentrt.Event
}

// Orchestrator wires the services PostChat needs. One Orchestrator serves
// every conversation; each PostChat call builds its own per-conversation
// toolkit.Registry/agentrt.State, since tool implementations close over
// conversation-scoped state.
type Orchestrator struct {
	assets  *asset.Service
	models  model.Client
	modes   *mode.Registry
	tracer  telemetry.Tracer
	metrics telemetry.Metrics
}

// allowedTools is the fixed per-mode tool allow-list every conversation
// runs with, matching the tool names RegisterTerminalTools/
// RegisterDomainTools register. Analysis also carries done: a tool's
// Terminal bit (not a mode's TerminatingTools list) is what actually ends
// the turn loop (see agentrt.Agent.run), so letting the model call done as
// soon as its metrics/dashboards satisfy the plan -- without a mandatory
// detour through Review -- matches spec.md §8 scenario S1's literal flow.
var allowedTools = map[mode.Name][]toolkit.Ident{
	mode.InitialAnalysis:   {mode.ToolSearchDataCatalog},
	mode.DataContextSearch: {mode.ToolSearchDataCatalog},
	mode.Planning:          {mode.ToolCreatePlan},
	mode.Analysis:          {mode.ToolCreateMetrics, mode.ToolCreateDashboards, mode.ToolDone},
	mode.Review:            {mode.ToolDone},
	mode.Idle:              {mode.ToolIdle},
	mode.CliAssist: {
		mode.ToolRunBashCommand,
		mode.ToolFindFilesGlob,
		mode.ToolSearchFileContentGrep,
		mode.ToolListDirectory,
		mode.ToolReadFileContent,
		mode.ToolEditFileContent,
		mode.ToolWriteFileContent,
	},
}

// New constructs an Orchestrator. models backs every conversation's Agent;
// assets is the shared Artifact Store (itself wired to the Permission
// Kernel, see asset.NewService). tracer and metrics may be nil, in which
// case every conversation's Agent runs untraced.
func New(assets *asset.Service, models model.Client, tracer telemetry.Tracer, metrics telemetry.Metrics) (*Orchestrator, error) {
	configs := mode.DefaultConfigs(allowedTools)
	modes, err := mode.NewRegistry(configs...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build mode registry: %w", err)
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Orchestrator{assets: assets, models: models, modes: modes, tracer: tracer, metrics: metrics}, nil
}

// PostChat implements spec.md §4.8's six-step contract.
func (o *Orchestrator) PostChat(ctx context.Context, req Request) (*Outcome, error) {
	if req.Prompt == "" && req.AssetID == "" {
		return nil, fmt.Errorf("orchestrator: request carries neither a prompt nor an asset_id")
	}

	chat, isNew, err := o.resolveChat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve chat: %w", err)
	}

	actor := ctxload.Actor{UserID: req.UserID, OrganizationID: req.OrganizationID}
	strategy := o.chooseStrategy(req, isNew)
	contextResult, err := strategy.Load(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load context: %w", err)
	}

	initialMode := req.InitialMode
	if initialMode == "" {
		initialMode = mode.InitialAnalysis
	}

	state := agentrt.NewState()
	thread := &agentrt.AgentThread{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		CurrentMode:    initialMode,
	}
	contextResult.Apply(thread, state)

	var fileAssoc *fileAssociation
	switch {
	case req.Prompt != "":
		thread.Append(agentrt.NewUserMessage(uuid.NewString(), req.Prompt, ""))
	case req.AssetID != "":
		assoc, err := newFileAssociation(req.AssetID, req.AssetType)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		fileAssoc = assoc
		thread.Append(assoc.syntheticUserMessage())
		thread.Append(assoc.syntheticAssistantMessage())
	}

	registry := toolkit.NewRegistry()
	if err := agentrt.RegisterTerminalTools(registry, state); err != nil {
		return nil, fmt.Errorf("orchestrator: register terminal tools: %w", err)
	}
	if initialMode == mode.CliAssist {
		if err := agentrt.RegisterCliTools(registry); err != nil {
			return nil, fmt.Errorf("orchestrator: register cli tools: %w", err)
		}
	} else {
		if err := agentrt.RegisterDomainTools(registry, o.assets, state, req.OrganizationID); err != nil {
			return nil, fmt.Errorf("orchestrator: register domain tools: %w", err)
		}
	}

	agent := agentrt.New(o.models, registry, o.modes, state, req.UserID, req.OrganizationID, "agentd", o.tracer, o.metrics)

	out := make(chan agentrt.Event, eventBufferSize)
	go o.drive(ctx, agent, thread, chat.ID, req, fileAssoc, out)

	return &Outcome{ChatID: chat.ID, Events: out}, nil
}

// resolveChat loads req.ChatID's Chat asset, or creates a fresh one when
// ChatID is empty, per spec.md §4.8 step 1's first half.
func (o *Orchestrator) resolveChat(ctx context.Context, req Request) (*asset.Asset, bool, error) {
	if req.ChatID != "" {
		chat, _, err := o.assets.Get(ctx, req.ChatID, asset.TypeChat, req.UserID, req.OrganizationID)
		if err != nil {
			return nil, false, err
		}
		return chat, false, nil
	}
	chat, err := asset.NewAsset(req.OrganizationID, asset.TypeChat, req.UserID, []byte("[]"))
	if err != nil {
		return nil, false, err
	}
	chat.Chat = &asset.ChatMeta{}
	if err := o.assets.Create(ctx, chat); err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

// chooseStrategy implements spec.md §4.8 step 2: select a Context Loader
// from the request's shape. An existing, non-empty chat replays its prior
// messages; a fresh chat seeded by an asset loads that asset's content; a
// fresh chat with only a prompt starts from nothing.
func (o *Orchestrator) chooseStrategy(req Request, isNew bool) ctxload.Strategy {
	if !isNew {
		return ctxload.ChatContext{ChatID: req.ChatID, Assets: o.assets}
	}
	if req.AssetID != "" {
		return ctxload.GenericAssetContext{AssetID: req.AssetID, AssetType: req.AssetType, Assets: o.assets}
	}
	return ctxload.NoContext{}
}

// drive runs the turn loop to completion, forwarding every event to out
// (and, best-effort, to req.Sink), then persists the final thread state
// per spec.md §4.8 steps 4-6. It always closes out exactly once.
func (o *Orchestrator) drive(ctx context.Context, agent *agentrt.Agent, thread *agentrt.AgentThread, chatID string, req Request, fileAssoc *fileAssociation, out chan agentrt.Event) {
	defer close(out)

	events := agent.StreamProcessThread(ctx, thread)
	var runErr *agentrt.AgentError
	for evt := range events {
		if evt.Err != nil {
			runErr = evt.Err
		}
		// When out is full, drop its oldest pending event to make room.
		for sent := false; !sent; {
			select {
			case out <- evt:
				sent = true
			default:
				select {
				case <-out:
				default:
				}
			}
		}
		if req.Sink != nil {
			forward(req.Sink, evt)
		}
	}

	o.persist(context.WithoutCancel(ctx), thread, chatID, req, fileAssoc, runErr)
}

// forward sends evt to ch without blocking the driving goroutine; when ch is
// full, evt itself is dropped. drive uses it for the send-only Request.Sink.
func forward(ch chan<- agentrt.Event, evt agentrt.Event) {
	select {
	case ch <- evt:
	default:
	}
}

// persist implements spec.md §4.8 steps 5-6: write the final AgentThread
// back into the Chat's content, update most_recent_file_* from the last
// file-producing tool result, and record a failure if the run ended in
// error. A background context is used so a caller-canceled ctx does not
// also abort the persistence that must happen regardless.
func (o *Orchestrator) persist(ctx context.Context, thread *agentrt.AgentThread, chatID string, req Request, fileAssoc *fileAssociation, runErr *agentrt.AgentError) {
	content, err := json.Marshal(thread.Messages)
	if err != nil {
		return
	}
	_ = o.assets.UpdateContent(ctx, chatID, asset.TypeChat, req.UserID, req.OrganizationID, content, false)

	meta := asset.ChatMeta{}
	if assetID, assetType, version, ok := lastFileAssociation(thread, fileAssoc); ok {
		meta.MostRecentFileID = assetID
		meta.MostRecentFileType = assetType
		meta.MostRecentFileVersion = version
		_ = o.assets.UpdateChatMeta(ctx, chatID, req.UserID, req.OrganizationID, meta)
	}

	_ = runErr // surfaced to the caller via the event stream; persistence proceeds either way (spec.md §4.8 step 6)
}

// lastFileAssociation scans thread for the most recently produced
// Metric/Dashboard asset, preferring one just created by a tool call in
// this turn (create_metrics/create_dashboards) and falling back to a
// synthetic association carried in from an asset-seeded request.
func lastFileAssociation(thread *agentrt.AgentThread, fileAssoc *fileAssociation) (assetID string, assetType asset.Type, version int, ok bool) {
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		m := thread.Messages[i]
		if m.Kind != agentrt.KindTool {
			continue
		}
		switch m.ToolName {
		case string(mode.ToolCreateMetrics):
			if id, ok := extractAssetID(m.Content); ok {
				return id, asset.TypeMetricFile, 1, true
			}
		case string(mode.ToolCreateDashboards):
			if id, ok := extractAssetID(m.Content); ok {
				return id, asset.TypeDashboardFile, 1, true
			}
		}
	}
	if fileAssoc != nil {
		return fileAssoc.assetID, fileAssoc.assetType, 1, true
	}
	return "", "", 0, false
}

// extractAssetID pulls the asset_id field out of a create_metrics/
// create_dashboards tool result's JSON content.
func extractAssetID(content string) (string, bool) {
	var out struct {
		AssetID string `json:"asset_id"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil || out.AssetID == "" {
		return "", false
	}
	return out.AssetID, true
}

// fileAssociation is the message-to-file link spec.md §6 describes,
// created when a chat is opened directly against an existing asset rather
// than a fresh prompt (spec.md §4.8 step 1's second half).
type fileAssociation struct {
	assetID   string
	assetType asset.Type
}

func newFileAssociation(assetID string, assetType asset.Type) (*fileAssociation, error) {
	if err := asset.ValidateMessageFileAssetType(assetType); err != nil {
		return nil, err
	}
	return &fileAssociation{assetID: assetID, assetType: assetType}, nil
}

func (f *fileAssociation) syntheticUserMessage() agentrt.Message {
	return agentrt.NewUserMessage(uuid.NewString(), fmt.Sprintf("Let's continue working on %s %s.", f.assetType, f.assetID), "")
}

func (f *fileAssociation) syntheticAssistantMessage() agentrt.Message {
	m := agentrt.NewAssistantMessage(true)
	m.Content = fmt.Sprintf("Continuing from %s %s.", f.assetType, f.assetID)
	m.Progress = agentrt.ProgressComplete
	return m
}
