// Package model defines the provider-agnostic message and streaming types
// used by the agent runtime and its model client adapters. Messages are
// modeled as typed parts (thinking, text, tool use/result) rather than
// flattened strings so providers and the chunk processor can preserve
// structure end to end.
package model

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lumenanalytics/agentd/toolkit"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

type (
	// Part is a marker interface implemented by all message parts.
	Part interface {
		isPart()
	}

	// ImageFormat identifies the on-wire format of an image part. Provider
	// adapters may support only a subset of formats.
	ImageFormat string

	// DocumentFormat identifies the on-wire format (extension) of a document part.
	DocumentFormat string

	// TextPart is a plain text content block in a message.
	TextPart struct {
		Text string
	}

	// ImagePart carries image bytes attached to a user message.
	ImagePart struct {
		Format ImageFormat
		Bytes  []byte
	}

	// DocumentPart carries document content attached to a user message.
	// Exactly one of Bytes, Text, Chunks, or URI is expected to be set.
	DocumentPart struct {
		Name    string
		Format  DocumentFormat
		Bytes   []byte
		Text    string
		Chunks  []string
		URI     string
		Context string
		Cite    bool
	}

	// CitationsPart is generated content paired with citation metadata.
	CitationsPart struct {
		Text      string
		Citations []Citation
	}

	// Citation links generated content back to a location in a source document.
	Citation struct {
		Title         string
		Source        string
		Location      CitationLocation
		SourceContent []string
	}

	// CitationLocation identifies where cited content can be found. At most
	// one of DocumentChar, DocumentChunk, or DocumentPage is set.
	CitationLocation struct {
		DocumentChar  *DocumentCharLocation
		DocumentChunk *DocumentChunkLocation
		DocumentPage  *DocumentPageLocation
	}

	DocumentCharLocation struct {
		DocumentIndex int
		Start         int
		End           int
	}

	DocumentChunkLocation struct {
		DocumentIndex int
		Start         int
		End           int
	}

	DocumentPageLocation struct {
		DocumentIndex int
		Start         int
	}

	// ThinkingPart represents provider-issued reasoning content. Callers
	// treat this as opaque metadata and surface it according to UI policy.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
		Index     int
		Final     bool
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a user message so the
	// model can read it on the next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// CacheCheckpointPart marks a cache boundary in a message. Provider
	// adapters that do not support caching ignore this part.
	CacheCheckpointPart struct{}

	// Message is a single chat message. Parts preserve structure rather than
	// flattening to plain strings.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes a tool exposed to the model.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is a requested tool invocation from the model.
	ToolCall struct {
		Name toolkit.Ident
		// Payload is canonical JSON; callers rely on toolkit codecs for any
		// schema-aware decoding rather than inspecting it directly.
		Payload json.RawMessage
		ID      string
	}

	// ToolCallDelta is an incremental tool-call payload fragment streamed by
	// providers while still constructing the full tool input JSON. This is a
	// best-effort UX signal; the canonical payload remains ToolCall.Payload
	// once the provider closes the tool block.
	ToolCallDelta struct {
		Name  toolkit.Ident
		ID    string
		Delta string
	}

	// ToolChoiceMode controls how the model uses tools for a request.
	ToolChoiceMode string

	// ToolChoice configures optional tool-use behavior for a Request. A nil
	// ToolChoice on Request means providers use their default behavior
	// (typically auto-selection).
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures inputs for a model invocation.
	Request struct {
		RunID       string
		Model       string
		ModelClass  ModelClass
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
		Cache       *CacheOptions
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is a streaming event from the model, classified by Type.
	Chunk struct {
		Type          string
		Message       *Message
		Thinking      string
		ToolCall      *ToolCall
		ToolCallDelta *ToolCallDelta
		UsageDelta    *TokenUsage
		StopReason    string
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		Interleaved  bool
		BudgetTokens int
	}

	// CacheOptions configures prompt caching behavior for a request.
	// Providers that do not support caching ignore these options.
	CacheOptions struct {
		AfterSystem bool
		AfterTools  bool
	}

	// ModelClass identifies a model family a Mode can request without
	// hard-coding a provider-specific model identifier.
	ModelClass string

	// Client is the provider-agnostic model client.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers must drain the
	// stream until Recv returns io.EOF or another terminal error, then call Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		Metadata() map[string]any
	}
)

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

const (
	// ToolChoiceModeAuto lets the provider decide. Default when ToolChoice is nil.
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	// ToolChoiceModeNone disables tool use for the request.
	ToolChoiceModeNone ToolChoiceMode = "none"
	// ToolChoiceModeAny forces at least one tool call.
	ToolChoiceModeAny ToolChoiceMode = "any"
	// ToolChoiceModeTool forces the specific tool named by ToolChoice.Name.
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	ChunkTypeText          = "text"
	ChunkTypeToolCall      = "tool_call"
	ChunkTypeToolCallDelta = "tool_call_delta"
	ChunkTypeThinking      = "thinking"
	ChunkTypeUsage         = "usage"
	ChunkTypeStop          = "stop"
)

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWEBP ImageFormat = "webp"
)

const (
	DocumentFormatPDF  DocumentFormat = "pdf"
	DocumentFormatCSV  DocumentFormat = "csv"
	DocumentFormatDOCX DocumentFormat = "docx"
	DocumentFormatXLSX DocumentFormat = "xlsx"
	DocumentFormatHTML DocumentFormat = "html"
	DocumentFormatTXT  DocumentFormat = "txt"
	DocumentFormatMD   DocumentFormat = "md"
)

const (
	// ModelClassHighReasoning selects a high-reasoning model family, used by
	// modes that need deeper analysis (e.g. the review Mode).
	ModelClassHighReasoning ModelClass = "high-reasoning"
	// ModelClassDefault selects the default model family.
	ModelClassDefault ModelClass = "default"
	// ModelClassSmall selects a small/cheap model family, used for
	// lightweight modes such as Idle.
	ModelClassSmall ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting configured retries. Callers must not retry in a
// tight loop; this is a transient infrastructure failure safe to surface to
// higher layers (agentrt translates it into a retry-hinted tool/plan error).
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()            {}
func (ImagePart) isPart()           {}
func (DocumentPart) isPart()        {}
func (CitationsPart) isPart()       {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}
