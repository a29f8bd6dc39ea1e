// Package chunkproc implements the Chunk Processor Pipeline (C6): turning
// the accumulated, still-growing JSON argument buffer of an in-flight tool
// call into incremental, UI-safe ProcessedOutput events, so the runtime
// never has to broadcast raw (and possibly malformed) JSON to clients.
package chunkproc

// OutputKind tags which ProcessedOutput variant is populated.
type OutputKind string

const (
	OutputText OutputKind = "text"
	OutputFile OutputKind = "file"
	OutputPill OutputKind = "pill"
)

// TextOutput is a titled, incrementally-growing text block (CreatePlan,
// SearchDataCatalog).
type TextOutput struct {
	Title        string
	MessageChunk string
}

// FileOutput is an incrementally-populated file reference (Metric,
// Dashboard). FileID is empty until the asset has been persisted and its id
// is known.
type FileOutput struct {
	FileID    string
	AssetType string
	TextChunk string
}

// PillStatus enumerates the lifecycle of a pass-through Pill output.
type PillStatus string

const (
	PillStatusLoading PillStatus = "loading"
	PillStatusDone    PillStatus = "done"
)

// PillOutput is the generic fallback representation for a tool with no
// dedicated Processor.
type PillOutput struct {
	ToolName string
	Status   PillStatus
}

// ProcessedOutput is the union C6 emits; exactly one of Text/File/Pill is
// set, selected by Kind.
type ProcessedOutput struct {
	Kind OutputKind
	Text *TextOutput
	File *FileOutput
	Pill *PillOutput
}

// Processor declares a processor_type and the predicate that selects it for
// a given accumulated argument buffer. Process must be incremental and
// idempotent: given the same (callID, jsonSoFar, previous) triple it always
// returns the same ProcessedOutput, and the delta it emits is never longer
// than the growth in jsonSoFar since the call that produced previous
// (spec.md §4.6, tested as property 5 in spec.md §8).
type Processor interface {
	ProcessorType() string
	CanProcess(jsonSoFar string) bool
	Process(callID string, jsonSoFar string, previous *ProcessedOutput) (ProcessedOutput, error)
}
