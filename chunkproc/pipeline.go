package chunkproc

import "sync"

// callState tracks, per in-flight tool call id, which Processor was first
// selected for it and how much of its Text/File content has already been
// emitted, so Pipeline.Process can hand back only the new suffix on each
// call -- this is what makes the pipeline incremental (spec.md §4.6,
// property 5 in spec.md §8).
type callState struct {
	processor   Processor
	emittedText int
	emittedFile int
	previous    ProcessedOutput
}

// Pipeline selects a Processor for each tool call's accumulated argument
// buffer and turns its full-value ProcessedOutput into an incremental delta.
// The processor list is tried in order; the first whose CanProcess matches
// is pinned to that call id for the rest of its lifetime, so a call can
// never flip between processors mid-stream. A Pipeline built with
// NewPipeline always has a pass-through fallback at the end of the list, so
// selection never fails.
type Pipeline struct {
	mu         sync.Mutex
	processors []Processor
	calls      map[string]*callState
}

// NewPipeline builds a Pipeline trying extra in order before falling back to
// the built-in pass-through Pill processor.
func NewPipeline(extra ...Processor) *Pipeline {
	processors := make([]Processor, 0, len(extra)+1)
	processors = append(processors, extra...)
	processors = append(processors, passThroughProcessor{})
	return &Pipeline{processors: processors, calls: map[string]*callState{}}
}

// DefaultPipeline builds the Pipeline with the four registered processors
// from spec.md §4.6, in the order they're tried.
func DefaultPipeline() *Pipeline {
	return NewPipeline(
		NewCreatePlanProcessor(),
		NewSearchDataCatalogProcessor(),
		NewMetricProcessor(),
		NewDashboardProcessor(),
	)
}

// Forget drops any state held for callID, freeing it once the tool call has
// completed and its final result has been broadcast.
func (p *Pipeline) Forget(callID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.calls, callID)
}

// Process selects (or reuses) a Processor for callID against jsonSoFar and
// returns the incremental ProcessedOutput: Text.MessageChunk and
// File.TextChunk carry only the suffix received since the last call for this
// callID, never a repeat of previously emitted content.
func (p *Pipeline) Process(callID string, jsonSoFar string) (ProcessedOutput, error) {
	p.mu.Lock()
	state, ok := p.calls[callID]
	if !ok {
		state = &callState{processor: p.selectProcessor(jsonSoFar)}
		p.calls[callID] = state
	}
	p.mu.Unlock()

	out, err := state.processor.Process(callID, jsonSoFar, &state.previous)
	if err != nil {
		return ProcessedOutput{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out = deltaAgainst(out, state)
	state.previous = out
	return out, nil
}

// selectProcessor returns the first processor whose CanProcess matches
// jsonSoFar. The pass-through fallback always matches, so this never
// returns nil.
func (p *Pipeline) selectProcessor(jsonSoFar string) Processor {
	for _, proc := range p.processors {
		if proc.CanProcess(jsonSoFar) {
			return proc
		}
	}
	return passThroughProcessor{}
}

// deltaAgainst rewrites out's Text/File content to the suffix not yet
// emitted for state, then advances state's emitted counters. Pill outputs
// pass through unchanged -- they carry no incremental text of their own.
func deltaAgainst(out ProcessedOutput, state *callState) ProcessedOutput {
	switch out.Kind {
	case OutputText:
		full := out.Text.MessageChunk
		delta := suffixSince(full, state.emittedText)
		state.emittedText = len(full)
		out.Text = &TextOutput{Title: out.Text.Title, MessageChunk: delta}
	case OutputFile:
		full := out.File.TextChunk
		delta := suffixSince(full, state.emittedFile)
		state.emittedFile = len(full)
		out.File = &FileOutput{FileID: out.File.FileID, AssetType: out.File.AssetType, TextChunk: delta}
	}
	return out
}

func suffixSince(full string, emitted int) string {
	if emitted >= len(full) {
		return ""
	}
	return full[emitted:]
}
