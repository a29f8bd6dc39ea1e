// Package mode implements Mode Configuration (C4): the quadruple of prompt
// template, model class, tool loader, and terminating-tool set that the
// agent runtime swaps between, plus the deterministic transition rule that
// computes the next mode from state flags after each assistant/tool round.
package mode

import (
	"context"
	"fmt"

	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/toolkit"
)

// Name identifies one of the modes known to the core.
type Name string

const (
	InitialAnalysis   Name = "InitialAnalysis"
	DataContextSearch Name = "DataContextSearch"
	Planning          Name = "Planning"
	Analysis          Name = "Analysis"
	Review            Name = "Review"
	Idle              Name = "Idle"
	CliAssist         Name = "CliAssist"
)

// StateFlags mirrors the Agent State's closed set of capability flags
// (spec.md's Data Model §3). Capability flags are monotonic within a
// session -- once true, a mode transition never flips one back to false;
// only an explicit tool call does that, and that is the caller's
// responsibility, not Resolve's.
type StateFlags struct {
	DataContext         bool
	PlanAvailable       bool
	MetricsAvailable    bool
	DashboardsAvailable bool
	FilesAvailable      bool
	ReviewNeeded        bool
}

// ToolLoader returns the tool identifiers a mode exposes to the model. It
// may consult ctx for caller-scoped feature flags but must not mutate
// StateFlags or any other shared state -- loading is a pure read.
type ToolLoader func(ctx context.Context) ([]toolkit.Ident, error)

// StaticTools returns a ToolLoader that always yields the same fixed set,
// for modes whose allowed toolset does not depend on runtime context.
func StaticTools(idents ...toolkit.Ident) ToolLoader {
	return func(context.Context) ([]toolkit.Ident, error) { return idents, nil }
}

// Config is the {prompt, model, tool_loader, terminating_tools} quadruple
// for one mode.
type Config struct {
	Name             Name
	PromptTemplate   string
	ModelClass       model.ModelClass
	ToolLoader       ToolLoader
	TerminatingTools []toolkit.Ident
}

// IsTerminating reports whether name is among this mode's terminating
// tools. agentrt's turn loop does not call it: a turn ends when the executed
// tool's Spec.Terminal bit is set.
func (c Config) IsTerminating(name toolkit.Ident) bool {
	for _, t := range c.TerminatingTools {
		if t == name {
			return true
		}
	}
	return false
}

// Registry holds the Config for every mode known to the core. Construction
// is expected once at process startup; reads are safe for concurrent use
// since the underlying map is never mutated after NewRegistry returns.
type Registry struct {
	configs map[Name]Config
}

// NewRegistry builds a Registry from configs, keyed by their Name field.
// Returns an error if two configs share a Name or a config has an empty
// Name. It does not check that every mode has a config; Get reports a
// missing one with ErrUnknownMode.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{configs: make(map[Name]Config, len(configs))}
	for _, c := range configs {
		if c.Name == "" {
			return nil, fmt.Errorf("mode: config has empty Name")
		}
		if _, exists := r.configs[c.Name]; exists {
			return nil, fmt.Errorf("mode: duplicate config for %q", c.Name)
		}
		r.configs[c.Name] = c
	}
	return r, nil
}

// ErrUnknownMode is returned by Registry.Get for a Name with no registered
// Config.
var ErrUnknownMode = fmt.Errorf("mode: unknown mode")

// Get returns the Config registered for name.
func (r *Registry) Get(name Name) (Config, error) {
	c, ok := r.configs[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	return c, nil
}

// Resolve computes the next mode as a pure function of current, the state
// flags, and the two event inputs, in the exact first-match-wins order
// spec.md §4.4 defines. When no rule matches, the mode does not change --
// current is returned unmodified. Resolve reads nothing but its arguments
// and mutates nothing, so repeated calls with the same inputs always return
// the same mode (the property mode/mode_test.go verifies).
func Resolve(current Name, flags StateFlags, terminatingToolFired bool, userPromptPresent bool) Name {
	switch {
	case flags.ReviewNeeded:
		return Review
	case flags.PlanAvailable && !flags.MetricsAvailable && !flags.DashboardsAvailable:
		return Analysis
	case flags.DataContext && !flags.PlanAvailable:
		return Planning
	case !flags.DataContext && userPromptPresent:
		return DataContextSearch
	case terminatingToolFired:
		return Idle
	default:
		return current
	}
}
