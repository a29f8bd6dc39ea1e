package agentrt

import (
	"sync"

	"github.com/lumenanalytics/agentd/mode"
)

// Todo is one entry in the State's todos list.
type Todo struct {
	Todo      string `json:"todo"`
	Completed bool   `json:"completed"`
}

// State is the process-local, per-runtime mapping of agent state (spec.md
// §3's "Agent State"). Capability flags (DataContext, PlanAvailable,
// MetricsAvailable, DashboardsAvailable, FilesAvailable, ReviewNeeded) are
// monotonic: SetCapability only ever transitions false -> true; an explicit
// tool is the only thing allowed to flip one back to false, via
// ResetCapability. Todos may be mutated arbitrarily.
type State struct {
	mu sync.Mutex

	dataContext         bool
	planAvailable       bool
	metricsAvailable    bool
	dashboardsAvailable bool
	filesAvailable      bool
	reviewNeeded        bool

	todos []Todo

	// values holds any additional process-local key/value state set via
	// SetValue/GetValue, for caller-defined scratch data beyond the closed
	// capability-flag set.
	values map[string]any
}

// NewState constructs an empty State.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Flags returns a snapshot of the current capability flags as mode.StateFlags,
// the input mode.Resolve needs to compute the next mode.
func (s *State) Flags() mode.StateFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mode.StateFlags{
		DataContext:         s.dataContext,
		PlanAvailable:       s.planAvailable,
		MetricsAvailable:    s.metricsAvailable,
		DashboardsAvailable: s.dashboardsAvailable,
		FilesAvailable:      s.filesAvailable,
		ReviewNeeded:        s.reviewNeeded,
	}
}

// Capability names accepted by SetCapability/ResetCapability.
const (
	CapabilityDataContext         = "data_context"
	CapabilityPlanAvailable       = "plan_available"
	CapabilityMetricsAvailable    = "metrics_available"
	CapabilityDashboardsAvailable = "dashboards_available"
	CapabilityFilesAvailable      = "files_available"
	CapabilityReviewNeeded        = "review_needed"
)

// SetCapability sets the named capability flag to true. It is a no-op if
// already true (monotonic: never silently flips true -> false).
func (s *State) SetCapability(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case CapabilityDataContext:
		s.dataContext = true
	case CapabilityPlanAvailable:
		s.planAvailable = true
	case CapabilityMetricsAvailable:
		s.metricsAvailable = true
	case CapabilityDashboardsAvailable:
		s.dashboardsAvailable = true
	case CapabilityFilesAvailable:
		s.filesAvailable = true
	case CapabilityReviewNeeded:
		s.reviewNeeded = true
	}
}

// ResetCapability explicitly clears the named capability flag. Only a tool
// that is documented to do so (e.g. a plan-invalidation tool) should call
// this; mode transitions themselves never reset a capability.
func (s *State) ResetCapability(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case CapabilityDataContext:
		s.dataContext = false
	case CapabilityPlanAvailable:
		s.planAvailable = false
	case CapabilityMetricsAvailable:
		s.metricsAvailable = false
	case CapabilityDashboardsAvailable:
		s.dashboardsAvailable = false
	case CapabilityFilesAvailable:
		s.filesAvailable = false
	case CapabilityReviewNeeded:
		s.reviewNeeded = false
	}
}

// Todos returns a copy of the current todo list.
func (s *State) Todos() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Todo, len(s.todos))
	copy(out, s.todos)
	return out
}

// SetTodos replaces the todo list wholesale.
func (s *State) SetTodos(todos []Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = todos
}

// CompleteAllTodos marks every todo complete, the side effect the done/idle
// terminating tools perform before returning their final-response payload
// (original_source's done.rs/idle.rs).
func (s *State) CompleteAllTodos() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.todos {
		s.todos[i].Completed = true
	}
}

// SetValue stores an arbitrary process-local value under key.
func (s *State) SetValue(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// GetValue retrieves a value previously stored with SetValue.
func (s *State) GetValue(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}
