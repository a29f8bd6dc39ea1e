package mode

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/lumenanalytics/agentd/toolkit"
)

func TestResolveTransitionTable(t *testing.T) {
	cases := []struct {
		name       string
		current    Name
		flags      StateFlags
		terminated bool
		userPrompt bool
		want       Name
	}{
		{"review wins over everything", Idle, StateFlags{ReviewNeeded: true, PlanAvailable: true}, true, true, Review},
		{"plan without metrics or dashboards goes to analysis", InitialAnalysis, StateFlags{PlanAvailable: true}, false, false, Analysis},
		{"data context without plan goes to planning", InitialAnalysis, StateFlags{DataContext: true}, false, false, Planning},
		{"no data context with a user prompt searches the catalog", InitialAnalysis, StateFlags{}, false, true, DataContextSearch},
		{"terminating tool with no other flag goes idle", Analysis, StateFlags{}, true, false, Idle},
		{"no rule matches stays put", CliAssist, StateFlags{DataContext: true, PlanAvailable: true, MetricsAvailable: true}, false, false, CliAssist},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Resolve(c.current, c.flags, c.terminated, c.userPrompt)
			require.Equal(t, c.want, got)
		})
	}
}

// TestResolveIsPure verifies mode-transition purity: calling Resolve twice
// with identical inputs always yields the identical output, confirming it
// has no hidden state or side effects.
func TestResolveIsPure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Resolve is deterministic and side-effect free", prop.ForAll(
		func(current Name, dataContext, planAvailable, metricsAvailable, dashboardsAvailable, filesAvailable, reviewNeeded, terminated, userPrompt bool) bool {
			flags := StateFlags{
				DataContext:         dataContext,
				PlanAvailable:       planAvailable,
				MetricsAvailable:    metricsAvailable,
				DashboardsAvailable: dashboardsAvailable,
				FilesAvailable:      filesAvailable,
				ReviewNeeded:        reviewNeeded,
			}
			a := Resolve(current, flags, terminated, userPrompt)
			b := Resolve(current, flags, terminated, userPrompt)
			return a == b
		},
		gen.OneConstOf(InitialAnalysis, DataContextSearch, Planning, Analysis, Review, Idle, CliAssist),
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestRegistryGetUnknownMode(t *testing.T) {
	r, err := NewRegistry(Config{Name: InitialAnalysis, PromptTemplate: "x"})
	require.NoError(t, err)

	_, err = r.Get(Planning)
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(
		Config{Name: InitialAnalysis, PromptTemplate: "x"},
		Config{Name: InitialAnalysis, PromptTemplate: "y"},
	)
	require.Error(t, err)
}

func TestRenderPromptSubstitutesPlaceholders(t *testing.T) {
	out, err := RenderPrompt("Today is {{.TodaysDate}} at {{.OrganizationName}}.", PromptData{
		TodaysDate:       "2026-07-31",
		OrganizationName: "Lumen Analytics",
	})
	require.NoError(t, err)
	require.Equal(t, "Today is 2026-07-31 at Lumen Analytics.", out)
}

func TestConfigIsTerminating(t *testing.T) {
	c := Config{TerminatingTools: []toolkit.Ident{ToolDone}}
	require.True(t, c.IsTerminating(ToolDone))
	require.False(t, c.IsTerminating(ToolIdle))
}
