package mode

import (
	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/toolkit"
)

// Built-in terminating tool identifiers. agentrt registers the
// implementations (see agentrt's done/idle tools); mode only needs the
// names to populate Config.TerminatingTools.
const (
	ToolDone toolkit.Ident = "done"
	ToolIdle toolkit.Ident = "idle"

	ToolSearchDataCatalog toolkit.Ident = "search_data_catalog"
	ToolCreatePlan        toolkit.Ident = "create_plan"
	ToolCreateMetrics     toolkit.Ident = "create_metrics"
	ToolCreateDashboards  toolkit.Ident = "create_dashboards"

	// CliAssist's tool set (spec.md §6): a fixed-shell/filesystem toolkit
	// mirroring a coding-assistant CLI, gated to the CliAssist mode only.
	ToolRunBashCommand        toolkit.Ident = "run_bash_command"
	ToolFindFilesGlob         toolkit.Ident = "find_files_glob"
	ToolSearchFileContentGrep toolkit.Ident = "search_file_content_grep"
	ToolListDirectory         toolkit.Ident = "list_directory"
	ToolReadFileContent       toolkit.Ident = "read_file_content"
	ToolEditFileContent       toolkit.Ident = "edit_file_content"
	ToolWriteFileContent      toolkit.Ident = "write_file_content"
)

const initialAnalysisPrompt = `You are an AI data analyst helping {{.OrganizationName}} understand their data.
Today's date is {{.TodaysDate}}.
Determine what the user is asking for and decide whether you need to search
the data catalog, build a plan, or answer directly.`

const dataContextSearchPrompt = `You are searching the data catalog to find the datasets relevant to the
user's request. Today's date is {{.TodaysDate}}.
Call the data catalog search tool with your best understanding of what is
needed before producing any analysis.`

const planningPrompt = `You are creating a plan for how to analyze the data available to
{{.OrganizationName}}. Today's date is {{.TodaysDate}}.
Write a concise, numbered plan before taking any further action.`

const analysisPrompt = `You are building metrics and dashboards for {{.OrganizationName}} according to
the current plan. Today's date is {{.TodaysDate}}.
Create or update metrics and dashboards as needed to satisfy the plan.`

const reviewPrompt = `You are reviewing the metrics and dashboards you have produced for
{{.OrganizationName}} for correctness before presenting them to the user.
Today's date is {{.TodaysDate}}.`

const idlePrompt = `The task is complete. Today's date is {{.TodaysDate}}.
Summarize what was done for the user; do not take further actions.`

const cliAssistPrompt = `You are assisting a user from the command line in {{.Cwd}}. Today's date is
{{.TodaysDate}}. Keep responses terse and terminal-friendly.`

// DefaultConfigs returns the built-in Config for every mode known to the
// core, in an order stable enough for NewRegistry to consume directly.
// allowedTools maps each mode to the tool identifiers its ToolLoader
// returns; callers assemble this from the toolkit.Registry they construct
// at startup so mode stays decoupled from any particular tool set.
func DefaultConfigs(allowedTools map[Name][]toolkit.Ident) []Config {
	return []Config{
		{
			Name:           InitialAnalysis,
			PromptTemplate: initialAnalysisPrompt,
			ModelClass:     model.ModelClassDefault,
			ToolLoader:     StaticTools(allowedTools[InitialAnalysis]...),
		},
		{
			Name:           DataContextSearch,
			PromptTemplate: dataContextSearchPrompt,
			ModelClass:     model.ModelClassDefault,
			ToolLoader:     StaticTools(allowedTools[DataContextSearch]...),
		},
		{
			Name:           Planning,
			PromptTemplate: planningPrompt,
			ModelClass:     model.ModelClassDefault,
			ToolLoader:     StaticTools(allowedTools[Planning]...),
		},
		{
			Name:           Analysis,
			PromptTemplate: analysisPrompt,
			ModelClass:     model.ModelClassDefault,
			ToolLoader:     StaticTools(allowedTools[Analysis]...),
		},
		{
			Name:             Review,
			PromptTemplate:   reviewPrompt,
			ModelClass:       model.ModelClassHighReasoning,
			ToolLoader:       StaticTools(allowedTools[Review]...),
			TerminatingTools: []toolkit.Ident{ToolDone},
		},
		{
			Name:             Idle,
			PromptTemplate:   idlePrompt,
			ModelClass:       model.ModelClassSmall,
			ToolLoader:       StaticTools(allowedTools[Idle]...),
			TerminatingTools: []toolkit.Ident{ToolIdle},
		},
		{
			Name:           CliAssist,
			PromptTemplate: cliAssistPrompt,
			ModelClass:     model.ModelClassDefault,
			ToolLoader:     StaticTools(allowedTools[CliAssist]...),
		},
	}
}
