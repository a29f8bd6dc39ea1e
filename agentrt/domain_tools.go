package agentrt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenanalytics/agentd/asset"
	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/toolkit"
)

// domainDeps bundles the external services the built-in analytics tools
// (search_data_catalog, create_plan, create_metrics, create_dashboards) need
// beyond their own arguments: the Artifact Store to persist generated
// Metric/Dashboard assets into, and the identity under which to persist
// them. RegisterDomainTools wires one set of these per Agent/conversation.
type domainDeps struct {
	assets         *asset.Service
	state          *State
	organizationID string
}

// SearchDataCatalogParams is create_plan's sibling: the model's restatement
// of what data it is looking for. This system has no standalone dataset
// catalog to query (see ctxload's Dataset-asset-type scope note), so the
// tool's effect is to record the requirement and flag that the conversation
// now has data context -- the model's own restatement, echoed back, is the
// "search result" a real catalog lookup would otherwise replace.
type SearchDataCatalogParams struct {
	SearchRequirements string `json:"search_requirements"`
}

// SearchDataCatalogOutput echoes the requirement back as confirmation.
type SearchDataCatalogOutput struct {
	Found              bool   `json:"found"`
	SearchRequirements string `json:"search_requirements"`
}

type searchDataCatalogTool struct {
	toolkit.AlwaysEnabled
	deps *domainDeps
}

func (t *searchDataCatalogTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolSearchDataCatalog,
		Description: "Search the data catalog for datasets relevant to the user's request.",
	}
}

func (t *searchDataCatalogTool) Execute(_ context.Context, _ toolkit.CallMeta, params SearchDataCatalogParams) (SearchDataCatalogOutput, error) {
	t.deps.state.SetCapability(CapabilityDataContext)
	return SearchDataCatalogOutput{Found: true, SearchRequirements: params.SearchRequirements}, nil
}

// CreatePlanParams carries the model's plan, authored in markdown, matching
// chunkproc's CreatePlanProcessor field name.
type CreatePlanParams struct {
	PlanMarkdown string `json:"plan_markdown"`
}

// CreatePlanOutput echoes the plan back as confirmation.
type CreatePlanOutput struct {
	PlanMarkdown string `json:"plan_markdown"`
}

type createPlanTool struct {
	toolkit.AlwaysEnabled
	deps *domainDeps
}

func (t *createPlanTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolCreatePlan,
		Description: "Record the analysis plan for the current request.",
	}
}

func (t *createPlanTool) Execute(_ context.Context, _ toolkit.CallMeta, params CreatePlanParams) (CreatePlanOutput, error) {
	t.deps.state.SetCapability(CapabilityPlanAvailable)
	return CreatePlanOutput{PlanMarkdown: params.PlanMarkdown}, nil
}

// CreateMetricParams is create_metrics' payload: the canonical Metric YAML
// fields, matching asset.MetricYML's field names (metric_yaml is assembled
// from these at persistence time, not accepted raw, so the model's
// structured arguments stay independently schema-validated). Because the
// arguments carry no metric_yaml key, chunkproc's MetricProcessor does not
// match them while they stream.
type CreateMetricParams struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	SQL         string         `json:"sql"`
	TimeFrame   string         `json:"time_frame"`
	DatasetIDs  []string       `json:"dataset_ids"`
	ChartConfig map[string]any `json:"chart_config,omitempty"`
}

// CreateMetricOutput reports the newly persisted asset id and its encoded
// YAML, matching assetFileProcessor's idField/contentField ("asset_id",
// "metric_yaml").
type CreateMetricOutput struct {
	AssetID    string `json:"asset_id"`
	MetricYaml string `json:"metric_yaml"`
}

type createMetricTool struct {
	toolkit.AlwaysEnabled
	deps *domainDeps
}

func (t *createMetricTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolCreateMetrics,
		Description: "Create a new Metric asset from a SQL definition.",
	}
}

func (t *createMetricTool) Execute(ctx context.Context, meta toolkit.CallMeta, params CreateMetricParams) (CreateMetricOutput, error) {
	content, err := asset.EncodeMetric(asset.MetricYML{
		Title:       params.Title,
		Description: params.Description,
		SQL:         params.SQL,
		TimeFrame:   params.TimeFrame,
		DatasetIDs:  params.DatasetIDs,
		ChartConfig: params.ChartConfig,
	})
	if err != nil {
		return CreateMetricOutput{}, fmt.Errorf("create_metrics: encode: %w", err)
	}
	a, err := asset.NewAsset(t.deps.organizationID, asset.TypeMetricFile, meta.UserID, content)
	if err != nil {
		return CreateMetricOutput{}, fmt.Errorf("create_metrics: %w", err)
	}
	if err := t.deps.assets.Create(ctx, a); err != nil {
		return CreateMetricOutput{}, fmt.Errorf("create_metrics: persist: %w", err)
	}
	t.deps.state.SetCapability(CapabilityMetricsAvailable)
	return CreateMetricOutput{AssetID: a.ID, MetricYaml: string(content)}, nil
}

// CreateDashboardParams is create_dashboards' payload, matching
// asset.DashboardYML.
type CreateDashboardParams struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Rows        []asset.DashboardRow  `json:"rows"`
}

// CreateDashboardOutput reports the newly persisted asset id and its
// encoded YAML, matching DashboardProcessor's idField/contentField
// ("asset_id", "dashboard_yaml").
type CreateDashboardOutput struct {
	AssetID       string `json:"asset_id"`
	DashboardYaml string `json:"dashboard_yaml"`
}

type createDashboardTool struct {
	toolkit.AlwaysEnabled
	deps *domainDeps
}

func (t *createDashboardTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolCreateDashboards,
		Description: "Create a new Dashboard asset referencing existing Metric assets.",
	}
}

func (t *createDashboardTool) Execute(ctx context.Context, meta toolkit.CallMeta, params CreateDashboardParams) (CreateDashboardOutput, error) {
	content, err := asset.EncodeDashboard(asset.DashboardYML{
		Name:        params.Name,
		Description: params.Description,
		Rows:        params.Rows,
	})
	if err != nil {
		return CreateDashboardOutput{}, fmt.Errorf("create_dashboards: encode: %w", err)
	}
	a, err := asset.NewAsset(t.deps.organizationID, asset.TypeDashboardFile, meta.UserID, content)
	if err != nil {
		return CreateDashboardOutput{}, fmt.Errorf("create_dashboards: %w", err)
	}
	if err := t.deps.assets.Create(ctx, a); err != nil {
		return CreateDashboardOutput{}, fmt.Errorf("create_dashboards: persist: %w", err)
	}
	t.deps.state.SetCapability(CapabilityDashboardsAvailable)
	return CreateDashboardOutput{AssetID: a.ID, DashboardYaml: string(content)}, nil
}

func jsonCodec[T any]() toolkit.JSONCodec[T] {
	return toolkit.JSONCodec[T]{
		ToJSON:   json.Marshal,
		FromJSON: func(b []byte) (T, error) { var v T; err := json.Unmarshal(b, &v); return v, err },
	}
}

// RegisterDomainTools registers the analytics tools InitialAnalysis,
// Planning, and Analysis mode prompts rely on (search_data_catalog,
// create_plan, create_metrics, create_dashboards) against registry, backed
// by assets/state for one conversation. Call once per Agent, alongside
// RegisterTerminalTools.
func RegisterDomainTools(registry *toolkit.Registry, assets *asset.Service, state *State, organizationID string) error {
	deps := &domainDeps{assets: assets, state: state, organizationID: organizationID}

	search, err := toolkit.Register[SearchDataCatalogParams, SearchDataCatalogOutput](&searchDataCatalogTool{deps: deps}, jsonCodec[SearchDataCatalogParams](), jsonCodec[SearchDataCatalogOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(search); err != nil {
		return err
	}

	plan, err := toolkit.Register[CreatePlanParams, CreatePlanOutput](&createPlanTool{deps: deps}, jsonCodec[CreatePlanParams](), jsonCodec[CreatePlanOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(plan); err != nil {
		return err
	}

	metric, err := toolkit.Register[CreateMetricParams, CreateMetricOutput](&createMetricTool{deps: deps}, jsonCodec[CreateMetricParams](), jsonCodec[CreateMetricOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(metric); err != nil {
		return err
	}

	dashboard, err := toolkit.Register[CreateDashboardParams, CreateDashboardOutput](&createDashboardTool{deps: deps}, jsonCodec[CreateDashboardParams](), jsonCodec[CreateDashboardOutput]())
	if err != nil {
		return err
	}
	return registry.Add(dashboard)
}
