package ctxload

import (
	"context"
	"fmt"

	"github.com/lumenanalytics/agentd/agentrt"
	"github.com/lumenanalytics/agentd/asset"
)

// MetricContext seeds the thread with the current content of one Metric
// asset, grounded on original_source's MetricContextLoader. This system has
// no standalone Dataset asset type (§3's Asset variant is only
// MetricFile|DashboardFile|ReportFile|Collection|Chat), so unlike the
// original the referenced dataset_ids are surfaced inline as part of the
// metric's own YAML rather than fetched and appended separately.
type MetricContext struct {
	MetricID string
	Assets   *asset.Service
}

func (l MetricContext) Load(ctx context.Context, actor Actor) (Result, error) {
	a, _, err := l.Assets.Get(ctx, l.MetricID, asset.TypeMetricFile, actor.UserID, actor.OrganizationID)
	if err != nil {
		return Result{}, fmt.Errorf("ctxload: load metric %s: %w", l.MetricID, err)
	}
	latest, ok := a.History.Latest()
	if !ok {
		return Result{}, fmt.Errorf("ctxload: metric %s has no content", l.MetricID)
	}

	metricYML, err := asset.DecodeMetric(latest.Content)
	if err != nil {
		return Result{}, fmt.Errorf("ctxload: decode metric %s: %w", l.MetricID, err)
	}

	content := fmt.Sprintf(
		"This conversation is continuing with context from the metric. Here is the relevant information:\n\nMetric Definition:\n%s\n",
		latest.Content,
	)

	caps := []string{agentrt.CapabilityMetricsAvailable, agentrt.CapabilityFilesAvailable}
	if len(metricYML.DatasetIDs) > 0 {
		caps = append(caps, agentrt.CapabilityDataContext)
	}

	return Result{
		Messages:     []agentrt.Message{contextSeedMessage(content)},
		Capabilities: caps,
	}, nil
}

// DashboardContext seeds the thread with the current content of one
// Dashboard asset, grounded on original_source's DashboardContextLoader
// (referenced, not included, in the retrieved pack -- its shape mirrors
// MetricContextLoader exactly, substituting dashboard_files for
// metric_files).
type DashboardContext struct {
	DashboardID string
	Assets      *asset.Service
}

func (l DashboardContext) Load(ctx context.Context, actor Actor) (Result, error) {
	a, _, err := l.Assets.Get(ctx, l.DashboardID, asset.TypeDashboardFile, actor.UserID, actor.OrganizationID)
	if err != nil {
		return Result{}, fmt.Errorf("ctxload: load dashboard %s: %w", l.DashboardID, err)
	}
	latest, ok := a.History.Latest()
	if !ok {
		return Result{}, fmt.Errorf("ctxload: dashboard %s has no content", l.DashboardID)
	}
	if _, err := asset.DecodeDashboard(latest.Content); err != nil {
		return Result{}, fmt.Errorf("ctxload: decode dashboard %s: %w", l.DashboardID, err)
	}

	content := fmt.Sprintf(
		"This conversation is continuing with context from the dashboard. Here is the relevant information:\n\nDashboard Definition:\n%s\n",
		latest.Content,
	)

	return Result{
		Messages:     []agentrt.Message{contextSeedMessage(content)},
		Capabilities: []string{agentrt.CapabilityDashboardsAvailable, agentrt.CapabilityFilesAvailable},
	}, nil
}

// GenericAssetContext delegates to MetricContext or DashboardContext by
// asset type, mirroring original_source's GenericAssetContextLoader. Other
// asset types are not supported for context seeding, matching the original.
type GenericAssetContext struct {
	AssetID   string
	AssetType asset.Type
	Assets    *asset.Service
}

func (l GenericAssetContext) Load(ctx context.Context, actor Actor) (Result, error) {
	switch l.AssetType {
	case asset.TypeMetricFile:
		return MetricContext{MetricID: l.AssetID, Assets: l.Assets}.Load(ctx, actor)
	case asset.TypeDashboardFile:
		return DashboardContext{DashboardID: l.AssetID, Assets: l.Assets}.Load(ctx, actor)
	default:
		return Result{}, fmt.Errorf("ctxload: unsupported asset type for context loading: %s", l.AssetType)
	}
}

// contextSeedMessage builds the single Assistant{initial=true} message every
// asset-backed context strategy produces (spec.md §4.7).
func contextSeedMessage(content string) agentrt.Message {
	m := agentrt.NewAssistantMessage(true)
	m.Content = content
	m.Progress = agentrt.ProgressComplete
	return m
}
