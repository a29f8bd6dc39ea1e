package asset

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MetricYML is the canonical YAML content of a MetricFile version, matching
// spec.md's asset YAML contract.
type MetricYML struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description,omitempty"`
	SQL         string         `yaml:"sql"`
	TimeFrame   string         `yaml:"time_frame"`
	DatasetIDs  []string       `yaml:"dataset_ids"`
	ChartConfig map[string]any `yaml:"chart_config"`
}

// DashboardYML is the canonical YAML content of a DashboardFile version.
// Rows reference metrics by id; the store does not enforce referential
// integrity on those ids (spec.md §4.2) -- a dangling reference surfaces to
// the client on read rather than failing the read.
type DashboardYML struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Rows        []DashboardRow  `yaml:"rows"`
}

// DashboardRow is one row of dashboard items, each referencing a metric id.
type DashboardRow struct {
	Items []DashboardItem `yaml:"items"`
}

// DashboardItem references a metric asset by id. The store never validates
// that ID resolves to an existing MetricFile.
type DashboardItem struct {
	ID string `yaml:"id"`
}

// EncodeMetric marshals a MetricYML to its canonical on-disk form.
func EncodeMetric(m MetricYML) ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("asset: encode metric yaml: %w", err)
	}
	return data, nil
}

// DecodeMetric unmarshals canonical MetricFile content.
func DecodeMetric(content []byte) (MetricYML, error) {
	var m MetricYML
	if err := yaml.Unmarshal(content, &m); err != nil {
		return MetricYML{}, fmt.Errorf("asset: decode metric yaml: %w", err)
	}
	return m, nil
}

// EncodeDashboard marshals a DashboardYML to its canonical on-disk form.
func EncodeDashboard(d DashboardYML) ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("asset: encode dashboard yaml: %w", err)
	}
	return data, nil
}

// DecodeDashboard unmarshals canonical DashboardFile content, surfacing
// dangling metric-id references as plain data rather than an error -- the
// caller (chunkproc/ctxload) decides whether to flag them to the user.
func DecodeDashboard(content []byte) (DashboardYML, error) {
	var d DashboardYML
	if err := yaml.Unmarshal(content, &d); err != nil {
		return DashboardYML{}, fmt.Errorf("asset: decode dashboard yaml: %w", err)
	}
	return d, nil
}

// ReferencedMetricIDs returns every metric id referenced by a dashboard's
// rows, in row/item order, including duplicates.
func (d DashboardYML) ReferencedMetricIDs() []string {
	var ids []string
	for _, row := range d.Rows {
		for _, item := range row.Items {
			ids = append(ids, item.ID)
		}
	}
	return ids
}
