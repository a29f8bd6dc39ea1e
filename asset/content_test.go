package asset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricYMLRoundTrip(t *testing.T) {
	m := MetricYML{
		Title:      "Weekly Signups",
		SQL:        "select count(*) from signups",
		TimeFrame:  "last_7_days",
		DatasetIDs: []string{"ds-1"},
		ChartConfig: map[string]any{
			"type": "line",
		},
	}
	data, err := EncodeMetric(m)
	require.NoError(t, err)

	decoded, err := DecodeMetric(data)
	require.NoError(t, err)
	require.Equal(t, m.Title, decoded.Title)
	require.Equal(t, m.SQL, decoded.SQL)
	require.Equal(t, m.DatasetIDs, decoded.DatasetIDs)
}

func TestDashboardYMLReferencedMetricIDs(t *testing.T) {
	d := DashboardYML{
		Name: "Growth",
		Rows: []DashboardRow{
			{Items: []DashboardItem{{ID: "m-1"}, {ID: "m-2"}}},
			{Items: []DashboardItem{{ID: "m-3"}}},
		},
	}
	require.Equal(t, []string{"m-1", "m-2", "m-3"}, d.ReferencedMetricIDs())

	data, err := EncodeDashboard(d)
	require.NoError(t, err)

	decoded, err := DecodeDashboard(data)
	require.NoError(t, err)
	require.Equal(t, d.ReferencedMetricIDs(), decoded.ReferencedMetricIDs())
}

func TestDecodeDashboardToleratesDanglingReferences(t *testing.T) {
	decoded, err := DecodeDashboard([]byte("name: Growth\nrows:\n  - items:\n      - id: does-not-exist\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"does-not-exist"}, decoded.ReferencedMetricIDs())
}
