package chunkproc

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestPipelineSelectsCreatePlanProcessor(t *testing.T) {
	p := DefaultPipeline()
	out, err := p.Process("call-1", `{"plan_markdown": "step one"}`)
	require.NoError(t, err)
	require.Equal(t, OutputText, out.Kind)
	require.Equal(t, "Creating a plan...", out.Text.Title)
	require.Equal(t, "step one", out.Text.MessageChunk)
}

func TestPipelineEmitsOnlyTheDelta(t *testing.T) {
	p := DefaultPipeline()

	out1, err := p.Process("call-1", `{"plan_markdown": "step "}`)
	require.NoError(t, err)
	require.Equal(t, "step ", out1.Text.MessageChunk)

	out2, err := p.Process("call-1", `{"plan_markdown": "step one, step two"}`)
	require.NoError(t, err)
	require.Equal(t, "one, step two", out2.Text.MessageChunk)
}

func TestPipelinePinsTheSameProcessorForACallID(t *testing.T) {
	p := DefaultPipeline()

	_, err := p.Process("call-1", `{"plan_markdown": "x"}`)
	require.NoError(t, err)

	out, err := p.Process("call-1", `{"plan_markdown": "xy", "search_requirements": "also present now"}`)
	require.NoError(t, err)
	require.Equal(t, OutputText, out.Kind)
	require.Equal(t, "Creating a plan...", out.Text.Title)
}

func TestPipelineFallsBackToPill(t *testing.T) {
	p := DefaultPipeline()
	out, err := p.Process("call-1", `{"unrelated_field": "x"}`)
	require.NoError(t, err)
	require.Equal(t, OutputPill, out.Kind)
	require.Equal(t, PillStatusLoading, out.Pill.Status)
}

func TestPipelineMetricProcessorSurfacesFileID(t *testing.T) {
	p := DefaultPipeline()
	out, err := p.Process("call-1", `{"metric_yaml": "title: Revenue", "asset_id": "m-1"}`)
	require.NoError(t, err)
	require.Equal(t, OutputFile, out.Kind)
	require.Equal(t, "m-1", out.File.FileID)
	require.Equal(t, "MetricFile", out.File.AssetType)
	require.Equal(t, "title: Revenue", out.File.TextChunk)
}

// TestPipelineDeltasNeverExceedGrowth is the incremental/idempotent
// contract of spec.md §4.6, tested as property 5 in spec.md §8: across any
// sequence of monotonically growing JSON buffers for the same call id, the
// concatenation of every emitted MessageChunk delta never exceeds the final
// field value, and Process never errors.
func TestPipelineDeltasNeverExceedGrowth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("reassembled deltas never overrun the final value", prop.ForAllNoError(
		func(chunks []string) {
			p := DefaultPipeline()
			full := ""
			reassembled := ""
			for _, c := range chunks {
				full += c
				buf := `{"plan_markdown": "` + full + `"}`
				out, err := p.Process("call-x", buf)
				require.NoError(t, err)
				reassembled += out.Text.MessageChunk
			}
			require.Equal(t, full, reassembled)
		},
		gen.SliceOfN(6, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
