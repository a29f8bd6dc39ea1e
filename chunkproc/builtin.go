package chunkproc

// textFieldProcessor implements the CreatePlan/SearchDataCatalog shape:
// detect a single string field, emit a Text output whose MessageChunk is
// the field's full value so far (Pipeline turns it into a suffix).
type textFieldProcessor struct {
	processorType string
	field         string
	title         string
}

func (p *textFieldProcessor) ProcessorType() string { return p.processorType }

func (p *textFieldProcessor) CanProcess(jsonSoFar string) bool {
	return HasKey(jsonSoFar, p.field)
}

// Process returns the full field value accumulated so far as MessageChunk.
// Pipeline is responsible for turning successive full values into the
// incremental suffix it actually broadcasts (see pipeline.go); Processor
// implementations stay stateless and idempotent per spec.md §4.6.
func (p *textFieldProcessor) Process(_ string, jsonSoFar string, _ *ProcessedOutput) (ProcessedOutput, error) {
	value, _ := extractStreamingStringField(jsonSoFar, p.field)
	return ProcessedOutput{
		Kind: OutputText,
		Text: &TextOutput{Title: p.title, MessageChunk: value},
	}, nil
}

// NewCreatePlanProcessor detects a "plan_markdown" field and streams it as a
// titled Text output.
func NewCreatePlanProcessor() Processor {
	return &textFieldProcessor{processorType: "CreatePlan", field: "plan_markdown", title: "Creating a plan..."}
}

// NewSearchDataCatalogProcessor detects a "search_requirements" field.
func NewSearchDataCatalogProcessor() Processor {
	return &textFieldProcessor{processorType: "SearchDataCatalog", field: "search_requirements", title: "Searching your data catalog..."}
}

// assetFileProcessor implements the Metric/Dashboard shape: stream the
// YAML-shaped content field as a File output, surfacing FileID once the
// asset id field has appeared in the buffer.
type assetFileProcessor struct {
	processorType string
	contentField  string
	idField       string
	assetType     string
}

func (p *assetFileProcessor) ProcessorType() string { return p.processorType }

func (p *assetFileProcessor) CanProcess(jsonSoFar string) bool {
	return HasKey(jsonSoFar, p.contentField)
}

func (p *assetFileProcessor) Process(_ string, jsonSoFar string, _ *ProcessedOutput) (ProcessedOutput, error) {
	content, _ := extractStreamingStringField(jsonSoFar, p.contentField)
	fileID, _ := extractStreamingStringField(jsonSoFar, p.idField)
	return ProcessedOutput{
		Kind: OutputFile,
		File: &FileOutput{FileID: fileID, AssetType: p.assetType, TextChunk: content},
	}, nil
}

// NewMetricProcessor detects a "metric_yaml" field.
func NewMetricProcessor() Processor {
	return &assetFileProcessor{processorType: "Metric", contentField: "metric_yaml", idField: "asset_id", assetType: "MetricFile"}
}

// NewDashboardProcessor detects a "dashboard_yaml" field.
func NewDashboardProcessor() Processor {
	return &assetFileProcessor{processorType: "Dashboard", contentField: "dashboard_yaml", idField: "asset_id", assetType: "DashboardFile"}
}

// passThroughProcessor is the fallback for any tool with no dedicated
// Processor: emits a loading Pill until the turn completes.
type passThroughProcessor struct{}

func (passThroughProcessor) ProcessorType() string { return "PassThrough" }

func (passThroughProcessor) CanProcess(string) bool { return true }

func (passThroughProcessor) Process(_ string, _ string, previous *ProcessedOutput) (ProcessedOutput, error) {
	if previous != nil && previous.Pill != nil {
		return *previous, nil
	}
	return ProcessedOutput{Kind: OutputPill, Pill: &PillOutput{Status: PillStatusLoading}}, nil
}
