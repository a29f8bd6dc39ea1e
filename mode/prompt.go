package mode

import (
	"bytes"
	"fmt"
	"text/template"
)

// PromptData is the closed set of placeholders prompt templates may
// reference. Rendering is pure string substitution -- templates must not
// use template actions beyond simple {{.Field}} substitution (no
// conditionals, ranges, or pipelines), matching spec.md §4.4's "no embedded
// logic" requirement; RenderPrompt does not itself forbid other actions
// (text/template has no such restriction mode), so mode authors are
// responsible for keeping templates to substitution only.
type PromptData struct {
	// TodaysDate is rendered as {{.TodaysDate}}, formatted by the caller
	// (agentrt.Agent) at render time so mode stays free of wall-clock reads.
	TodaysDate string
	// Cwd is rendered as {{.Cwd}}, the working-directory-style context slot
	// CliAssist mode uses.
	Cwd string
	// OrganizationName is rendered as {{.OrganizationName}}.
	OrganizationName string
}

// RenderPrompt substitutes data's fields into tmpl and returns the result.
// Every mode's PromptTemplate is parsed fresh on each transition (§4.4):
// templates are short and this keeps the mode package free of a cache that
// would need invalidating if a caller ever hot-swaps a Config.
func RenderPrompt(tmpl string, data PromptData) (string, error) {
	t, err := template.New("mode-prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("mode: parse prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mode: render prompt template: %w", err)
	}
	return buf.String(), nil
}
