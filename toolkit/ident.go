// Package toolkit implements the tool registry and executor: tools are
// modeled as typed capabilities (Params in, Output out) and erased to JSON
// only at the registry/dispatch boundary, mirroring how executors remain
// strongly typed internally while the runtime only ever sees bytes.
package toolkit

// Ident is the strong type for a fully qualified tool identifier. Use this
// type when referencing tools in maps or APIs to avoid accidental mixing
// with free-form strings.
type Ident string

// String returns the identifier as a plain string.
func (i Ident) String() string { return string(i) }

// Unavailable is the sentinel tool name re-encoded into history when a model
// hallucinates a call to a tool name that is not in the current
// configuration. Provider adapters map any unrecognized tool_use name onto
// this identifier with the original requested name/payload nested in the
// input so the model can observe and recover from the mistake on the next
// turn instead of producing a dangling, uncorrelated tool_use block.
const Unavailable Ident = "tool_unavailable"
