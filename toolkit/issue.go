package toolkit

// FieldIssue represents a single validation issue for a tool payload.
// Constraint follows a small fixed vocabulary: missing_field,
// invalid_enum_value, invalid_format, invalid_pattern, invalid_range,
// invalid_length, invalid_field_type.
type FieldIssue struct {
	Field      string
	Constraint string
	// Allowed, MinLen, MaxLen, Pattern, and Format are optional extras for
	// richer UIs and retry hints; not every constraint populates all of them.
	Allowed []string
	MinLen  *int
	MaxLen  *int
	Pattern string
	Format  string
}
