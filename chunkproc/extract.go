package chunkproc

import "strings"

// extractStreamingStringField returns the best-effort value of a JSON string
// field named key within jsonSoFar, an incomplete (still-growing) JSON
// document. It tolerates the field's closing quote not having arrived yet
// -- in that case it returns everything received so far as the value --
// which is what lets CanProcess/Process work against a buffer that is not
// yet valid JSON.
func extractStreamingStringField(jsonSoFar, key string) (value string, found bool) {
	needle := `"` + key + `"`
	idx := strings.Index(jsonSoFar, needle)
	if idx < 0 {
		return "", false
	}
	rest := jsonSoFar[idx+len(needle):]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", true
	}
	rest = rest[colon+1:]
	rest = strings.TrimLeft(rest, " \t\n\r")

	if len(rest) == 0 || rest[0] != '"' {
		return "", true
	}
	rest = rest[1:]

	var sb strings.Builder
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if escaped {
			sb.WriteByte(unescapeByte(c))
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			return sb.String(), true
		}
		sb.WriteByte(c)
	}
	// Closing quote has not arrived yet; return what we have so far.
	return sb.String(), true
}

func unescapeByte(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

// HasKey reports whether jsonSoFar contains a field named key, used by
// CanProcess implementations that only need to detect the key's presence,
// not its value.
func HasKey(jsonSoFar, key string) bool {
	return strings.Contains(jsonSoFar, `"`+key+`"`)
}
