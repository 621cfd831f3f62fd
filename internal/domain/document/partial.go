package document

import (
	"strings"
	"unicode"
)

// completePartialJSON closes the open strings, arrays and objects of a
// truncated JSON document so it can be decoded mid-stream. The result is not
// guaranteed to be valid; callers skip values that fail to decode.
func completePartialJSON(partial string) string {
	var (
		closers  []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(partial); i++ {
		c := partial[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if len(closers) > 0 {
				closers = closers[:len(closers)-1]
			}
		}
	}

	var b strings.Builder
	out := partial
	if escaped {
		out = out[:len(out)-1]
	}
	b.WriteString(out)
	if inString {
		b.WriteByte('"')
	} else {
		trimmed := strings.TrimRightFunc(b.String(), unicode.IsSpace)
		switch {
		case strings.HasSuffix(trimmed, ","):
			trimmed = trimmed[:len(trimmed)-1]
		case strings.HasSuffix(trimmed, ":"):
			trimmed += "null"
		}
		b.Reset()
		b.WriteString(trimmed)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		b.WriteByte(closers[i])
	}
	return b.String()
}
