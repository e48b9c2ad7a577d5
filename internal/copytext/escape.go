package copytext

import "strings"

// Escape protects s for a COPY text field delimited by delim:
// backslash, newline, carriage return and the delimiter are backslash-escaped.
// All other bytes pass through unchanged, including invalid UTF-8.
func Escape(s string, delim rune) string {
	if !needsEscape(s, delim) {
		return s
	}
	return string(AppendEscaped(make([]byte, 0, len(s)+8), s, delim))
}

// AppendEscaped appends the escaped form of s to dst.
// s is scanned byte by byte so its bytes are copied verbatim.
func AppendEscaped(dst []byte, s string, delim rune) []byte {
	d := string(delim)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c == d[0] && strings.HasPrefix(s[i:], d):
			dst = append(dst, '\\')
			dst = append(dst, d...)
			i += len(d) - 1
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

func needsEscape(s string, delim rune) bool {
	return strings.ContainsAny(s, "\\\n\r") || strings.ContainsRune(s, delim)
}
