// Package interpolate expands {{ ... }} placeholders in parameter and
// attribute strings. Expansion never fails the surrounding operation:
// placeholders that cannot be evaluated render as the empty string.
package interpolate

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/conductor-html/conductor/internal/expr"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// HasPlaceholder reports whether s contains at least one complete
// {{ ... }} placeholder.
func HasPlaceholder(s string) bool {
	start := strings.Index(s, openMarker)
	if start < 0 {
		return false
	}
	return findClose(s, start+len(openMarker)) >= 0
}

// Placeholders returns the trimmed expression source of every
// placeholder in s, in order.
func Placeholders(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		start := strings.Index(s[i:], openMarker)
		if start < 0 {
			break
		}
		start += i
		end := findClose(s, start+len(openMarker))
		if end < 0 {
			break
		}
		out = append(out, strings.TrimSpace(s[start+len(openMarker):end]))
		i = end + len(closeMarker)
	}
	return out
}

// Interpolate replaces each placeholder in s with the stringified
// result of evaluating its expression against ctx. Unterminated
// placeholders pass through verbatim; failed evaluations become the
// empty string.
func Interpolate(s string, ev *expr.Evaluator, ctx map[string]any) string {
	if !strings.Contains(s, openMarker) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		start := strings.Index(s[i:], openMarker)
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])

		end := findClose(s, start+len(openMarker))
		if end < 0 {
			log.Debug().Str("text", truncate(s[start:], 60)).Msg("unterminated interpolation placeholder")
			b.WriteString(s[start:])
			break
		}

		src := strings.TrimSpace(s[start+len(openMarker) : end])
		if src != "" {
			v, err := ev.Evaluate(src, ctx)
			if err != nil {
				log.Warn().Err(err).Str("expression", truncate(src, 60)).Msg("interpolation expression rejected")
			} else {
				b.WriteString(expr.Stringify(v))
			}
		}
		i = end + len(closeMarker)
	}
	return b.String()
}

// findClose locates the }} terminating a placeholder opened before
// from, skipping markers inside quoted string literals so values like
// {{ "}}" }} survive.
func findClose(s string, from int) int {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				return i
			}
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
