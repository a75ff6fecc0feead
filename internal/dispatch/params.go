package dispatch

import "strings"

// ParamSep separates a command name from its parameters and
// parameters from each other.
const ParamSep = ':'

// CommandSep separates independent command strings in multi-command
// attributes.
const CommandSep = ','

// SplitParams splits a parameter string on colons. Colons inside a
// {{ ... }} placeholder or escaped as \: do not split. Empty
// parameters are preserved; an empty string yields none.
func SplitParams(s string) []string {
	return splitTopLevel(s, ParamSep)
}

// SplitCommands splits a multi-command attribute value on top-level
// commas, trimming whitespace and dropping empty entries. Commas
// inside {{ ... }} or escaped as \, do not split.
func SplitCommands(s string) []string {
	var out []string
	for _, p := range splitTopLevel(s, CommandSep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTopLevel splits s on sep wherever the separator appears outside
// {{ }} placeholder braces. A backslash escapes the next character;
// escaped separators are unescaped in the output, any other escape is
// preserved verbatim.
func splitTopLevel(s string, sep byte) []string {
	if s == "" {
		return nil
	}

	var parts []string
	var cur strings.Builder
	depth := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next != sep {
				cur.WriteByte(c)
			}
			cur.WriteByte(next)
			i++
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			depth++
			cur.WriteString("{{")
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}' && depth > 0:
			depth--
			cur.WriteString("}}")
			i++
		case c == sep && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())

	return parts
}
