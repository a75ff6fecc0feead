package expr

import "strings"

// lex splits an expression into tokens. Unknown characters are a hard
// syntax error: the evaluator never guesses at malformed input.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(src) {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c >= '0' && c <= '9':
			start := i
			hasDot := false
			for i < len(src) && (isDigit(src[i]) || (src[i] == '.' && !hasDot && i+1 < len(src) && isDigit(src[i+1]))) {
				if src[i] == '.' {
					hasDot = true
				}
				i++
			}
			tokens = append(tokens, token{typ: tokenNumber, val: src[start:i], pos: start})

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{typ: tokenIdent, val: src[start:i], pos: start})

		case c == '"' || c == '\'':
			val, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{typ: tokenString, val: val, pos: i})
			i = next

		case c == '(':
			tokens = append(tokens, token{typ: tokenLParen, val: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{typ: tokenRParen, val: ")", pos: i})
			i++
		case c == '[':
			tokens = append(tokens, token{typ: tokenLBracket, val: "[", pos: i})
			i++
		case c == ']':
			tokens = append(tokens, token{typ: tokenRBracket, val: "]", pos: i})
			i++
		case c == '.':
			tokens = append(tokens, token{typ: tokenDot, val: ".", pos: i})
			i++
		case c == ',':
			tokens = append(tokens, token{typ: tokenComma, val: ",", pos: i})
			i++
		case c == '?':
			tokens = append(tokens, token{typ: tokenQuestion, val: "?", pos: i})
			i++
		case c == ':':
			tokens = append(tokens, token{typ: tokenColon, val: ":", pos: i})
			i++

		default:
			op, width := lexOperator(src, i)
			if width == 0 {
				return nil, syntaxErr(i, "unexpected character %q", string(c))
			}
			tokens = append(tokens, token{typ: tokenOperator, val: op, pos: i})
			i += width
		}
	}

	tokens = append(tokens, token{typ: tokenEOF, pos: len(src)})
	return tokens, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1

	for i < len(src) {
		c := src[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c == '\\' && i+1 < len(src) {
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"', '\'':
				b.WriteByte(src[i])
			default:
				return "", 0, syntaxErr(i, "invalid escape sequence \\%c", src[i])
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, syntaxErr(start, "unterminated string")
}

// lexOperator reads one operator, longest form first.
func lexOperator(src string, i int) (string, int) {
	if i+1 < len(src) {
		switch src[i : i+2] {
		case "==", "!=", ">=", "<=", "&&", "||":
			return src[i : i+2], 2
		}
	}
	switch src[i] {
	case '+', '-', '*', '/', '%', '<', '>', '!':
		return string(src[i]), 1
	}
	return "", 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
