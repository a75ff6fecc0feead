package expr

import (
	"errors"
	"fmt"
)

// Hard failures. These are returned to the caller instead of being
// softened to a nil result, because they indicate malformed or hostile
// input rather than an ordinary runtime miss.
var (
	// ErrSyntax reports input the grammar cannot accept.
	ErrSyntax = errors.New("expression syntax error")
	// ErrTooLong reports input exceeding the configured length ceiling.
	ErrTooLong = errors.New("expression too long")
	// ErrDepth reports nesting beyond the configured recursion ceiling.
	// Evaluation stack exhaustion is reported under this error as well.
	ErrDepth = errors.New("expression recursion depth exceeded")
)

// SyntaxError carries the offending position alongside ErrSyntax.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expression syntax error at offset %d: %s", e.Pos, e.Msg)
}

// Unwrap lets errors.Is match SyntaxError against ErrSyntax.
func (e *SyntaxError) Unwrap() error { return ErrSyntax }

func syntaxErr(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
