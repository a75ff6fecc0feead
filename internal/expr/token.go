package expr

import "fmt"

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenOperator // + - * / % == != < <= > >= && || !
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenDot
	tokenComma
	tokenQuestion
	tokenColon
)

type token struct {
	typ tokenType
	val string
	pos int
}

func (t token) String() string {
	if t.typ == tokenEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.val)
}
