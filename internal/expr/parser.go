package expr

import "strconv"

// parser is a recursive-descent parser over the token stream. Nesting
// depth is tracked explicitly so hostile input fails with ErrDepth
// instead of exhausting the goroutine stack.
type parser struct {
	tokens   []token
	pos      int
	depth    int
	maxDepth int
}

// Parse turns expression source into an AST. The returned tree is
// immutable and safe to cache and share.
func Parse(src string, maxDepth int) (Node, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, maxDepth: maxDepth}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, syntaxErr(tok.pos, "unexpected %s after expression", tok)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ tokenType, what string) (token, error) {
	tok := p.peek()
	if tok.typ != typ {
		return tok, syntaxErr(tok.pos, "expected %s, found %s", what, tok)
	}
	return p.next(), nil
}

func (p *parser) enter() error {
	p.depth++
	if p.maxDepth > 0 && p.depth > p.maxDepth {
		return ErrDepth
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// parseExpr parses a full expression: the ternary level and below.
func (p *parser) parseExpr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().typ != tokenQuestion {
		return cond, nil
	}
	p.next()

	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenColon, "':' in ternary"); err != nil {
		return nil, err
	}
	// Right-associative: the else branch is itself a full ternary.
	alt, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, alt: alt}, nil
}

func (p *parser) parseOr() (Node, error) {
	return p.parseBinary([]string{"||"}, p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseBinary([]string{"&&"}, p.parseEquality)
}

func (p *parser) parseEquality() (Node, error) {
	return p.parseBinary([]string{"==", "!="}, p.parseRelational)
}

func (p *parser) parseRelational() (Node, error) {
	return p.parseBinary([]string{"<", "<=", ">", ">="}, p.parseAdditive)
}

func (p *parser) parseAdditive() (Node, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() (Node, error) {
	return p.parseBinary([]string{"*", "/", "%"}, p.parseUnary)
}

func (p *parser) parseBinary(ops []string, next func() (Node, error)) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokenOperator || !contains(ops, tok.val) {
			return left, nil
		}
		p.next()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.val, left: left, right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.typ == tokenOperator && (tok.val == "!" || tok.val == "-") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tok.val, x: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by any chain of member
// accesses and index lookups.
func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().typ {
		case tokenDot:
			p.next()
			name, err := p.expect(tokenIdent, "property name")
			if err != nil {
				return nil, err
			}
			x = &memberNode{x: x, name: name.val}

		case tokenLBracket:
			p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokenRBracket, "']'"); err != nil {
				return nil, err
			}
			x = &indexNode{x: x, index: idx}

		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()

	switch tok.typ {
	case tokenNumber:
		v, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, syntaxErr(tok.pos, "invalid number %q", tok.val)
		}
		return &literalNode{value: v}, nil

	case tokenString:
		return &literalNode{value: tok.val}, nil

	case tokenIdent:
		switch tok.val {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null", "undefined":
			return &literalNode{value: nil}, nil
		}
		// Identifier followed by '(' is a registry function call.
		if p.peek().typ == tokenLParen {
			return p.parseCall(tok.val)
		}
		return &identNode{name: tok.val}, nil

	case tokenLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return x, nil

	default:
		return nil, syntaxErr(tok.pos, "unexpected %s", tok)
	}
}

func (p *parser) parseCall(name string) (Node, error) {
	p.next() // consume '('
	var args []Node

	if p.peek().typ == tokenRParen {
		p.next()
		return &callNode{name: name}, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		tok := p.next()
		switch tok.typ {
		case tokenComma:
			continue
		case tokenRParen:
			return &callNode{name: name, args: args}, nil
		default:
			return nil, syntaxErr(tok.pos, "expected ',' or ')' in call, found %s", tok)
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
