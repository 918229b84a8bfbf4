package xmlmap

import (
	"strconv"
)

// Parse parses a restricted XPath 1.0 expression. The failure is always a
// *SyntaxError carrying the offending text and position.
func Parse(text string) (x Expr, err error) {
	p := &Parser{text: text, lexer: NewLexer(text)}
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			x = nil
			err = se
		}
	}()
	x = p.parseExpr()
	if tok := p.lexer.Peek(); tok.Kind != TokEOF {
		panic(&SyntaxError{Token: tok.Val, Pos: tok.Pos, Msg: "unexpected token"})
	}
	return x, nil
}

// MustParse is Parse for expressions known to be valid, typically literals
// in variable declarations.
func MustParse(text string) Expr {
	x, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return x
}

type Parser struct {
	text  string
	lexer *Lexer
}

func (p *Parser) parseExpr() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	expr := p.parseAnd()
	for p.peekOp("or") {
		p.lexer.Next()
		expr = BinaryExpr{Left: expr, Op: "or", Right: p.parseAnd()}
	}
	return expr
}

func (p *Parser) parseAnd() Expr {
	expr := p.parseEq()
	for p.peekOp("and") {
		p.lexer.Next()
		expr = BinaryExpr{Left: expr, Op: "and", Right: p.parseEq()}
	}
	return expr
}

func (p *Parser) parseEq() Expr {
	expr := p.parseRel()
	for p.peekOp("=") || p.peekOp("!=") {
		op := p.lexer.Next().Val
		expr = BinaryExpr{Left: expr, Op: op, Right: p.parseRel()}
	}
	return expr
}

func (p *Parser) parseRel() Expr {
	expr := p.parseAdd()
	for p.peekOp("<") || p.peekOp("<=") || p.peekOp(">") || p.peekOp(">=") {
		op := p.lexer.Next().Val
		expr = BinaryExpr{Left: expr, Op: op, Right: p.parseAdd()}
	}
	return expr
}

func (p *Parser) parseAdd() Expr {
	expr := p.parseMul()
	for p.peekOp("+") || p.peekOp("-") {
		op := p.lexer.Next().Val
		expr = BinaryExpr{Left: expr, Op: op, Right: p.parseMul()}
	}
	return expr
}

func (p *Parser) parseMul() Expr {
	expr := p.parseUnary()
	for p.peekOp("*") || p.peekOp("div") || p.peekOp("mod") {
		op := p.lexer.Next().Val
		expr = BinaryExpr{Left: expr, Op: op, Right: p.parseUnary()}
	}
	return expr
}

func (p *Parser) parseUnary() Expr {
	if p.peekOp("-") {
		p.lexer.Next()
		return UnaryExpr{Op: "-", Right: p.parseUnary()}
	}
	return p.parseUnion()
}

func (p *Parser) parseUnion() Expr {
	expr := p.parsePathExpr()
	for p.lexer.Peek().Kind == TokUnion {
		p.lexer.Next()
		expr = BinaryExpr{Left: expr, Op: "|", Right: p.parsePathExpr()}
	}
	return expr
}

func (p *Parser) parsePathExpr() Expr {
	tok := p.lexer.Peek()
	if tok.Kind == TokPathSep {
		op := p.lexer.Next().Val
		if p.startsStep() {
			return AbsolutePath{Op: op, Relative: p.parseRelativePath()}
		}
		if op == "//" {
			tok = p.lexer.Peek()
			panic(&SyntaxError{Token: tok.Val, Pos: tok.Pos, Msg: "expected step after //"})
		}
		return AbsolutePath{Op: op}
	}
	if p.startsFilter() {
		expr := p.parseFilter()
		if p.lexer.Peek().Kind == TokPathSep {
			op := p.lexer.Next().Val
			return BinaryExpr{Left: expr, Op: op, Right: p.parseRelativePath()}
		}
		return expr
	}
	return p.parseRelativePath()
}

// A filter expression starts with a variable, a literal, a number, a
// function call (possibly prefixed) or a parenthesized expression.
func (p *Parser) startsFilter() bool {
	tok := p.lexer.Peek()
	switch tok.Kind {
	case TokDollar, TokLiteral, TokInteger, TokFloat, TokFuncName:
		return true
	case TokPunct:
		return tok.Val == "("
	case TokName:
		return p.lexer.PeekN(1).Kind == TokColon && p.lexer.PeekN(2).Kind == TokFuncName
	}
	return false
}

func (p *Parser) parseFilter() Expr {
	var expr Expr
	tok := p.lexer.Peek()
	switch {
	case tok.Kind == TokDollar:
		p.lexer.Next()
		prefix, name := p.parseQName()
		expr = VarRef{Prefix: prefix, Name: name}
	case tok.Kind == TokLiteral:
		expr = Literal{Value: p.lexer.Next().Val}
	case tok.Kind == TokInteger:
		expr = Number{Value: p.parseNumber(p.lexer.Next()), Integer: true}
	case tok.Kind == TokFloat:
		expr = Number{Value: p.parseNumber(p.lexer.Next())}
	case tok.Kind == TokFuncName:
		expr = p.parseFuncCall("", p.lexer.Next().Val)
	case tok.Kind == TokName:
		prefix := p.lexer.Next().Val
		p.lexer.Expect(TokColon, "")
		expr = p.parseFuncCall(prefix, p.lexer.Expect(TokFuncName, "").Val)
	default:
		p.lexer.Expect(TokPunct, "(")
		expr = p.parseExpr()
		p.lexer.Expect(TokPunct, ")")
	}
	if preds := p.parsePredicates(); len(preds) > 0 {
		return PredicatedExpr{Base: expr, Predicates: preds}
	}
	return expr
}

func (p *Parser) parseFuncCall(prefix, name string) Expr {
	p.lexer.Expect(TokPunct, "(")
	var args []Expr
	if !(p.lexer.Peek().Kind == TokPunct && p.lexer.Peek().Val == ")") {
		args = append(args, p.parseExpr())
		for p.lexer.Peek().Kind == TokPunct && p.lexer.Peek().Val == "," {
			p.lexer.Next()
			args = append(args, p.parseExpr())
		}
	}
	p.lexer.Expect(TokPunct, ")")
	return FuncCall{Prefix: prefix, Name: name, Args: args}
}

func (p *Parser) startsStep() bool {
	switch p.lexer.Peek().Kind {
	case TokDot, TokAt, TokStar, TokName, TokAxisName, TokNodeType:
		return true
	}
	return false
}

// Relative paths left-fold into BinaryExpr nodes, so a/b/c parses as
// (a/b)/c and a lone step stays a bare Step.
func (p *Parser) parseRelativePath() Expr {
	expr := p.parseStep()
	for p.lexer.Peek().Kind == TokPathSep {
		op := p.lexer.Next().Val
		expr = BinaryExpr{Left: expr, Op: op, Right: p.parseStep()}
	}
	return expr
}

func (p *Parser) parseStep() Expr {
	tok := p.lexer.Peek()
	if tok.Kind == TokDot {
		p.lexer.Next()
		return AbbrevStep{Abbr: tok.Val}
	}

	axis := ""
	if tok.Kind == TokAxisName {
		axis = p.lexer.Next().Val
		p.lexer.Expect(TokAxisSep, "")
	} else if tok.Kind == TokAt {
		p.lexer.Next()
		axis = "@"
	}
	test := p.parseNodeTest()
	return Step{Axis: axis, Test: test, Predicates: p.parsePredicates()}
}

func (p *Parser) parseNodeTest() Expr {
	tok := p.lexer.Peek()
	switch tok.Kind {
	case TokStar:
		p.lexer.Next()
		return NameTest{Name: "*"}
	case TokNodeType:
		name := p.lexer.Next().Val
		p.lexer.Expect(TokPunct, "(")
		test := NodeTypeTest{Name: name}
		if p.lexer.Peek().Kind == TokLiteral {
			test.Literal = p.lexer.Next().Val
			test.HasLiteral = true
		}
		p.lexer.Expect(TokPunct, ")")
		return test
	case TokName:
		prefix, name := p.parseQName()
		return NameTest{Prefix: prefix, Name: name}
	}
	panic(&SyntaxError{Token: tok.Val, Pos: tok.Pos, Msg: "expected node test, found"})
}

// parseQName reads a name or prefix:name pair; the local part of a
// prefixed name may also be *.
func (p *Parser) parseQName() (prefix, name string) {
	name = p.lexer.Expect(TokName, "").Val
	if p.lexer.Peek().Kind != TokColon {
		return "", name
	}
	p.lexer.Next()
	prefix = name
	tok := p.lexer.Next()
	if tok.Kind != TokName && tok.Kind != TokStar {
		panic(&SyntaxError{Token: tok.Val, Pos: tok.Pos, Msg: "expected name after prefix, found"})
	}
	return prefix, tok.Val
}

func (p *Parser) parsePredicates() []Expr {
	var preds []Expr
	for p.lexer.Peek().Kind == TokPunct && p.lexer.Peek().Val == "[" {
		p.lexer.Next()
		preds = append(preds, p.parseExpr())
		p.lexer.Expect(TokPunct, "]")
	}
	return preds
}

func (p *Parser) parseNumber(tok Token) float64 {
	f, err := strconv.ParseFloat(tok.Val, 64)
	if err != nil {
		panic(&SyntaxError{Token: tok.Val, Pos: tok.Pos, Msg: "bad number"})
	}
	return f
}

func (p *Parser) peekOp(op string) bool {
	tok := p.lexer.Peek()
	return tok.Kind == TokOp && tok.Val == op
}
