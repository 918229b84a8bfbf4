package xmlmap

import (
	"unicode"
)

type TokenKind string

const (
	TokEOF      TokenKind = "EOF"
	TokPathSep  TokenKind = "PATHSEP"
	TokDot      TokenKind = "DOT"
	TokAxisSep  TokenKind = "AXISSEP"
	TokAt       TokenKind = "AT"
	TokPunct    TokenKind = "PUNCT"
	TokUnion    TokenKind = "UNION"
	TokOp       TokenKind = "OP"
	TokStar     TokenKind = "STAR"
	TokLiteral  TokenKind = "LITERAL"
	TokInteger  TokenKind = "INTEGER"
	TokFloat    TokenKind = "FLOAT"
	TokName     TokenKind = "NAME"
	TokFuncName TokenKind = "FUNCNAME"
	TokNodeType TokenKind = "NODETYPE"
	TokAxisName TokenKind = "AXISNAME"
	TokColon    TokenKind = "COLON"
	TokDollar   TokenKind = "DOLLAR"
)

type Token struct {
	Kind TokenKind
	Val  string
	Pos  int
}

var nodeTypes = map[string]bool{
	"comment":                true,
	"text":                   true,
	"processing-instruction": true,
	"node":                   true,
}

// Lexer tokenizes an XPath expression. Raw tokens are reclassified per
// XPath 1.0 section 3.7: what a name or a star means depends on the token
// before it, and sometimes on the raw token after it.
type Lexer struct {
	text  string
	pos   int
	queue []Token
	last  *Token
}

func NewLexer(text string) *Lexer {
	return &Lexer{text: text}
}

func (l *Lexer) Peek() Token {
	return l.PeekN(0)
}

// PeekN looks i classified tokens ahead without consuming them.
func (l *Lexer) PeekN(i int) Token {
	for len(l.queue) <= i {
		l.queue = append(l.queue, l.lex())
	}
	return l.queue[i]
}

func (l *Lexer) Next() Token {
	tok := l.PeekN(0)
	l.queue = l.queue[1:]
	return tok
}

func (l *Lexer) Expect(kind TokenKind, val string) Token {
	tok := l.Next()
	if tok.Kind != kind || (val != "" && tok.Val != val) {
		want := string(kind)
		if val != "" {
			want = val
		}
		panic(&SyntaxError{Token: tok.Val, Pos: tok.Pos, Msg: "expected " + want + ", found"})
	}
	return tok
}

func (l *Lexer) lex() Token {
	tok := l.classify(l.rawToken())
	l.last = &tok
	return tok
}

// classify applies the context-sensitive rules. After a token that ends an
// operand, * is a multiply and or/and/div/mod are operators. Elsewhere a
// name followed by ( is a function name (or a node type), and a name
// followed by :: is an axis name.
func (l *Lexer) classify(tok Token) Token {
	operandBefore := l.last != nil && !forcesNameContext(*l.last)
	switch tok.Kind {
	case TokStar:
		if operandBefore {
			tok.Kind = TokOp
		}
	case TokName:
		if operandBefore {
			if keywordOps[tok.Val] {
				tok.Kind = TokOp
			}
			break
		}
		switch next := l.peekRaw(); {
		case next.Kind == TokPunct && next.Val == "(":
			if nodeTypes[tok.Val] {
				tok.Kind = TokNodeType
			} else {
				tok.Kind = TokFuncName
			}
		case next.Kind == TokAxisSep:
			tok.Kind = TokAxisName
		}
	}
	return tok
}

// forcesNameContext reports whether names and stars directly after tok keep
// their nominal meaning. Operators and opening delimiters force this; a
// completed operand does not.
func forcesNameContext(tok Token) bool {
	switch tok.Kind {
	case TokAt, TokAxisSep, TokPathSep, TokUnion, TokColon, TokOp:
		return true
	case TokPunct:
		return tok.Val == "(" || tok.Val == "["
	}
	return false
}

func (l *Lexer) peekRaw() Token {
	save := l.pos
	tok := l.rawToken()
	l.pos = save
	return tok
}

func (l *Lexer) rawToken() Token {
	for l.pos < len(l.text) && isSpace(l.text[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.text) {
		return Token{Kind: TokEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.text[l.pos]

	switch ch {
	case '/':
		if l.startsWith("//") {
			l.pos += 2
			return Token{Kind: TokPathSep, Val: "//", Pos: start}
		}
		l.pos++
		return Token{Kind: TokPathSep, Val: "/", Pos: start}
	case ':':
		if l.startsWith("::") {
			l.pos += 2
			return Token{Kind: TokAxisSep, Val: "::", Pos: start}
		}
		l.pos++
		return Token{Kind: TokColon, Val: ":", Pos: start}
	case '.':
		if l.pos+1 < len(l.text) && isDigit(l.text[l.pos+1]) {
			return l.lexNumber()
		}
		if l.startsWith("..") {
			l.pos += 2
			return Token{Kind: TokDot, Val: "..", Pos: start}
		}
		l.pos++
		return Token{Kind: TokDot, Val: ".", Pos: start}
	case '@':
		l.pos++
		return Token{Kind: TokAt, Val: "@", Pos: start}
	case '$':
		l.pos++
		return Token{Kind: TokDollar, Val: "$", Pos: start}
	case '|':
		l.pos++
		return Token{Kind: TokUnion, Val: "|", Pos: start}
	case '(', ')', '[', ']', ',':
		l.pos++
		return Token{Kind: TokPunct, Val: string(ch), Pos: start}
	case '*':
		l.pos++
		return Token{Kind: TokStar, Val: "*", Pos: start}
	case '=', '+', '-':
		l.pos++
		return Token{Kind: TokOp, Val: string(ch), Pos: start}
	case '!':
		if l.startsWith("!=") {
			l.pos += 2
			return Token{Kind: TokOp, Val: "!=", Pos: start}
		}
	case '<', '>':
		l.pos++
		if l.pos < len(l.text) && l.text[l.pos] == '=' {
			l.pos++
		}
		return Token{Kind: TokOp, Val: l.text[start:l.pos], Pos: start}
	case '\'', '"':
		return l.lexLiteral(ch)
	}

	if isDigit(ch) {
		return l.lexNumber()
	}
	if isNameStart(rune(ch)) {
		return l.lexName()
	}
	panic(&SyntaxError{Token: string(ch), Pos: l.pos, Msg: "unexpected character"})
}

// XPath 1.0 literals run to the matching quote; there are no escapes.
func (l *Lexer) lexLiteral(quote byte) Token {
	start := l.pos
	l.pos++
	for l.pos < len(l.text) {
		if l.text[l.pos] == quote {
			val := l.text[start+1 : l.pos]
			l.pos++
			return Token{Kind: TokLiteral, Val: val, Pos: start}
		}
		l.pos++
	}
	panic(&SyntaxError{Token: l.text[start:], Pos: start, Msg: "unterminated literal"})
}

func (l *Lexer) lexNumber() Token {
	start := l.pos
	kind := TokInteger
	for l.pos < len(l.text) && isDigit(l.text[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.text) && l.text[l.pos] == '.' {
		kind = TokFloat
		l.pos++
		for l.pos < len(l.text) && isDigit(l.text[l.pos]) {
			l.pos++
		}
	}
	return Token{Kind: kind, Val: l.text[start:l.pos], Pos: start}
}

func (l *Lexer) lexName() Token {
	start := l.pos
	for l.pos < len(l.text) {
		r := rune(l.text[l.pos])
		if !isNameStart(r) && !isDigit(l.text[l.pos]) && r != '-' && r != '.' {
			break
		}
		l.pos++
	}
	return Token{Kind: TokName, Val: l.text[start:l.pos], Pos: start}
}

func (l *Lexer) startsWith(s string) bool {
	return l.pos+len(s) <= len(l.text) && l.text[l.pos:l.pos+len(s)] == s
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
