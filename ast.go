package xmlmap

import (
	"strconv"
	"strings"
)

// Expr is any node of a parsed XPath expression.
type Expr interface{}

type UnaryExpr struct {
	Op    string
	Right Expr
}

type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

// PredicatedExpr is a filter expression with one or more predicates,
// e.g. (book or article)[1].
type PredicatedExpr struct {
	Base       Expr
	Predicates []Expr
}

// AbsolutePath anchors a relative path at the document root. Op is "/" or
// "//"; Relative is nil for the bare root path "/".
type AbsolutePath struct {
	Op       string
	Relative Expr
}

// Step is a single location step. Axis is "" for the child axis, "@" for
// the abbreviated attribute axis, or a full axis name.
type Step struct {
	Axis       string
	Test       Expr
	Predicates []Expr
}

type NameTest struct {
	Prefix string
	Name   string
}

type NodeTypeTest struct {
	Name       string
	Literal    string
	HasLiteral bool
}

// AbbrevStep is "." or "..".
type AbbrevStep struct {
	Abbr string
}

type VarRef struct {
	Prefix string
	Name   string
}

type FuncCall struct {
	Prefix string
	Name   string
	Args   []Expr
}

type Literal struct {
	Value string
}

type Number struct {
	Value   float64
	Integer bool
}

var keywordOps = map[string]bool{
	"or":  true,
	"and": true,
	"div": true,
	"mod": true,
}

// Serialize renders an expression back to XPath text. Parsing the result
// yields a structurally identical expression.
func Serialize(x Expr) string {
	var sb strings.Builder
	writeExpr(&sb, x)
	return sb.String()
}

func writeExpr(sb *strings.Builder, x Expr) {
	switch e := x.(type) {
	case UnaryExpr:
		sb.WriteString(e.Op)
		writeExpr(sb, e.Right)
	case BinaryExpr:
		writeExpr(sb, e.Left)
		if keywordOps[e.Op] {
			sb.WriteByte(' ')
			sb.WriteString(e.Op)
			sb.WriteByte(' ')
		} else {
			sb.WriteString(e.Op)
		}
		writeExpr(sb, e.Right)
	case PredicatedExpr:
		sb.WriteByte('(')
		writeExpr(sb, e.Base)
		sb.WriteByte(')')
		writePredicates(sb, e.Predicates)
	case AbsolutePath:
		sb.WriteString(e.Op)
		if e.Relative != nil {
			writeExpr(sb, e.Relative)
		}
	case Step:
		if e.Axis == "@" {
			sb.WriteByte('@')
		} else if e.Axis != "" {
			sb.WriteString(e.Axis)
			sb.WriteString("::")
		}
		writeExpr(sb, e.Test)
		writePredicates(sb, e.Predicates)
	case NameTest:
		if e.Prefix != "" {
			sb.WriteString(e.Prefix)
			sb.WriteByte(':')
		}
		sb.WriteString(e.Name)
	case NodeTypeTest:
		sb.WriteString(e.Name)
		sb.WriteByte('(')
		if e.HasLiteral {
			writeLiteral(sb, e.Literal)
		}
		sb.WriteByte(')')
	case AbbrevStep:
		sb.WriteString(e.Abbr)
	case VarRef:
		sb.WriteByte('$')
		if e.Prefix != "" {
			sb.WriteString(e.Prefix)
			sb.WriteByte(':')
		}
		sb.WriteString(e.Name)
	case FuncCall:
		if e.Prefix != "" {
			sb.WriteString(e.Prefix)
			sb.WriteByte(':')
		}
		sb.WriteString(e.Name)
		sb.WriteByte('(')
		for i, arg := range e.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeExpr(sb, arg)
		}
		sb.WriteByte(')')
	case Literal:
		writeLiteral(sb, e.Value)
	case Number:
		if e.Integer {
			sb.WriteString(strconv.FormatInt(int64(e.Value), 10))
		} else {
			sb.WriteString(strconv.FormatFloat(e.Value, 'f', -1, 64))
		}
	}
}

func writePredicates(sb *strings.Builder, preds []Expr) {
	for _, pred := range preds {
		sb.WriteByte('[')
		writeExpr(sb, pred)
		sb.WriteByte(']')
	}
}

// XPath 1.0 literals have no escapes, so a value containing a double quote
// must be single-quoted.
func writeLiteral(sb *strings.Builder, val string) {
	quote := byte('"')
	if strings.Contains(val, `"`) {
		quote = '\''
	}
	sb.WriteByte(quote)
	sb.WriteString(val)
	sb.WriteByte(quote)
}
