package xmlmap

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField      = errors.New("xmlmap: unknown field")
	ErrUnknownType       = errors.New("xmlmap: unknown type")
	ErrTypeAlreadyExists = errors.New("xmlmap: type already registered")
	ErrIndexOutOfRange   = errors.New("xmlmap: list index out of range")
	ErrValueNotFound     = errors.New("xmlmap: value not in list")
	ErrNotAList          = errors.New("xmlmap: field is not list-valued")
)

// SyntaxError reports a lexing or parsing failure in an XPath expression.
// It is returned eagerly, at field declaration time, never during data
// operations on an already-declared field.
type SyntaxError struct {
	Token string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("xmlmap: syntax error at %d: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("xmlmap: syntax error at %d: %s %q", e.Pos, e.Msg, e.Token)
}

// ConstructionError reports a set or create on an expression that is not
// safely constructible. The tree is left untouched.
type ConstructionError struct {
	XPath string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("xmlmap: missing node for %q, and node creation is supported only for simple child and attribute nodes with simple predicates", e.XPath)
}

// MappingError reports matched content that is inconsistent with a field's
// declared value vocabulary.
type MappingError struct {
	Value string
	Msg   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("xmlmap: %s: %q", e.Msg, e.Value)
}
