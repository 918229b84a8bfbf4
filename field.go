package xmlmap

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/hashicorp/go-hclog"
)

var logger hclog.Logger = hclog.Default().Named("xmlmap")

// SetLogger replaces the package logger.
func SetLogger(l hclog.Logger) {
	logger = l
}

// fieldCounter orders fields by declaration, mirroring their source order
// in the declaring code.
var fieldCounter atomic.Int64

// Field binds an XPath expression to a value mapping. Fields are declared
// once, attached to model types, and shared freely afterwards; all mutable
// state lives in the tree.
type Field struct {
	XPath    string
	Mapper   Mapper
	Required bool
	Label    string
	Help     string

	ast     Expr
	manager manager
	order   int
}

func newField(xpathText string, m Mapper, mgr manager) (*Field, error) {
	ast, err := Parse(xpathText)
	if err != nil {
		return nil, err
	}
	// the read path has no variable bindings: a $ref anywhere in a field
	// expression could never be evaluated, so it is rejected now rather
	// than on first access
	if containsVarRef(ast) {
		return nil, &SyntaxError{Token: xpathText, Msg: "variable references are not supported in field expressions:"}
	}
	// the host evaluator gets its own say at declaration time too
	if _, err := xpath.Compile(xpathText); err != nil {
		return nil, &SyntaxError{Token: xpathText, Msg: "host evaluator rejected expression:"}
	}
	return &Field{
		XPath:   xpathText,
		Mapper:  m,
		ast:     ast,
		manager: mgr,
		order:   int(fieldCounter.Add(1)),
	}, nil
}

func containsVarRef(x Expr) bool {
	switch e := x.(type) {
	case VarRef:
		return true
	case UnaryExpr:
		return containsVarRef(e.Right)
	case BinaryExpr:
		return containsVarRef(e.Left) || containsVarRef(e.Right)
	case PredicatedExpr:
		if containsVarRef(e.Base) {
			return true
		}
		return anyVarRef(e.Predicates)
	case AbsolutePath:
		return e.Relative != nil && containsVarRef(e.Relative)
	case Step:
		return anyVarRef(e.Predicates)
	case FuncCall:
		return anyVarRef(e.Args)
	}
	return false
}

func anyVarRef(exprs []Expr) bool {
	for _, x := range exprs {
		if containsVarRef(x) {
			return true
		}
	}
	return false
}

func NewStringField(xpathText string) (*Field, error) {
	return newField(xpathText, StringMapper{}, singleManager{})
}

// NewNormalizedStringField collapses whitespace runs on read.
func NewNormalizedStringField(xpathText string) (*Field, error) {
	return newField(xpathText, StringMapper{Normalize: true}, singleManager{})
}

func NewStringListField(xpathText string) (*Field, error) {
	return newField(xpathText, StringMapper{}, listManager{})
}

func NewIntegerField(xpathText string) (*Field, error) {
	return newField(xpathText, IntegerMapper{}, singleManager{})
}

func NewIntegerListField(xpathText string) (*Field, error) {
	return newField(xpathText, IntegerMapper{}, listManager{})
}

// NewBooleanField maps presence of trueToken/falseToken. An empty
// falseToken means the field has no false representation: absence reads as
// false and setting false deletes the node.
func NewBooleanField(xpathText, trueToken, falseToken string) (*Field, error) {
	m := BooleanMapper{True: trueToken, False: falseToken, HasFalse: falseToken != ""}
	return newField(xpathText, m, singleManager{})
}

func NewDateTimeField(xpathText, layout string) (*Field, error) {
	return newField(xpathText, DateTimeMapper{Layout: layout}, singleManager{})
}

func NewDateTimeListField(xpathText, layout string) (*Field, error) {
	return newField(xpathText, DateTimeMapper{Layout: layout}, listManager{})
}

// NewNodeField maps the matched element as a nested XMLObject of typ.
func NewNodeField(xpathText string, typ *ModelType) (*Field, error) {
	return newField(xpathText, &NodeMapper{Type: typ}, singleManager{})
}

// NewNodeFieldRef defers the nested type to DefineType time: "self" names
// the declaring type, anything else is resolved through the registry.
func NewNodeFieldRef(xpathText, typeName string) (*Field, error) {
	return newField(xpathText, &NodeMapper{TypeRef: typeName}, singleManager{})
}

func NewNodeListField(xpathText string, typ *ModelType) (*Field, error) {
	return newField(xpathText, &NodeMapper{Type: typ}, listManager{})
}

func NewNodeListFieldRef(xpathText, typeName string) (*Field, error) {
	return newField(xpathText, &NodeMapper{TypeRef: typeName}, listManager{})
}

// NewItemField passes the raw evaluator result through, for arbitrary
// expressions like substring(bar/baz, 1, 1).
func NewItemField(xpathText string) (*Field, error) {
	return newField(xpathText, RawMapper{}, singleManager{})
}

// InstantiateOnGet makes a single-valued field synthesize its node on
// first read instead of returning nil. Retained for older callers; prefer
// Create.
func (f *Field) InstantiateOnGet() *Field {
	if _, ok := f.manager.(singleManager); ok {
		f.manager = singleManager{instantiateOnGet: true}
	}
	return f
}

func (f *Field) isList() bool {
	_, ok := f.manager.(listManager)
	return ok
}

// binding is a field compiled against one model type's namespace map.
type binding struct {
	field *Field
	expr  *xpath.Expr
}

type manager interface {
	get(b binding, node *xmlquery.Node, ctx *Context) (any, error)
	set(b binding, node *xmlquery.Node, ctx *Context, value any) error
	delete(b binding, node *xmlquery.Node, ctx *Context) error
}

type singleManager struct {
	instantiateOnGet bool
}

func (mgr singleManager) get(b binding, node *xmlquery.Node, ctx *Context) (any, error) {
	match := findFirst(b.expr, node)
	if match == nil && mgr.instantiateOnGet {
		if !Constructible(b.field.ast) {
			return nil, &ConstructionError{XPath: b.field.XPath}
		}
		created, err := createNode(b.field.ast, node, ctx, -1)
		if err != nil {
			return nil, err
		}
		match = created
	}
	return b.field.Mapper.ToValue(match)
}

func (mgr singleManager) set(b binding, node *xmlquery.Node, ctx *Context, value any) error {
	xval, err := b.field.Mapper.ToXML(value)
	if err != nil {
		return err
	}
	match, _ := findFirst(b.expr, node).(*xmlquery.Node)
	if xval == nil {
		if match == nil {
			return nil
		}
		removed, err := removeXML(b.field.ast, node, ctx, false)
		if err != nil {
			return err
		}
		if !removed {
			logger.Warn("could not remove matched node for absent value", "xpath", b.field.XPath)
		}
		return nil
	}
	if match == nil {
		if !Constructible(b.field.ast) {
			return &ConstructionError{XPath: b.field.XPath}
		}
		match, err = createNode(b.field.ast, node, ctx, -1)
		if err != nil {
			return err
		}
	}
	step, ok := terminalStep(b.field.ast)
	if !ok {
		return &ConstructionError{XPath: b.field.XPath}
	}
	return setInXML(match, xval, ctx, step)
}

func (mgr singleManager) delete(b binding, node *xmlquery.Node, ctx *Context) error {
	if findFirst(b.expr, node) == nil {
		return nil
	}
	_, err := removeXML(b.field.ast, node, ctx, false)
	return err
}

// create synthesizes the field's node when it does not exist yet.
func (mgr singleManager) create(b binding, node *xmlquery.Node, ctx *Context) error {
	if findFirst(b.expr, node) != nil {
		return nil
	}
	if !Constructible(b.field.ast) {
		return &ConstructionError{XPath: b.field.XPath}
	}
	_, err := createNode(b.field.ast, node, ctx, -1)
	return err
}

type listManager struct{}

func (mgr listManager) get(b binding, node *xmlquery.Node, ctx *Context) (any, error) {
	return &NodeList{bound: b, node: node, ctx: ctx}, nil
}

func (mgr listManager) set(b binding, node *xmlquery.Node, ctx *Context, value any) error {
	values, err := toValueSlice(value)
	if err != nil {
		return err
	}
	list := &NodeList{bound: b, node: node, ctx: ctx}
	return list.SetAll(values)
}

func (mgr listManager) delete(b binding, node *xmlquery.Node, ctx *Context) error {
	list := &NodeList{bound: b, node: node, ctx: ctx}
	for n := list.Len(); n > 0; n = list.Len() {
		if err := list.Delete(n - 1); err != nil {
			return err
		}
	}
	return nil
}

func toValueSlice(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []time.Time:
		out := make([]any, len(v))
		for i, t := range v {
			out[i] = t
		}
		return out, nil
	case []*XMLObject:
		out := make([]any, len(v))
		for i, o := range v {
			out[i] = o
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot assign %T", ErrNotAList, value)
}

// NodeList is a live view over a list field's matches. Nothing is cached:
// every access re-queries the tree, so the view never goes stale across
// other mutations.
type NodeList struct {
	bound binding
	node  *xmlquery.Node
	ctx   *Context
}

func (l *NodeList) matches() []*xmlquery.Node {
	return findAll(l.bound.expr, l.node)
}

func (l *NodeList) Len() int {
	return len(l.matches())
}

func (l *NodeList) Values() ([]any, error) {
	matches := l.matches()
	values := make([]any, len(matches))
	for i, match := range matches {
		v, err := l.bound.field.Mapper.ToValue(match)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (l *NodeList) Get(i int) (any, error) {
	matches := l.matches()
	if i < 0 || i >= len(matches) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return l.bound.field.Mapper.ToValue(matches[i])
}

// Set overwrites the i-th match; i == Len() appends a new node placed
// directly after the last match in the tree.
func (l *NodeList) Set(i int, value any) error {
	xval, err := l.bound.field.Mapper.ToXML(value)
	if err != nil {
		return err
	}
	if xval == nil {
		return fmt.Errorf("%w: nil value in list assignment", ErrValueNotFound)
	}
	matches := l.matches()
	var match *xmlquery.Node
	switch {
	case i >= 0 && i < len(matches):
		match = matches[i]
	case i == len(matches):
		insertIndex := -1
		if len(matches) > 0 {
			last := matches[len(matches)-1]
			if last.Parent != nil && last.Type == xmlquery.ElementNode {
				insertIndex = elementIndex(last.Parent, last) + 1
			}
		}
		match, err = l.createMatch(insertIndex)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if node, ok := xval.(*xmlquery.Node); ok && match.Type == xmlquery.ElementNode {
		if _, isNode := l.bound.field.Mapper.(*NodeMapper); isNode {
			replaceChild(match.Parent, match, node)
			return nil
		}
	}
	step, ok := terminalStep(l.bound.field.ast)
	if !ok {
		return &ConstructionError{XPath: l.bound.field.XPath}
	}
	return setInXML(match, xval, l.ctx, step)
}

func (l *NodeList) createMatch(insertIndex int) (*xmlquery.Node, error) {
	if !Constructible(l.bound.field.ast) {
		return nil, &ConstructionError{XPath: l.bound.field.XPath}
	}
	return createNode(l.bound.field.ast, l.node, l.ctx, insertIndex)
}

func (l *NodeList) Delete(i int) error {
	matches := l.matches()
	if i < 0 || i >= len(matches) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return l.deleteMatch(matches[i])
}

func (l *NodeList) deleteMatch(match *xmlquery.Node) error {
	switch match.Type {
	case xmlquery.AttributeNode:
		step, ok := terminalStep(l.bound.field.ast)
		if !ok {
			return &ConstructionError{XPath: l.bound.field.XPath}
		}
		test, ok := step.Test.(NameTest)
		if !ok {
			return &ConstructionError{XPath: l.bound.field.XPath}
		}
		removeAttribute(match.Parent, test.Prefix, test.Name)
	case xmlquery.TextNode, xmlquery.CharDataNode:
		xmlquery.RemoveFromTree(match)
	default:
		xmlquery.RemoveFromTree(match)
	}
	return nil
}

// Insert synthesizes a new node at position i, pushing later matches down.
func (l *NodeList) Insert(i int, value any) error {
	matches := l.matches()
	if i == len(matches) {
		return l.Set(i, value)
	}
	if i < 0 || i > len(matches) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	ref := matches[i]
	insertIndex := -1
	if ref.Parent != nil && ref.Type == xmlquery.ElementNode {
		insertIndex = elementIndex(ref.Parent, ref)
	}
	if _, err := l.createMatch(insertIndex); err != nil {
		return err
	}
	return l.Set(i, value)
}

func (l *NodeList) Append(value any) error {
	return l.Set(l.Len(), value)
}

func (l *NodeList) Extend(values []any) error {
	for _, v := range values {
		if err := l.Append(v); err != nil {
			return err
		}
	}
	return nil
}

// Pop removes and returns the i-th value; -1 pops the last.
func (l *NodeList) Pop(i int) (any, error) {
	if i == -1 {
		i = l.Len() - 1
	}
	value, err := l.Get(i)
	if err != nil {
		return nil, err
	}
	return value, l.Delete(i)
}

func (l *NodeList) Remove(value any) error {
	i, err := l.IndexOf(value)
	if err != nil {
		return err
	}
	return l.Delete(i)
}

func (l *NodeList) IndexOf(value any) (int, error) {
	values, err := l.Values()
	if err != nil {
		return -1, err
	}
	for i, v := range values {
		if valueEqual(v, value) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %v", ErrValueNotFound, value)
}

func (l *NodeList) Count(value any) (int, error) {
	values, err := l.Values()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range values {
		if valueEqual(v, value) {
			n++
		}
	}
	return n, nil
}

func (l *NodeList) Contains(value any) (bool, error) {
	_, err := l.IndexOf(value)
	if err != nil {
		if errors.Is(err, ErrValueNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetAll overwrites positionally, then appends or truncates to match.
// Existing nodes are reused in place; order is never changed.
func (l *NodeList) SetAll(values []any) error {
	for i, v := range values {
		if err := l.Set(i, v); err != nil {
			return err
		}
	}
	for l.Len() > len(values) {
		if _, err := l.Pop(-1); err != nil {
			return err
		}
	}
	return nil
}

func valueEqual(a, b any) bool {
	if ao, ok := a.(*XMLObject); ok {
		bo, ok := b.(*XMLObject)
		return ok && ao.Equal(bo)
	}
	return reflect.DeepEqual(a, b)
}
