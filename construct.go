package xmlmap

import (
	"strconv"

	"github.com/antchfx/xmlquery"
)

// Constructible reports whether a missing node for x could be synthesized.
// Only downward child/attribute steps with name tests qualify, plus text()
// as a terminal step; predicates must themselves be constructible. An
// equality predicate qualifies when its left side is constructible and its
// right side is a string, an integer or a variable reference.
func Constructible(x Expr) bool {
	switch e := x.(type) {
	case Step:
		switch e.Axis {
		case "", "@", "child", "attribute":
		default:
			return false
		}
		switch test := e.Test.(type) {
		case NameTest:
			if test.Name == "*" {
				return false
			}
		case NodeTypeTest:
			if test.Name != "text" {
				return false
			}
		default:
			return false
		}
		for _, pred := range e.Predicates {
			if !constructiblePredicate(pred) {
				return false
			}
		}
		return true
	case BinaryExpr:
		if e.Op != "/" {
			return false
		}
		return Constructible(e.Left) && Constructible(e.Right)
	}
	return false
}

func constructiblePredicate(pred Expr) bool {
	switch e := pred.(type) {
	case Step, BinaryExpr:
		if be, ok := e.(BinaryExpr); ok && be.Op == "=" {
			return Constructible(be.Left) && constructibleValue(be.Right)
		}
		return Constructible(e)
	case Number:
		// positional predicates place no structural demand
		return e.Integer
	case Literal, VarRef:
		return true
	}
	return false
}

func constructibleValue(x Expr) bool {
	switch e := x.(type) {
	case Literal, VarRef:
		return true
	case Number:
		return e.Integer
	}
	return false
}

// createNode synthesizes the tree content demanded by x under node and
// returns the node a value assignment should target. insertIndex places a
// terminal step among its parent's element children; -1 appends.
// Constructible(x) must hold.
func createNode(x Expr, node *xmlquery.Node, ctx *Context, insertIndex int) (*xmlquery.Node, error) {
	switch e := x.(type) {
	case Step:
		return createStep(e, node, ctx, insertIndex)
	case BinaryExpr:
		if e.Op != "/" {
			return nil, &ConstructionError{XPath: Serialize(x)}
		}
		leftExpr, err := compileExpr(Serialize(e.Left), ctx)
		if err != nil {
			return nil, err
		}
		left, _ := findFirst(leftExpr, node).(*xmlquery.Node)
		if left == nil {
			left, err = createNode(e.Left, node, ctx, -1)
			if err != nil {
				return nil, err
			}
		}
		return createNode(e.Right, left, ctx, -1)
	}
	return nil, &ConstructionError{XPath: Serialize(x)}
}

func createStep(step Step, node *xmlquery.Node, ctx *Context, insertIndex int) (*xmlquery.Node, error) {
	var created *xmlquery.Node
	switch test := step.Test.(type) {
	case NameTest:
		if step.Axis == "@" || step.Axis == "attribute" {
			uri := ctx.namespaceURI(test.Prefix)
			setAttribute(node, test.Prefix, test.Name, uri, "")
			created = syntheticAttr(node, test.Prefix, test.Name, "")
		} else {
			logger.Debug("creating element", "name", Serialize(test))
			el := &xmlquery.Node{
				Type:         xmlquery.ElementNode,
				Data:         test.Name,
				Prefix:       test.Prefix,
				NamespaceURI: ctx.namespaceURI(test.Prefix),
			}
			insertChildAt(node, el, insertIndex)
			created = el
		}
	case NodeTypeTest:
		// text(): the assignment targets the context element itself
		created = node
	default:
		return nil, &ConstructionError{XPath: Serialize(step)}
	}
	for _, pred := range step.Predicates {
		if _, err := constructPredicate(pred, created, ctx); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// constructPredicate builds the content an equality or step predicate
// demands, returning the innermost node it created.
func constructPredicate(pred Expr, node *xmlquery.Node, ctx *Context) (*xmlquery.Node, error) {
	switch e := pred.(type) {
	case Step:
		return createNode(e, node, ctx, -1)
	case BinaryExpr:
		switch e.Op {
		case "/":
			left, err := constructPredicate(e.Left, node, ctx)
			if err != nil {
				return nil, err
			}
			return constructPredicate(e.Right, left, ctx)
		case "=":
			leaf, err := constructPredicate(e.Left, node, ctx)
			if err != nil {
				return nil, err
			}
			val, err := predicateValue(e.Right, ctx)
			if err != nil {
				return nil, err
			}
			step, ok := terminalStep(e.Left)
			if !ok {
				return nil, &ConstructionError{XPath: Serialize(e.Left)}
			}
			if err := setInXML(leaf, val, ctx, step); err != nil {
				return nil, err
			}
			return leaf, nil
		}
	}
	// positional and value-only predicates construct nothing
	return nil, nil
}

func predicateValue(x Expr, ctx *Context) (string, error) {
	switch e := x.(type) {
	case Literal:
		return e.Value, nil
	case Number:
		return strconv.FormatInt(int64(e.Value), 10), nil
	case VarRef:
		if v, ok := ctx.variable(e.Prefix, e.Name); ok {
			return v, nil
		}
		return "", &ConstructionError{XPath: Serialize(x)}
	}
	return "", &ConstructionError{XPath: Serialize(x)}
}

// terminalStep returns the rightmost step of a downward path.
func terminalStep(x Expr) (Step, bool) {
	switch e := x.(type) {
	case Step:
		return e, true
	case BinaryExpr:
		if e.Op == "/" || e.Op == "//" {
			return terminalStep(e.Right)
		}
	case AbsolutePath:
		if e.Relative != nil {
			return terminalStep(e.Relative)
		}
	}
	return Step{}, false
}

func isTextStep(step Step) bool {
	test, ok := step.Test.(NodeTypeTest)
	return ok && test.Name == "text"
}

func syntheticAttr(el *xmlquery.Node, prefix, local, value string) *xmlquery.Node {
	text := &xmlquery.Node{Type: xmlquery.TextNode, Data: value}
	attr := &xmlquery.Node{
		Type:       xmlquery.AttributeNode,
		Data:       local,
		Prefix:     prefix,
		FirstChild: text,
		LastChild:  text,
		Parent:     el,
	}
	text.Parent = attr
	return attr
}

// setInXML writes a mapped value into a matched or synthesized node. For
// elements, a *xmlquery.Node value is grafted wholesale; a string value
// replaces text content and is rejected when element children are present.
func setInXML(match *xmlquery.Node, value any, ctx *Context, step Step) error {
	switch match.Type {
	case xmlquery.AttributeNode:
		test, ok := step.Test.(NameTest)
		if !ok {
			return &ConstructionError{XPath: Serialize(step)}
		}
		setAttribute(match.Parent, test.Prefix, test.Name, ctx.namespaceURI(test.Prefix), toXMLString(value))
		if match.FirstChild != nil {
			match.FirstChild.Data = toXMLString(value)
		}
		return nil
	case xmlquery.TextNode, xmlquery.CharDataNode:
		match.Data = toXMLString(value)
		return nil
	default:
		if node, ok := value.(*xmlquery.Node); ok {
			graftNode(match, node)
			return nil
		}
		if hasElementChildren(match) {
			return &MappingError{Value: toXMLString(value), Msg: "cannot set string value on a node with element children"}
		}
		setElementText(match, toXMLString(value))
		return nil
	}
}

func toXMLString(value any) string {
	s, _ := value.(string)
	return s
}
