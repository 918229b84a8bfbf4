package xmlmap

import (
	"github.com/antchfx/xmlquery"
)

// removeXML deletes the tree content addressed by x under node and reports
// whether the rightmost segment was removed. With ifEmpty set, a candidate
// element survives unless it is empty once content demanded by its own
// still-matching predicates is discounted.
func removeXML(x Expr, node *xmlquery.Node, ctx *Context, ifEmpty bool) (bool, error) {
	switch e := x.(type) {
	case Step:
		switch test := e.Test.(type) {
		case NameTest:
			if e.Axis == "@" || e.Axis == "attribute" {
				return removeAttribute(node, test.Prefix, test.Name), nil
			}
			return removeChild(e, node, ctx, ifEmpty)
		case NodeTypeTest:
			if test.Name == "text" {
				clearText(node)
				return true, nil
			}
		}
		return false, nil
	case BinaryExpr:
		// only plain child-path joins are removable; a descendant join
		// cannot name which intermediate nodes it matched through
		if e.Op != "/" {
			return false, nil
		}
		leftExpr, err := compileExpr(Serialize(e.Left), ctx)
		if err != nil {
			return false, err
		}
		left, _ := findFirst(leftExpr, node).(*xmlquery.Node)
		if left == nil || left.Type != xmlquery.ElementNode {
			return false, nil
		}
		removed, err := removeXML(e.Right, left, ctx, ifEmpty)
		if err != nil || !removed {
			return removed, err
		}
		// an ancestor the engine would have synthesized is cleaned up on
		// the way out, but only once it holds nothing else
		if Constructible(e.Left) {
			if _, err := removeXML(e.Left, node, ctx, true); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return false, nil
}

func removeChild(step Step, node *xmlquery.Node, ctx *Context, ifEmpty bool) (bool, error) {
	expr, err := compileExpr(Serialize(step), ctx)
	if err != nil {
		return false, err
	}
	child, _ := findFirst(expr, node).(*xmlquery.Node)
	if child == nil || child.Type != xmlquery.ElementNode {
		return false, nil
	}
	if ifEmpty {
		empty, err := emptyExceptPredicates(step, child, ctx)
		if err != nil || !empty {
			return false, err
		}
	}
	xmlquery.RemoveFromTree(child)
	return true, nil
}

// emptyExceptPredicates checks whether node holds nothing beyond what the
// step's own predicates demanded: the node is cloned, predicate-demanded
// content is stripped from the clone, and the clone must end up with no
// element children and no attributes.
func emptyExceptPredicates(step Step, node *xmlquery.Node, ctx *Context) (bool, error) {
	clone := cloneTree(node)
	for _, pred := range step.Predicates {
		if !constructiblePredicate(pred) {
			continue
		}
		// only predicates that still hold can account for content
		predExpr, err := compileExpr("("+Serialize(pred)+")", ctx)
		if err != nil {
			return false, err
		}
		if !evalExprBool(predExpr, node) {
			continue
		}
		if err := stripPredicate(pred, clone, ctx); err != nil {
			return false, err
		}
	}
	return !hasElementChildren(clone) && len(clone.Attr) == 0, nil
}

func stripPredicate(pred Expr, node *xmlquery.Node, ctx *Context) error {
	switch e := pred.(type) {
	case Step:
		_, err := removeXML(e, node, ctx, true)
		return err
	case BinaryExpr:
		switch e.Op {
		case "=":
			return stripPredicate(e.Left, node, ctx)
		case "/":
			_, err := removeXML(e, node, ctx, true)
			return err
		}
	}
	return nil
}
