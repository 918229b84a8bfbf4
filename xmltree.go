package xmlmap

import (
	"encoding/xml"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Context carries the namespace prefix map and construction-time variable
// bindings for one operation.
type Context struct {
	Namespaces map[string]string
	Variables  map[string]string
}

func (ctx *Context) namespaceURI(prefix string) string {
	if ctx == nil || prefix == "" {
		return ""
	}
	return ctx.Namespaces[prefix]
}

func (ctx *Context) variable(prefix, name string) (string, bool) {
	if ctx == nil || ctx.Variables == nil {
		return "", false
	}
	if prefix != "" {
		if v, ok := ctx.Variables[prefix+":"+name]; ok {
			return v, true
		}
	}
	v, ok := ctx.Variables[name]
	return v, ok
}

func compileExpr(text string, ctx *Context) (*xpath.Expr, error) {
	if ctx != nil && len(ctx.Namespaces) > 0 {
		return xpath.CompileWithNS(text, ctx.Namespaces)
	}
	return xpath.Compile(text)
}

// evalXPath runs a compiled expression against node and returns either a
// scalar (string, float64, bool) or a node list.
func evalXPath(expr *xpath.Expr, node *xmlquery.Node) any {
	result := expr.Evaluate(xmlquery.CreateXPathNavigator(node))
	iter, ok := result.(*xpath.NodeIterator)
	if !ok {
		return result
	}
	var nodes []*xmlquery.Node
	for iter.MoveNext() {
		nodes = append(nodes, iteratorNode(iter))
	}
	return nodes
}

func findAll(expr *xpath.Expr, node *xmlquery.Node) []*xmlquery.Node {
	nodes, _ := evalXPath(expr, node).([]*xmlquery.Node)
	return nodes
}

// findFirst returns the first match: a *xmlquery.Node for node-set results,
// the scalar itself otherwise, nil when nothing matched.
func findFirst(expr *xpath.Expr, node *xmlquery.Node) any {
	switch result := evalXPath(expr, node).(type) {
	case []*xmlquery.Node:
		if len(result) == 0 {
			return nil
		}
		return result[0]
	default:
		return result
	}
}

// evalExprBool evaluates with the XPath boolean() conversion rules.
func evalExprBool(expr *xpath.Expr, node *xmlquery.Node) bool {
	switch result := evalXPath(expr, node).(type) {
	case bool:
		return result
	case float64:
		return result != 0
	case string:
		return result != ""
	case []*xmlquery.Node:
		return len(result) > 0
	}
	return false
}

// iteratorNode materializes the iterator's current position. Attribute
// positions have no backing node in the tree, so one is synthesized with
// the owning element as parent, matching what xmlquery's own query API
// returns.
func iteratorNode(iter *xpath.NodeIterator) *xmlquery.Node {
	nav := iter.Current().(*xmlquery.NodeNavigator)
	if nav.NodeType() == xpath.AttributeNode {
		// nav.Prefix() on an attribute position is the owning element's
		// prefix, not the attribute's. The synthesized node is only ever
		// read for its value and parent; attribute writes and removals
		// resolve the name from the step's own name test instead.
		text := &xmlquery.Node{Type: xmlquery.TextNode, Data: nav.Value()}
		attr := &xmlquery.Node{
			Type:       xmlquery.AttributeNode,
			Data:       nav.LocalName(),
			Prefix:     nav.Prefix(),
			FirstChild: text,
			LastChild:  text,
			Parent:     nav.Current(),
		}
		text.Parent = attr
		return attr
	}
	return nav.Current()
}

func firstElementChild(n *xmlquery.Node) *xmlquery.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

func hasElementChildren(n *xmlquery.Node) bool {
	return firstElementChild(n) != nil
}

// elementIndex returns child's position among parent's element children,
// the index space lxml-style positional insertion works in.
func elementIndex(parent, child *xmlquery.Node) int {
	i := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c == child {
			return i
		}
		if c.Type == xmlquery.ElementNode {
			i++
		}
	}
	return -1
}

func nthElementChild(parent *xmlquery.Node, index int) *xmlquery.Node {
	i := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if i == index {
			return c
		}
		i++
	}
	return nil
}

// insertChildAt links n before parent's index-th element child, appending
// when index is out of range or negative.
func insertChildAt(parent, n *xmlquery.Node, index int) {
	var ref *xmlquery.Node
	if index >= 0 {
		ref = nthElementChild(parent, index)
	}
	if ref == nil {
		xmlquery.AddChild(parent, n)
		return
	}
	n.Parent = parent
	n.NextSibling = ref
	n.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = n
	} else {
		parent.FirstChild = n
	}
	ref.PrevSibling = n
}

func cloneTree(n *xmlquery.Node) *xmlquery.Node {
	c := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
		Attr:         append([]xmlquery.Attr(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		xmlquery.AddChild(c, cloneTree(child))
	}
	return c
}

func replaceChild(parent, old, repl *xmlquery.Node) {
	repl.Parent = parent
	repl.PrevSibling = old.PrevSibling
	repl.NextSibling = old.NextSibling
	if old.PrevSibling != nil {
		old.PrevSibling.NextSibling = repl
	} else {
		parent.FirstChild = repl
	}
	if old.NextSibling != nil {
		old.NextSibling.PrevSibling = repl
	} else {
		parent.LastChild = repl
	}
	old.Parent = nil
	old.PrevSibling = nil
	old.NextSibling = nil
}

// setElementText replaces el's text content with a single text node. The
// caller guarantees el has no element children.
func setElementText(el *xmlquery.Node, text string) {
	for child := el.FirstChild; child != nil; {
		next := child.NextSibling
		xmlquery.RemoveFromTree(child)
		child = next
	}
	xmlquery.AddChild(el, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
}

// clearText drops el's text children, leaving element children in place.
func clearText(el *xmlquery.Node) {
	for child := el.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == xmlquery.TextNode || child.Type == xmlquery.CharDataNode {
			xmlquery.RemoveFromTree(child)
		}
		child = next
	}
}

// graftNode replaces dst's content and attributes with src's, moving src's
// children into dst.
func graftNode(dst, src *xmlquery.Node) {
	for child := dst.FirstChild; child != nil; {
		next := child.NextSibling
		xmlquery.RemoveFromTree(child)
		child = next
	}
	dst.Attr = append([]xmlquery.Attr(nil), src.Attr...)
	for child := src.FirstChild; child != nil; {
		next := child.NextSibling
		xmlquery.RemoveFromTree(child)
		xmlquery.AddChild(dst, child)
		child = next
	}
}

func setAttribute(el *xmlquery.Node, prefix, local, uri, value string) {
	for i := range el.Attr {
		if el.Attr[i].Name.Local == local && el.Attr[i].Name.Space == prefix {
			el.Attr[i].Value = value
			return
		}
	}
	el.Attr = append(el.Attr, xmlquery.Attr{
		Name:         xml.Name{Space: prefix, Local: local},
		Value:        value,
		NamespaceURI: uri,
	})
}

func removeAttribute(el *xmlquery.Node, prefix, local string) bool {
	for i := range el.Attr {
		if el.Attr[i].Name.Local == local && el.Attr[i].Name.Space == prefix {
			el.Attr = append(el.Attr[:i], el.Attr[i+1:]...)
			return true
		}
	}
	return false
}
