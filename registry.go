package xmlmap

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// TypeDef declares a model type: a named bundle of field declarations with
// root-element metadata. Fields inherit from Base; a field declared here
// under a name the base also declares shadows the base's declaration.
type TypeDef struct {
	Name       string
	Base       *ModelType
	RootName   string
	RootNS     string
	Namespaces map[string]string
	SchemaID   string
	Registry   *Registry
	Fields     map[string]*Field
}

// ModelType is a defined, immutable type: fields merged and compiled
// against the type's namespace map, nested-type references resolved.
type ModelType struct {
	Name       string
	RootName   string
	RootNS     string
	Namespaces map[string]string
	SchemaID   string

	base     *ModelType
	fields   map[string]*Field
	compiled map[string]*xpath.Expr
	order    []string
}

// DefineType builds a ModelType from a definition. Field expressions are
// compiled here with the type's namespace map, so a bad expression or an
// unbound prefix surfaces now rather than on first access. NodeMapper
// references by name resolve against the definition's registry, with
// "self" (or the type's own name) resolving to the type being defined;
// this is what makes self-referential types possible. When a registry is
// given the new type is registered in it.
func DefineType(def TypeDef) (*ModelType, error) {
	t := &ModelType{
		Name:       def.Name,
		RootName:   def.RootName,
		RootNS:     def.RootNS,
		Namespaces: def.Namespaces,
		SchemaID:   def.SchemaID,
		base:       def.Base,
		fields:     map[string]*Field{},
		compiled:   map[string]*xpath.Expr{},
	}
	if def.Base != nil {
		if t.RootName == "" {
			t.RootName = def.Base.RootName
		}
		if t.RootNS == "" {
			t.RootNS = def.Base.RootNS
		}
		if t.Namespaces == nil {
			t.Namespaces = def.Base.Namespaces
		}
		if t.SchemaID == "" {
			t.SchemaID = def.Base.SchemaID
		}
		for name, f := range def.Base.fields {
			t.fields[name] = f
		}
	}
	for name, f := range def.Fields {
		t.fields[name] = f
	}

	for name, f := range t.fields {
		if nm, ok := f.Mapper.(*NodeMapper); ok && nm.Type == nil {
			switch {
			case nm.TypeRef == "self" || nm.TypeRef == def.Name:
				nm.Type = t
			case def.Registry != nil:
				nested, ok := def.Registry.Lookup(nm.TypeRef)
				if !ok {
					return nil, fmt.Errorf("%w: %s (field %s)", ErrUnknownType, nm.TypeRef, name)
				}
				nm.Type = nested
			default:
				return nil, fmt.Errorf("%w: %s (field %s)", ErrUnknownType, nm.TypeRef, name)
			}
		}
		expr, err := compileFieldExpr(f.XPath, t.Namespaces)
		if err != nil {
			return nil, err
		}
		t.compiled[name] = expr
	}

	t.order = make([]string, 0, len(t.fields))
	for name := range t.fields {
		t.order = append(t.order, name)
	}
	sort.Slice(t.order, func(i, j int) bool {
		return t.fields[t.order[i]].order < t.fields[t.order[j]].order
	})

	if def.Registry != nil && def.Name != "" {
		if err := def.Registry.Register(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func compileFieldExpr(text string, ns map[string]string) (*xpath.Expr, error) {
	var expr *xpath.Expr
	var err error
	if len(ns) > 0 {
		expr, err = xpath.CompileWithNS(text, ns)
	} else {
		expr, err = xpath.Compile(text)
	}
	if err != nil {
		return nil, &SyntaxError{Token: text, Msg: "host evaluator rejected expression:"}
	}
	return expr, nil
}

// Field returns the (possibly inherited) field declaration.
func (t *ModelType) Field(name string) (*Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// FieldNames lists all fields, inherited included, in declaration order.
func (t *ModelType) FieldNames() []string {
	return append([]string(nil), t.order...)
}

// New builds an instance around a fresh root element carrying the type's
// namespace declarations.
func (t *ModelType) New() *XMLObject {
	root := &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		Data:         t.RootName,
		NamespaceURI: t.RootNS,
	}
	for prefix, uri := range t.Namespaces {
		if uri == t.RootNS {
			root.Prefix = prefix
		}
	}
	for prefix, uri := range t.Namespaces {
		if prefix == "" {
			setAttribute(root, "", "xmlns", "", uri)
			continue
		}
		setAttribute(root, "xmlns", prefix, "", uri)
	}
	if t.RootNS != "" && root.Prefix == "" {
		setAttribute(root, "", "xmlns", "", t.RootNS)
	}
	return t.Wrap(root)
}

// Wrap adopts an existing element as an instance of this type.
func (t *ModelType) Wrap(node *xmlquery.Node) *XMLObject {
	return &XMLObject{
		Type: t,
		Node: node,
		ctx:  &Context{Namespaces: t.Namespaces},
	}
}

// Load parses a document and wraps its root element.
func (t *ModelType) Load(r io.Reader) (*XMLObject, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, err
	}
	root := firstElementChild(doc)
	if root == nil {
		return nil, fmt.Errorf("xmlmap: document has no root element")
	}
	return t.Wrap(root), nil
}

func (t *ModelType) LoadString(s string) (*XMLObject, error) {
	return t.Load(strings.NewReader(s))
}

// Registry maps type names to defined model types so that node fields can
// reference types that are defined later.
type Registry struct {
	types map[string]*ModelType
}

func NewRegistry() *Registry {
	return &Registry{types: map[string]*ModelType{}}
}

// Register adds a type. Returns ErrTypeAlreadyExists when the name is
// taken.
func (r *Registry) Register(t *ModelType) error {
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTypeAlreadyExists, t.Name)
	}
	r.types[t.Name] = t
	return nil
}

func (r *Registry) Lookup(name string) (*ModelType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// XMLObject is a typed view over a subtree. It holds no field state;
// every access goes to the tree.
type XMLObject struct {
	Type *ModelType
	Node *xmlquery.Node

	ctx *Context
}

// WithVariables supplies construction-time variable bindings for
// subsequent operations on this instance.
func (o *XMLObject) WithVariables(vars map[string]string) *XMLObject {
	o.ctx = &Context{Namespaces: o.ctx.Namespaces, Variables: vars}
	return o
}

func (o *XMLObject) binding(name string) (binding, error) {
	f, ok := o.Type.fields[name]
	if !ok {
		return binding{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return binding{field: f, expr: o.Type.compiled[name]}, nil
}

// Get returns the field's mapped value: nil for an absent single value, a
// *NodeList for list fields.
func (o *XMLObject) Get(name string) (any, error) {
	b, err := o.binding(name)
	if err != nil {
		return nil, err
	}
	return b.field.manager.get(b, o.Node, o.ctx)
}

// Set stores a value, synthesizing missing tree structure for
// constructible expressions. A nil value removes the node.
func (o *XMLObject) Set(name string, value any) error {
	b, err := o.binding(name)
	if err != nil {
		return err
	}
	return b.field.manager.set(b, o.Node, o.ctx, value)
}

// Delete removes the field's node; deleting an absent field is a no-op.
func (o *XMLObject) Delete(name string) error {
	b, err := o.binding(name)
	if err != nil {
		return err
	}
	return b.field.manager.delete(b, o.Node, o.ctx)
}

// List returns the live list view of a list field.
func (o *XMLObject) List(name string) (*NodeList, error) {
	b, err := o.binding(name)
	if err != nil {
		return nil, err
	}
	if !b.field.isList() {
		return nil, fmt.Errorf("%w: %s", ErrNotAList, name)
	}
	return &NodeList{bound: b, node: o.Node, ctx: o.ctx}, nil
}

// Create synthesizes a single-valued field's node if it does not exist,
// without assigning a value. Useful for node fields before populating the
// nested object.
func (o *XMLObject) Create(name string) error {
	b, err := o.binding(name)
	if err != nil {
		return err
	}
	single, ok := b.field.manager.(singleManager)
	if !ok {
		return fmt.Errorf("%w: cannot create on list field %s", ErrNotAList, name)
	}
	return single.create(b, o.Node, o.ctx)
}

// Serialize renders the instance's subtree.
func (o *XMLObject) Serialize() string {
	return o.Node.OutputXML(true)
}

// SerializeDocument renders from the document root when the instance sits
// inside a larger parsed document.
func (o *XMLObject) SerializeDocument() string {
	root := o.Node
	for root.Parent != nil {
		root = root.Parent
	}
	if root.Type == xmlquery.DocumentNode {
		return root.OutputXML(false)
	}
	return root.OutputXML(true)
}

// String is the instance's text content with whitespace collapsed.
func (o *XMLObject) String() string {
	return normalizeSpace(o.Node.InnerText())
}

// IsEmpty reports whether the node has no attributes, no element children
// and no text content.
func (o *XMLObject) IsEmpty() bool {
	return len(o.Node.Attr) == 0 && !hasElementChildren(o.Node) && o.Node.InnerText() == ""
}

// Equal is a convenience comparison: identical nodes are equal, otherwise
// serialized text is compared. Semantically insignificant differences
// (attribute order, whitespace) can defeat it.
func (o *XMLObject) Equal(other *XMLObject) bool {
	if other == nil {
		return false
	}
	if o.Node == other.Node {
		return true
	}
	return o.Serialize() == other.Serialize()
}

// Validate runs a caller-supplied schema validator against the instance's
// document using the type's schema identifier.
func (o *XMLObject) Validate(v Validator) (bool, []error) {
	return v.Validate(o.Node, o.Type.SchemaID)
}
