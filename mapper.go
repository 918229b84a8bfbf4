package xmlmap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// Mapper converts between matched XML content and field values. ToValue
// receives a match from the evaluator: a *xmlquery.Node, a scalar
// (string, float64, bool) or nil when nothing matched. ToXML produces the
// content to store: a string, a *xmlquery.Node to graft, or nil meaning
// "absent" (an absent value deletes the node on set).
type Mapper interface {
	ToValue(match any) (any, error)
	ToXML(value any) (any, error)
}

func matchText(match any) string {
	switch m := match.(type) {
	case *xmlquery.Node:
		return m.InnerText()
	case string:
		return m
	case float64:
		return strconv.FormatFloat(m, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(m)
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StringMapper maps text content, optionally collapsing whitespace runs.
type StringMapper struct {
	Normalize bool
}

func (m StringMapper) ToValue(match any) (any, error) {
	if match == nil {
		return nil, nil
	}
	text := matchText(match)
	if m.Normalize {
		text = normalizeSpace(text)
	}
	return text, nil
}

func (m StringMapper) ToXML(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

// IntegerMapper maps whole numbers. Numeric evaluator results truncate;
// node text goes through numeric conversion; content that is not a number
// maps to nil rather than an error.
type IntegerMapper struct{}

func (m IntegerMapper) ToValue(match any) (any, error) {
	switch v := match.(type) {
	case nil:
		return nil, nil
	case float64:
		return int(v), nil
	case *xmlquery.Node:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.InnerText()), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		return int(f), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, nil
		}
		return i, nil
	}
	return nil, nil
}

func (m IntegerMapper) ToXML(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.Itoa(int(v)), nil
	case string:
		return v, nil
	}
	return fmt.Sprint(value), nil
}

// BooleanMapper maps a configured true token and an optional false token.
// With no false token, absence means false and ToXML(false) means delete.
type BooleanMapper struct {
	True      string
	False     string
	HasFalse  bool
	Normalize bool
}

func (m BooleanMapper) ToValue(match any) (any, error) {
	if match == nil && !m.HasFalse {
		return false, nil
	}
	text := matchText(match)
	if m.Normalize {
		text = normalizeSpace(text)
	}
	if m.HasFalse && text == m.False {
		return false, nil
	}
	if text == m.True {
		return true, nil
	}
	return nil, &MappingError{Value: text, Msg: "boolean field value matches neither configured token"}
}

func (m BooleanMapper) ToXML(value any) (any, error) {
	b, ok := value.(bool)
	if !ok {
		if value == nil {
			return nil, nil
		}
		return nil, &MappingError{Value: fmt.Sprint(value), Msg: "boolean field requires a bool value"}
	}
	if b {
		return m.True, nil
	}
	if m.HasFalse {
		return m.False, nil
	}
	return nil, nil
}

// isoLayout is ISO 8601 to seconds precision; parsing tolerates a
// fractional part, and a trailing zone designator is stripped beforehand.
const isoLayout = "2006-01-02T15:04:05"

// DateTimeMapper maps time.Time values. Layout is a Go reference layout;
// empty means ISO 8601.
type DateTimeMapper struct {
	Layout string
}

func (m DateTimeMapper) ToValue(match any) (any, error) {
	if match == nil {
		return nil, nil
	}
	text := strings.TrimSpace(matchText(match))
	text = stripZone(text)
	layout := m.Layout
	if layout == "" {
		layout = isoLayout
	}
	t, err := time.Parse(layout, text)
	if err != nil {
		return nil, &MappingError{Value: text, Msg: "cannot parse datetime"}
	}
	return t, nil
}

func (m DateTimeMapper) ToXML(value any) (any, error) {
	t, ok := value.(time.Time)
	if !ok {
		if value == nil {
			return nil, nil
		}
		return nil, &MappingError{Value: fmt.Sprint(value), Msg: "datetime field requires a time.Time value"}
	}
	if m.Layout != "" {
		return t.Format(m.Layout), nil
	}
	if t.Nanosecond() != 0 {
		return t.Format(isoLayout + ".999999999"), nil
	}
	return t.Format(isoLayout), nil
}

// stripZone removes a trailing Z or a +hh:mm / -hh:mm zone offset.
func stripZone(s string) string {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1]
	}
	if len(s) >= 6 && s[len(s)-3] == ':' {
		sign := s[len(s)-6]
		if sign == '+' || sign == '-' {
			return s[:len(s)-6]
		}
	}
	return s
}

// NodeMapper wraps matched elements in XMLObjects of a nested model type.
// The type may be deferred by name ("self" or a registry name) and is
// resolved when the owning model type is defined.
type NodeMapper struct {
	Type    *ModelType
	TypeRef string
}

func (m *NodeMapper) ToValue(match any) (any, error) {
	node, ok := match.(*xmlquery.Node)
	if !ok {
		if match == nil {
			return nil, nil
		}
		return nil, &MappingError{Value: matchText(match), Msg: "node field matched a non-node result"}
	}
	if m.Type == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, m.TypeRef)
	}
	return m.Type.Wrap(node), nil
}

func (m *NodeMapper) ToXML(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *XMLObject:
		return v.Node, nil
	case *xmlquery.Node:
		return v, nil
	}
	return nil, &MappingError{Value: fmt.Sprint(value), Msg: "node field requires an *XMLObject value"}
}

// RawMapper passes evaluator results through untouched; the value side
// stringifies. Used for arbitrary expression results like substring(...).
type RawMapper struct{}

func (m RawMapper) ToValue(match any) (any, error) {
	return match, nil
}

func (m RawMapper) ToXML(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}
