package xmlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteRemovesConstructedAncestors(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, map[string]*Field{
		"child": strField(t, `missing_parent/missing_child`),
	})
	obj := typ.New()

	require.NoError(t, obj.Set("child", "v"))
	assert.Equal(t, `<root><missing_parent><missing_child>v</missing_child></missing_parent></root>`, obj.Serialize())

	require.NoError(t, obj.Delete("child"))
	assert.Equal(t, `<root></root>`, obj.Serialize())

	// deleting again is a no-op
	require.NoError(t, obj.Delete("child"))
	assert.Equal(t, `<root></root>`, obj.Serialize())
}

func TestDeletePreservesSharedAncestor(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, map[string]*Field{"baz": strField(t, `bar/baz`)})
	obj, err := typ.LoadString(`<root><bar><baz>42</baz><other>x</other></bar></root>`)
	require.NoError(t, err)

	require.NoError(t, obj.Delete("baz"))
	assert.Equal(t, `<root><bar><other>x</other></bar></root>`, obj.Serialize())
}

func TestDeleteAttribute(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, map[string]*Field{"type": strField(t, `@type`)})
	obj, err := typ.LoadString(`<root type="a"></root>`)
	require.NoError(t, err)

	require.NoError(t, obj.Delete("type"))
	assert.Equal(t, `<root></root>`, obj.Serialize())
}

func TestDeleteTextOnlyClearsText(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, map[string]*Field{"text": strField(t, `text()`)})
	obj, err := typ.LoadString(`<root>words<keep></keep></root>`)
	require.NoError(t, err)

	require.NoError(t, obj.Delete("text"))
	assert.Equal(t, `<root><keep></keep></root>`, obj.Serialize())
}

func TestSetNilRemoves(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, map[string]*Field{"baz": strField(t, `bar/baz`)})
	obj := typ.New()

	require.NoError(t, obj.Set("baz", "42"))
	require.NoError(t, obj.Set("baz", nil))
	assert.Equal(t, `<root></root>`, obj.Serialize())

	val, err := obj.Get("baz")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestDeletePredicateCleanup(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, map[string]*Field{
		"val":    strField(t, `pred[@a="foo"]/txt`),
		"nested": strField(t, `pred[pred[@a="zoo"]]/val`),
	})

	t.Run("attribute predicate discounted", func(t *testing.T) {
		t.Parallel()
		obj := typ.New()
		require.NoError(t, obj.Set("val", "v"))
		require.NoError(t, obj.Delete("val"))
		// the a="foo" attribute was demanded by the predicate, so the
		// wrapper counts as empty and goes too
		assert.Equal(t, `<root></root>`, obj.Serialize())
	})

	t.Run("extra content blocks cleanup", func(t *testing.T) {
		t.Parallel()
		obj, err := typ.LoadString(`<root><pred a="foo" b="bar"><txt>v</txt></pred></root>`)
		require.NoError(t, err)
		require.NoError(t, obj.Delete("val"))
		assert.Equal(t, `<root><pred a="foo" b="bar"></pred></root>`, obj.Serialize())
	})

	t.Run("step predicate discounted", func(t *testing.T) {
		t.Parallel()
		obj := typ.New()
		require.NoError(t, obj.Set("nested", "n"))
		require.NoError(t, obj.Delete("nested"))
		assert.Equal(t, `<root></root>`, obj.Serialize())
	})

	t.Run("stale predicate counts as content", func(t *testing.T) {
		t.Parallel()
		obj, err := typ.LoadString(`<root><pred a="other"><txt>v</txt></pred></root>`)
		require.NoError(t, err)
		// the match for deletion is positional here; the predicate no
		// longer holds, so the attribute is real content
		_, err = removeXML(mustParse(t, `pred/txt`), obj.Node, obj.ctx, false)
		require.NoError(t, err)
		assert.Equal(t, `<root><pred a="other"></pred></root>`, obj.Serialize())
	})
}

func TestRemoveXMLReportsOutcome(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, nil)
	obj, err := typ.LoadString(`<root><bar><baz>1</baz></bar></root>`)
	require.NoError(t, err)

	removed, err := removeXML(mustParse(t, `bar/baz`), obj.Node, obj.ctx, false)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = removeXML(mustParse(t, `bar/baz`), obj.Node, obj.ctx, false)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveXMLIgnoresDescendantPaths(t *testing.T) {
	t.Parallel()

	typ := newTestType(t, nil)
	obj, err := typ.LoadString(`<root><bar><baz>1</baz></bar></root>`)
	require.NoError(t, err)

	removed, err := removeXML(mustParse(t, `bar//baz`), obj.Node, obj.ctx, false)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, `<root><bar><baz>1</baz></bar></root>`, obj.Serialize())
}
