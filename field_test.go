package xmlmap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<foo id="a"><bar><baz>42</baz></bar><bar><baz>13</baz></bar>` +
	`<empty></empty><spacey>   this text
 needs cleanup  </spacey><boolyes>yes</boolyes><boolno>no</boolno></foo>`

func fixtureType(t *testing.T, fields map[string]*Field) *XMLObject {
	t.Helper()
	typ, err := DefineType(TypeDef{RootName: "foo", Fields: fields})
	require.NoError(t, err)
	obj, err := typ.LoadString(fixture)
	require.NoError(t, err)
	return obj
}

func TestStringField(t *testing.T) {
	t.Parallel()

	norm, err := NewNormalizedStringField(`spacey`)
	require.NoError(t, err)
	obj := fixtureType(t, map[string]*Field{
		"baz":    strField(t, `bar[1]/baz`),
		"id":     strField(t, `@id`),
		"spacey": norm,
		"gone":   strField(t, `missing`),
	})

	val, err := obj.Get("baz")
	require.NoError(t, err)
	assert.Equal(t, "42", val)

	val, err = obj.Get("id")
	require.NoError(t, err)
	assert.Equal(t, "a", val)

	val, err = obj.Get("spacey")
	require.NoError(t, err)
	assert.Equal(t, "this text needs cleanup", val)

	val, err = obj.Get("gone")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestIntegerField(t *testing.T) {
	t.Parallel()

	obj := fixtureType(t, map[string]*Field{
		"baz":   intField(t, `bar[1]/baz`),
		"count": intField(t, `count(//bar)`),
		"nan":   intField(t, `@id`),
	})

	val, err := obj.Get("baz")
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	// aggregate expressions come back from the evaluator as numbers
	val, err = obj.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 2, val)

	val, err = obj.Get("nan")
	require.NoError(t, err)
	assert.Nil(t, val, "non-numeric content maps to nil")

	require.NoError(t, obj.Set("baz", 99))
	got, err := obj.Get("baz")
	require.NoError(t, err)
	assert.Equal(t, 99, got)
}

func intField(t *testing.T, xpathText string) *Field {
	t.Helper()
	f, err := NewIntegerField(xpathText)
	require.NoError(t, err)
	return f
}

func TestBooleanField(t *testing.T) {
	t.Parallel()

	yesNo := func(xp string) *Field {
		f, err := NewBooleanField(xp, "yes", "no")
		require.NoError(t, err)
		return f
	}
	presence, err := NewBooleanField(`flag`, "yes", "")
	require.NoError(t, err)
	obj := fixtureType(t, map[string]*Field{
		"yes":  yesNo(`boolyes`),
		"no":   yesNo(`boolno`),
		"bad":  yesNo(`bar[1]/baz`),
		"flag": presence,
	})

	val, err := obj.Get("yes")
	require.NoError(t, err)
	assert.Equal(t, true, val)

	val, err = obj.Get("no")
	require.NoError(t, err)
	assert.Equal(t, false, val)

	_, err = obj.Get("bad")
	var me *MappingError
	require.ErrorAs(t, err, &me)

	// no false token: absent reads false
	val, err = obj.Get("flag")
	require.NoError(t, err)
	assert.Equal(t, false, val)

	// and writing true/false adds/removes the node
	require.NoError(t, obj.Set("flag", true))
	val, err = obj.Get("flag")
	require.NoError(t, err)
	assert.Equal(t, true, val)

	require.NoError(t, obj.Set("flag", false))
	val, err = obj.Get("flag")
	require.NoError(t, err)
	assert.Equal(t, false, val)
	assert.NotContains(t, obj.Serialize(), "<flag>")
}

func TestDateTimeField(t *testing.T) {
	t.Parallel()

	dtField := func(xp, layout string) *Field {
		f, err := NewDateTimeField(xp, layout)
		require.NoError(t, err)
		return f
	}
	typ, err := DefineType(TypeDef{RootName: "doc", Fields: map[string]*Field{
		"when":   dtField(`when`, ""),
		"custom": dtField(`custom`, "2006-01-02 15:04:05"),
	}})
	require.NoError(t, err)

	cases := []struct {
		text string
		want time.Time
	}{
		{"2010-01-03T02:13:44", time.Date(2010, 1, 3, 2, 13, 44, 0, time.UTC)},
		{"2010-01-03T02:13:44.003", time.Date(2010, 1, 3, 2, 13, 44, 3000000, time.UTC)},
		{"2010-01-03T02:13:44Z", time.Date(2010, 1, 3, 2, 13, 44, 0, time.UTC)},
		{"2010-01-03T02:13:44+01:00", time.Date(2010, 1, 3, 2, 13, 44, 0, time.UTC)},
	}
	for _, tc := range cases {
		obj, err := typ.LoadString(`<doc><when>` + tc.text + `</when></doc>`)
		require.NoError(t, err)
		val, err := obj.Get("when")
		require.NoError(t, err)
		assert.True(t, tc.want.Equal(val.(time.Time)), "parse %q", tc.text)
	}

	obj, err := typ.LoadString(`<doc></doc>`)
	require.NoError(t, err)
	when := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, obj.Set("when", when))
	assert.Contains(t, obj.Serialize(), `<when>2024-06-01T12:30:00</when>`)

	require.NoError(t, obj.Set("custom", when))
	assert.Contains(t, obj.Serialize(), `<custom>2024-06-01 12:30:00</custom>`)

	obj, err = typ.LoadString(`<doc><when>not a date</when></doc>`)
	require.NoError(t, err)
	_, err = obj.Get("when")
	var me *MappingError
	assert.ErrorAs(t, err, &me)
}

func TestItemField(t *testing.T) {
	t.Parallel()

	item, err := NewItemField(`substring(bar[1]/baz, 1, 1)`)
	require.NoError(t, err)
	obj := fixtureType(t, map[string]*Field{"first": item})

	val, err := obj.Get("first")
	require.NoError(t, err)
	assert.Equal(t, "4", val)
}

func TestStringListField(t *testing.T) {
	t.Parallel()

	listField := func(xp string) *Field {
		f, err := NewStringListField(xp)
		require.NoError(t, err)
		return f
	}
	typ, err := DefineType(TypeDef{RootName: "doc", Fields: map[string]*Field{
		"items": listField(`item`),
	}})
	require.NoError(t, err)
	obj, err := typ.LoadString(`<doc><item>a</item><item>b</item></doc>`)
	require.NoError(t, err)

	list, err := obj.List("items")
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())

	values, err := list.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, values)

	t.Run("append and set", func(t *testing.T) {
		require.NoError(t, list.Append("c"))
		assert.Equal(t, `<doc><item>a</item><item>b</item><item>c</item></doc>`, obj.Serialize())

		require.NoError(t, list.Set(0, "A"))
		assert.Equal(t, `<doc><item>A</item><item>b</item><item>c</item></doc>`, obj.Serialize())

		err := list.Set(5, "x")
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})

	t.Run("insert keeps position", func(t *testing.T) {
		require.NoError(t, list.Insert(1, "mid"))
		values, err := list.Values()
		require.NoError(t, err)
		assert.Equal(t, []any{"A", "mid", "b", "c"}, values)
	})

	t.Run("membership", func(t *testing.T) {
		i, err := list.IndexOf("b")
		require.NoError(t, err)
		assert.Equal(t, 2, i)

		ok, err := list.Contains("nope")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = list.IndexOf("nope")
		assert.ErrorIs(t, err, ErrValueNotFound)

		n, err := list.Count("mid")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("pop and remove", func(t *testing.T) {
		val, err := list.Pop(-1)
		require.NoError(t, err)
		assert.Equal(t, "c", val)

		require.NoError(t, list.Remove("mid"))
		values, err := list.Values()
		require.NoError(t, err)
		assert.Equal(t, []any{"A", "b"}, values)
	})

	t.Run("positional overwrite", func(t *testing.T) {
		require.NoError(t, obj.Set("items", []string{"1", "2", "3"}))
		values, err := list.Values()
		require.NoError(t, err)
		assert.Equal(t, []any{"1", "2", "3"}, values)

		// truncation pops from the tail, order untouched
		require.NoError(t, obj.Set("items", []string{"only"}))
		assert.Equal(t, `<doc><item>only</item></doc>`, obj.Serialize())
	})

	t.Run("delete clears all", func(t *testing.T) {
		require.NoError(t, obj.Delete("items"))
		assert.Equal(t, 0, list.Len())
	})
}

func TestAttributeListField(t *testing.T) {
	t.Parallel()

	f, err := NewStringListField(`item/@id`)
	require.NoError(t, err)
	typ, err := DefineType(TypeDef{RootName: "doc", Fields: map[string]*Field{"ids": f}})
	require.NoError(t, err)
	obj, err := typ.LoadString(`<doc><item id="a"></item><item id="b"></item></doc>`)
	require.NoError(t, err)

	list, err := obj.List("ids")
	require.NoError(t, err)
	values, err := list.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, values)

	require.NoError(t, list.Delete(0))
	assert.Equal(t, `<doc><item></item><item id="b"></item></doc>`, obj.Serialize())
}

func TestIntegerListField(t *testing.T) {
	t.Parallel()

	f, err := NewIntegerListField(`n`)
	require.NoError(t, err)
	typ, err := DefineType(TypeDef{RootName: "doc", Fields: map[string]*Field{"ns": f}})
	require.NoError(t, err)
	obj, err := typ.LoadString(`<doc><n>1</n><n>2</n></doc>`)
	require.NoError(t, err)

	list, err := obj.List("ns")
	require.NoError(t, err)
	values, err := list.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, values)

	require.NoError(t, obj.Set("ns", []int{7, 8, 9}))
	assert.Equal(t, `<doc><n>7</n><n>8</n><n>9</n></doc>`, obj.Serialize())
}

func TestListOnSingleField(t *testing.T) {
	t.Parallel()

	obj := fixtureType(t, map[string]*Field{"baz": strField(t, `bar[1]/baz`)})
	_, err := obj.List("baz")
	assert.ErrorIs(t, err, ErrNotAList)
}

func TestUnknownField(t *testing.T) {
	t.Parallel()

	obj := fixtureType(t, nil)
	_, err := obj.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.ErrorIs(t, obj.Set("nope", "x"), ErrUnknownField)
	assert.ErrorIs(t, obj.Delete("nope"), ErrUnknownField)
}

func TestFieldDeclarationErrors(t *testing.T) {
	t.Parallel()

	_, err := NewStringField(`bogus-(`)
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)

	_, err = NewStringField(``)
	assert.ErrorAs(t, err, &se)
}

func TestConcurrentFieldDeclaration(t *testing.T) {
	t.Parallel()

	const n = 32
	fields := make([]*Field, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := NewStringField(`bar/baz`)
			assert.NoError(t, err)
			fields[i] = f
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, f := range fields {
		require.NotNil(t, f)
		assert.False(t, seen[f.order], "duplicate declaration order %d", f.order)
		seen[f.order] = true
	}
}
