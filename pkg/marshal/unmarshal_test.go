package marshal

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

func xmlName(space, local string) xml.Name {
	return xml.Name{Space: space, Local: local}
}

const adaXML = `<ex:person xmlns:ex="urn:example:people" id="7">
  <name>Ada</name>
  <age>36</age>
  <scores>1 2
    3</scores>
  <price currency="EUR">12.50</price>
  <child id="8"><name>Bob</name></child>
  <unknown><deeper>ignored</deeper></unknown>
  <child><name>Cy</name><status></status></child>
</ex:person>`

func TestUnmarshalStructs(t *testing.T) {
	bc := structContext(t)
	v, err := bc.Unmarshaller().Unmarshal(context.Background(), strings.NewReader(adaXML))
	require.NoError(t, err)
	require.IsType(t, &Person{}, v)
	p := v.(*Person)

	assert.Equal(t, int32(7), p.ID)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, int32(36), p.Age)
	assert.Nil(t, p.Nickname)
	assert.Equal(t, "active", p.Status, "default for an absent element")
	assert.Equal(t, []int32{1, 2, 3}, p.Scores)
	require.NotNil(t, p.Price)
	assert.Equal(t, "EUR", p.Price.Currency)
	assert.Equal(t, "12.50", p.Price.Value.String())

	require.Len(t, p.Children, 2)
	assert.Equal(t, int32(8), p.Children[0].ID)
	assert.Equal(t, "Bob", p.Children[0].Name)
	assert.Equal(t, int32(0), p.Children[1].ID, "attribute default")
	assert.Equal(t, "Cy", p.Children[1].Name)
	assert.Equal(t, "active", p.Children[1].Status, "default for an empty element")
}

func TestUnmarshalMaps(t *testing.T) {
	bc := mapContext(t)
	doc := `<ex:person xmlns:ex="urn:example:people" id="7"><name>Ada</name><child><name>Bob</name></child><price currency="EUR">1.5</price></ex:person>`
	v, err := bc.Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok, "got %T", v)
	price, ok := m["price"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.5", price["Value"].(interface{ String() string }).String())
	delete(m, "price")

	want := map[string]any{
		"ID":     int32(7),
		"name":   "Ada",
		"status": "active",
		"Children": []any{
			map[string]any{"ID": int32(0), "name": "Bob", "status": "active"},
		},
	}
	assert.Empty(t, cmp.Diff(want, m))
}

func TestUnmarshalXsiType(t *testing.T) {
	doc := `<ex:person xmlns:ex="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:type="ex:employee">
  <name>Eve</name>
  <salary>1000.50</salary>
</ex:person>`

	t.Run("struct", func(t *testing.T) {
		v, err := structContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))
		require.NoError(t, err)
		require.IsType(t, &Employee{}, v)
		e := v.(*Employee)
		assert.Equal(t, "Eve", e.Name)
		assert.Equal(t, "1000.50", e.Salary.String())
	})

	t.Run("map", func(t *testing.T) {
		v, err := mapContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))
		require.NoError(t, err)
		m := v.(map[string]any)
		assert.Equal(t, "example.Employee", m[TypeKey])
		assert.Equal(t, "Eve", m["name"])
	})
}

func TestUnmarshalXsiNil(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "nil root",
			doc:  `<ex:person xmlns:ex="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:nil="true"/>`,
		},
		{
			name: "nil wins over type",
			doc:  `<ex:person xmlns:ex="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:nil="1" xsi:type="ex:nope"><name>x</name></ex:person>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := structContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(tt.doc))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}

	t.Run("nil child", func(t *testing.T) {
		doc := `<ex:person xmlns:ex="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <name>Ada</name><nickname xsi:nil="true" xsi:type="ex:nope"/></ex:person>`
		v, err := mapContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))
		require.NoError(t, err)
		m := v.(map[string]any)
		assert.Contains(t, m, "nickname")
		assert.Nil(t, m["nickname"])
	})
}

func TestUnknownXsiTypeIsRecorded(t *testing.T) {
	doc := `<ex:person xmlns:ex="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><name xsi:type="ex:nope">Ada</name></ex:person>`
	v, err := structContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))

	var list ErrorList
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "unknown type ex:nope", list[0].Message)
	require.NotNil(t, list[0].Location)
	assert.Equal(t, "Ada", v.(*Person).Name, "the static type is used")
}

func TestInvalidValuesAccumulate(t *testing.T) {
	doc := `<ex:person xmlns:ex="urn:example:people" id="x"><name>A</name><age>old</age></ex:person>`

	v, err := mapContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))
	var list ErrorList
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 2)

	assert.Contains(t, list[0].Message, "invalid value for id")
	assert.Contains(t, list[0].Message, "line 1", "attribute errors carry the location in the message")
	assert.Nil(t, list[0].Location)

	assert.Contains(t, list[1].Message, "invalid value for age")
	require.NotNil(t, list[1].Location)
	assert.Equal(t, 1, list[1].Location.Line)

	m := v.(map[string]any)
	assert.Equal(t, "A", m["name"])
	assert.NotContains(t, m, "ID", "an invalid attribute stays unset and gets no default")
	assert.NotContains(t, m, "age")
}

func TestFailFast(t *testing.T) {
	doc := `<ex:person xmlns:ex="urn:example:people" id="x"><name>A</name><age>old</age></ex:person>`
	v, err := mapContext(t, WithErrorMode(FailFast)).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(doc))
	assert.Nil(t, v)
	var list ErrorList
	require.ErrorAs(t, err, &list)
	assert.Len(t, list, 1)
}

func TestUnmarshalRootErrors(t *testing.T) {
	u := structContext(t).Unmarshaller()

	_, err := u.Unmarshal(context.Background(), strings.NewReader(`<other/>`))
	assert.ErrorIs(t, err, ErrRootTypeUnresolved)

	_, err = u.Unmarshal(context.Background(), strings.NewReader(`<ex:person xmlns:ex="urn:example:people"><name>`))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Unmarshal(ctx, strings.NewReader(adaXML))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnmarshalType(t *testing.T) {
	u := structContext(t).Unmarshaller()
	v, err := u.UnmarshalType(context.Background(), strings.NewReader(`<price currency="USD"> 3.5 </price>`),
		bts.ForTypeNamed(xmlName(peopleNS, "price")), "example.Price")
	require.NoError(t, err)
	require.IsType(t, &Price{}, v)
	assert.Equal(t, "USD", v.(*Price).Currency)
	assert.Equal(t, "3.5", v.(*Price).Value.String())

	_, err = u.UnmarshalType(context.Background(), strings.NewReader(`<price/>`),
		bts.ForTypeNamed(xmlName(peopleNS, "price")), "example.Other")
	assert.ErrorIs(t, err, ErrRootTypeUnresolved)
}

func TestSessionIsSingleUse(t *testing.T) {
	s := structContext(t).Unmarshaller().NewResult(context.Background())
	_, err := s.Unmarshal(xmlcursor.New(strings.NewReader(adaXML)))
	require.NoError(t, err)

	_, err = s.Unmarshal(xmlcursor.New(strings.NewReader(adaXML)))
	assert.ErrorIs(t, err, ErrSessionUsed)
}

func TestAttributeCursor(t *testing.T) {
	s := mapContext(t).Unmarshaller().NewResult(context.Background())
	require.NoError(t, s.begin(xmlcursor.New(strings.NewReader(`<a x="1" xmlns:p="urn:p" p:z="3"><b/></a>`))))

	var got []xml.Name
	var values []string
	for ; s.HasMoreAttributes(); s.AdvanceAttribute() {
		got = append(got, s.CurrentAttributeName())
		values = append(values, s.CurrentAttributeValue())
	}
	assert.Equal(t, []xml.Name{{Local: "x"}, {Space: "urn:p", Local: "z"}}, got)
	assert.Equal(t, []string{"1", "3"}, values)

	ev, err := s.next()
	require.NoError(t, err)
	require.Equal(t, xmlcursor.StartElement, ev)
	assert.False(t, s.HasMoreAttributes(), "b has no attributes")

	ev, err = s.next()
	require.NoError(t, err)
	require.Equal(t, xmlcursor.EndElement, ev)
	assert.Equal(t, invalid, s.attrIndex)
	assert.Equal(t, invalid, s.attrCount)
}

func TestCollectionItemsConvertIndividually(t *testing.T) {
	const open = `<ex:person xmlns:ex="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><name>P</name>`
	tests := []struct {
		name     string
		doc      string
		names    []string
		errCount int
	}{
		{
			name:  "derived item fills the base through its embedded struct",
			doc:   open + `<child><name>A</name></child><child><name>B</name></child><child xsi:type="ex:employee"><name>C</name><salary>3</salary></child></ex:person>`,
			names: []string{"A", "B", "C"},
		},
		{
			name:     "unrelated item is recorded and its siblings kept",
			doc:      open + `<child><name>A</name></child><child xsi:type="ex:price" currency="EUR">1.5</child><child><name>B</name></child></ex:person>`,
			names:    []string{"A", "B"},
			errCount: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := structContext(t).Unmarshaller().Unmarshal(context.Background(), strings.NewReader(tt.doc))
			if tt.errCount == 0 {
				require.NoError(t, err)
			} else {
				var list ErrorList
				require.ErrorAs(t, err, &list)
				require.Len(t, list, tt.errCount)
				assert.Contains(t, list[0].Message, "cannot assign")
				assert.NotNil(t, list[0].Location)
			}
			p := v.(*Person)
			var names []string
			for _, c := range p.Children {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}
