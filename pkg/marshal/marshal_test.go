package marshal

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/testutil"
)

func encode(t *testing.T, r *MarshalResult) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.EncodeTo(xml.NewEncoder(&buf)))
	return buf.String()
}

func TestMarshalRoundTrip(t *testing.T) {
	bc := structContext(t)
	ctx := context.Background()

	first, err := bc.Unmarshaller().Unmarshal(ctx, strings.NewReader(adaXML))
	require.NoError(t, err)

	r, err := bc.Marshaller().Marshal(ctx, first)
	require.NoError(t, err)
	out := encode(t, r)
	assert.True(t, strings.HasPrefix(out, `<n1:person xmlns:n1="urn:example:people" id="7">`), out)
	assert.Contains(t, out, `<scores>1 2 3</scores>`)
	assert.Contains(t, out, `<price currency="EUR">12.50</price>`)
	assert.Contains(t, out, `<nickname xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:nil="true"></nickname>`)
	assert.True(t, strings.HasSuffix(out, `</n1:person>`), out)

	second, err := bc.Unmarshaller().Unmarshal(ctx, strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, second, testutil.DecimalComparer))
}

func TestMarshalStructValue(t *testing.T) {
	bc := structContext(t)
	r, err := bc.Marshaller().Marshal(context.Background(), Person{ID: 3, Name: "Al", Status: "away", Nickname: ptr("al")})
	require.NoError(t, err)
	assert.Equal(t,
		`<n1:person xmlns:n1="urn:example:people" id="3"><name>Al</name><age>0</age><nickname>al</nickname><status>away</status></n1:person>`,
		encode(t, r))
}

func TestMarshalSubtypeEmitsXsiType(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		bc := structContext(t)
		emp := &Employee{Person: Person{Name: "Eve", Status: "active", Nickname: ptr("e")}, Salary: apd.New(105, -1)}
		r, err := bc.Marshaller().Marshal(context.Background(), emp)
		require.NoError(t, err)
		out := encode(t, r)
		assert.Contains(t, out, `xsi:type="n1:employee"`)
		assert.Contains(t, out, `<salary>10.5</salary>`)

		back, err := bc.Unmarshaller().Unmarshal(context.Background(), strings.NewReader(out))
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(emp, back, testutil.DecimalComparer))
	})

	t.Run("map", func(t *testing.T) {
		bc := mapContext(t)
		m := map[string]any{TypeKey: "example.Employee", "name": "Eve", "salary": "12.5"}
		r, err := bc.Marshaller().Marshal(context.Background(), m)
		require.NoError(t, err)
		assert.Equal(t,
			`<n1:person xmlns:n1="urn:example:people" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:type="n1:employee"><name>Eve</name><salary>12.5</salary></n1:person>`,
			encode(t, r))
	})
}

func TestMarshalMapsNeedAnExplicitRoot(t *testing.T) {
	bc := mapContext(t)
	m := map[string]any{"name": "Ada", "Children": []any{map[string]any{"name": "Bob"}, nil}}

	_, err := bc.Marshaller().Marshal(context.Background(), m)
	assert.ErrorIs(t, err, ErrRootTypeUnresolved)

	r, err := bc.Marshaller().MarshalType(context.Background(), m, xmlName(peopleNS, "person"), personType(), "")
	require.NoError(t, err)
	assert.Equal(t,
		`<n1:person xmlns:n1="urn:example:people"><name>Ada</name><child><name>Bob</name></child></n1:person>`,
		encode(t, r), "nil items of a non-nillable collection are omitted")
}

func TestMarshalTokens(t *testing.T) {
	bc := structContext(t)
	r, err := bc.Marshaller().MarshalType(context.Background(), &Price{Currency: "USD", Value: apd.New(35, -1)},
		xml.Name{Local: "price"}, bts.ForTypeNamed(xmlName(peopleNS, "price")), "example.Price")
	require.NoError(t, err)

	var toks []xml.Token
	for {
		tok, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		toks = append(toks, tok)
	}
	want := []xml.Token{
		xml.StartElement{Name: xml.Name{Local: "price"}, Attr: []xml.Attr{{Name: xml.Name{Local: "currency"}, Value: "USD"}}},
		xml.CharData("3.5"),
		xml.EndElement{Name: xml.Name{Local: "price"}},
	}
	assert.Equal(t, want, toks)

	assert.ErrorIs(t, r.EncodeTo(xml.NewEncoder(io.Discard)), ErrSessionUsed)
}

func TestMarshalRecordsPrintErrors(t *testing.T) {
	bc := mapContext(t)
	m := map[string]any{"ID": "seven", "name": "Ada", "age": 4}
	r, err := bc.Marshaller().MarshalType(context.Background(), m, xmlName(peopleNS, "person"), personType(), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.EncodeTo(xml.NewEncoder(&buf))
	var list ErrorList
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Message, "attribute id")
	assert.Equal(t, `<n1:person xmlns:n1="urn:example:people"><name>Ada</name><age>4</age></n1:person>`, buf.String())
}

func TestPrefixAllocation(t *testing.T) {
	t.Run("seeded", func(t *testing.T) {
		r := newMarshalResult(context.Background(), NewBindingContext(bts.BuiltinLoader()))
		r.scopes = append(r.scopes, nil)
		assert.Equal(t, "n1", r.ensurePrefix("urn:a"))
		assert.Equal(t, "n2", r.ensurePrefix("urn:b"))
		assert.Equal(t, "n1", r.ensurePrefix("urn:a"))
		assert.Equal(t, "", r.ensurePrefix(""))
		assert.Equal(t, "xsi", r.ensurePrefix(bts.XSINamespace))
		assert.Len(t, r.pending, 3, "each namespace is declared once per scope")

		// A nested scope sees the outer declarations; a sibling scope
		// declares again with the same prefix.
		r.scopes = append(r.scopes, nil)
		r.pending = r.pending[:0]
		r.ensurePrefix("urn:a")
		assert.Empty(t, r.pending)
		r.scopes = r.scopes[:0]
		r.scopes = append(r.scopes, nil)
		assert.Equal(t, "n2", r.ensurePrefix("urn:b"))
		assert.Equal(t, []xml.Attr{{Name: xml.Name{Local: "xmlns:n2"}, Value: "urn:b"}}, r.pending)
	})

	t.Run("options", func(t *testing.T) {
		bc := NewBindingContext(bts.BuiltinLoader(),
			WithPrefixSeed("ns"),
			WithNamespacePrefixes(map[string]string{"urn:a": "a", "urn:c": "ns1"}))
		r := newMarshalResult(context.Background(), bc)
		r.scopes = append(r.scopes, nil)
		assert.Equal(t, "a", r.ensurePrefix("urn:a"))
		assert.Equal(t, "ns2", r.ensurePrefix("urn:b"), "preset prefixes are never generated")
		assert.Equal(t, "ns1", r.ensurePrefix("urn:c"))
	})
}

func ptr[T any](v T) *T { return &v }

// valuePerson holds its children and price by value.
type valuePerson struct {
	ID       int32
	Name     string
	Age      int32
	Nickname *string
	Status   string
	Scores   []int32
	Price    *Price
	Children []valuePerson
	Cost     Price
}

func (p valuePerson) CostValue() Price { return p.Cost }

func valueContext(t *testing.T, yaml string) *BindingContext {
	t.Helper()
	f, err := bts.ReadBindingFile(strings.NewReader(yaml))
	require.NoError(t, err)
	types := NewTypeRegistry()
	types.MustRegister("example.Person", valuePerson{})
	types.MustRegister("example.Price", Price{})
	return NewBindingContext(f, WithTypes(types))
}

func TestMarshalStructsHeldByValue(t *testing.T) {
	t.Run("collection items", func(t *testing.T) {
		bc := valueContext(t, peopleYAML)
		root := &valuePerson{Name: "Ada", Nickname: ptr("a"), Children: []valuePerson{
			{Name: "Bob", Nickname: ptr("b")},
			{Name: "Cy", Nickname: ptr("c")},
		}}
		r, err := bc.Marshaller().Marshal(context.Background(), root)
		require.NoError(t, err)
		out := encode(t, r)
		assert.Equal(t, 2, strings.Count(out, "<child"), out)
		assert.Contains(t, out, `<name>Bob</name>`)
		assert.Contains(t, out, `<name>Cy</name>`)

		back, err := bc.Unmarshaller().Unmarshal(context.Background(), strings.NewReader(out))
		require.NoError(t, err)
		children := back.(*valuePerson).Children
		require.Len(t, children, 2)
		assert.Equal(t, "Bob", children[0].Name)
		assert.Equal(t, "Cy", children[1].Name)
	})

	t.Run("getter result", func(t *testing.T) {
		yaml := strings.Replace(peopleYAML,
			"      - name: price\n        type: price\n",
			"      - name: price\n        type: price\n        getter: CostValue\n", 1)
		bc := valueContext(t, yaml)
		root := &valuePerson{Name: "Ada", Nickname: ptr("a"), Cost: Price{Currency: "EUR", Value: apd.New(125, -1)}}
		r, err := bc.Marshaller().Marshal(context.Background(), root)
		require.NoError(t, err)
		assert.Contains(t, encode(t, r), `<price currency="EUR">12.5</price>`)
	})
}
