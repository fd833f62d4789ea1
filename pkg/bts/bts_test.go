package bts

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleYAML = `
target-namespace: urn:example:people
namespaces:
  ex: urn:example:people
types:
  - name: ex:person
    go: example.Person
    properties:
      - name: id
        attribute: true
        type: xs:int
        default: "0"
      - name: name
        type: xs:string
      - name: child
        type: ex:person
        multiple: true
        field: Children
      - name: shoe-size
        type: size
  - name: employee
    go: example.Employee
    base: person
    properties:
      - name: salary
        type: xs:decimal
  - name: size
    kind: restriction
    as: small-int
  - name: small-int
    kind: restriction
    as: xs:short
  - name: scores
    kind: list
    item: xs:int
  - name: price
    kind: simple-content
    content: xs:decimal
    properties:
      - name: currency
        attribute: true
        type: xs:string
elements:
  - name: person
    type: person
`

func TestBuiltinLoader(t *testing.T) {
	l := BuiltinLoader()

	name, ok := l.LookupPojoFor(ForTypeNamed(xml.Name{Space: XSDNamespace, Local: "int"}))
	require.True(t, ok)
	assert.Equal(t, GoInt32, name.Go)

	bt, ok := l.BindingType(name)
	require.True(t, ok)
	assert.Equal(t, Builtin, bt.Kind)

	name, ok = l.LookupXmlFor(GoString)
	require.True(t, ok)
	assert.Equal(t, "string", name.Xml.Local, "first entry for a Go type wins")

	name, ok = l.LookupXmlFor(GoBytes)
	require.True(t, ok)
	assert.Equal(t, "base64Binary", name.Xml.Local)

	bt, ok = l.BindingType(BuiltinName("NMTOKENS"))
	require.True(t, ok)
	assert.Equal(t, List, bt.Kind)
	assert.Equal(t, BuiltinName("NMTOKEN"), bt.ItemType)

	_, ok = l.LookupPojoFor(ForTypeNamed(xml.Name{Space: XSDNamespace, Local: "nope"}))
	assert.False(t, ok)
	assert.True(t, BuiltinName("nope").IsZero())
}

func TestReadBindingFile(t *testing.T) {
	f, err := ReadBindingFile(strings.NewReader(peopleYAML))
	require.NoError(t, err)

	const ns = "urn:example:people"
	person, ok := Resolve(f, ForTypeNamed(xml.Name{Space: ns, Local: "person"}))
	require.True(t, ok)
	assert.Equal(t, Complex, person.Kind)
	assert.Equal(t, GoTypeName("example.Person"), person.Name.Go)
	require.Len(t, person.Properties, 4)

	id := person.Properties[0]
	assert.True(t, id.Attribute)
	assert.Equal(t, xml.Name{Local: "id"}, id.Name)
	require.NotNil(t, id.Default)
	assert.Equal(t, "0", *id.Default)
	assert.Equal(t, BuiltinName("int"), id.TypeName)

	child := person.Properties[2]
	assert.True(t, child.Multiple)
	assert.Equal(t, person.Name, child.TypeName, "self reference resolves to the same binding")
	assert.Equal(t, "Children", child.Key())

	size, ok := f.BindingType(person.Properties[3].TypeName)
	require.True(t, ok)
	assert.Equal(t, SimpleRestriction, size.Kind)
	assert.Equal(t, BuiltinName("short"), size.AsIf, "restriction chains flatten to the builtin")
	assert.Equal(t, GoInt16, size.Name.Go)

	emp, ok := Resolve(f, ForTypeNamed(xml.Name{Space: ns, Local: "employee"}))
	require.True(t, ok)
	assert.Equal(t, person.Name, emp.Base)
	require.Len(t, emp.Properties, 5, "base properties come first")
	assert.Equal(t, "id", emp.Properties[0].Name.Local)
	assert.Equal(t, "salary", emp.Properties[4].Name.Local)

	name, ok := f.LookupXmlFor("example.Employee")
	require.True(t, ok)
	assert.Equal(t, emp.Name, name)

	scores, ok := Resolve(f, ForTypeNamed(xml.Name{Space: ns, Local: "scores"}))
	require.True(t, ok)
	assert.Equal(t, GoTypeName("[]int32"), scores.Name.Go)

	price, ok := Resolve(f, ForTypeNamed(xml.Name{Space: ns, Local: "price"}))
	require.True(t, ok)
	require.NotNil(t, price.Content)
	assert.Equal(t, "Value", price.Content.Field)
	assert.Equal(t, BuiltinName("decimal"), price.Content.TypeName)

	doc, ok := Resolve(f, ForGlobalName(KindElement, xml.Name{Space: ns, Local: "person"}))
	require.True(t, ok)
	assert.Equal(t, Document, doc.Kind)
	assert.Equal(t, person.Name, doc.ElementType)

	elem, ok := f.LookupElementFor("example.Person")
	require.True(t, ok)
	assert.Equal(t, doc.Name, elem)

	// Restrictions without their own Go type do not hijack the builtin.
	name, ok = f.LookupXmlFor(GoInt16)
	require.True(t, ok)
	assert.Equal(t, BuiltinName("short"), name)
}

func TestBindingFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		is      error
	}{
		{
			name: "unresolved property type",
			yaml: `
types:
  - name: a
    properties:
      - name: b
        type: missing
`,
			is: ErrUnresolvedType,
		},
		{
			name: "unknown prefix",
			yaml: `
types:
  - name: q:a
`,
			wantErr: "undeclared namespace prefix",
		},
		{
			name: "duplicate type",
			yaml: `
types:
  - name: a
  - name: a
`,
			wantErr: "declared twice",
		},
		{
			name: "unknown kind",
			yaml: `
types:
  - name: a
    kind: union
`,
			wantErr: "unknown kind",
		},
		{
			name: "circular restriction",
			yaml: `
types:
  - name: a
    kind: restriction
    as: b
  - name: b
    kind: restriction
    as: a
`,
			wantErr: "circular",
		},
		{
			name: "repeated attribute",
			yaml: `
types:
  - name: a
    properties:
      - name: b
        attribute: true
        multiple: true
        type: xs:string
`,
			wantErr: "cannot repeat",
		},
		{
			name: "element of unknown type",
			yaml: `
elements:
  - name: root
    type: nothing
`,
			is: ErrUnresolvedType,
		},
		{
			name:    "malformed yaml",
			yaml:    "types: [",
			wantErr: "parsing binding file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBindingFileFromYAML([]byte(tt.yaml))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadBindingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.yaml")
	require.NoError(t, os.WriteFile(path, []byte(peopleYAML), 0o644))

	f, err := LoadBindingFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Bindings(), 7)

	_, err = LoadBindingFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestComposite(t *testing.T) {
	first := NewBindingFile(nil)
	second := NewBindingFile(nil)
	x := ForTypeNamed(xml.Name{Local: "thing"})
	a := &BindingType{Name: ForPair("A", x), Kind: Complex}
	b := &BindingType{Name: ForPair("B", x), Kind: Complex}
	require.NoError(t, first.Add(a))
	require.NoError(t, second.Add(b))
	first.AddPojoFor(x, a.Name)
	second.AddPojoFor(x, b.Name)
	second.AddElementFor("B", b.Name)

	l := Composite(first, second)
	name, ok := l.LookupPojoFor(x)
	require.True(t, ok)
	assert.Equal(t, a.Name, name)

	got, ok := l.BindingType(b.Name)
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = l.LookupElementFor("A")
	assert.False(t, ok)
	_, ok = l.LookupElementFor("B")
	assert.True(t, ok)

	assert.ErrorIs(t, first.Add(a), ErrDuplicateBinding)
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "ShoeSize", FieldName("shoe-size"))
	assert.Equal(t, "ZipCode", FieldName("zip_code"))
	assert.Equal(t, "Name", FieldName("name"))
}
