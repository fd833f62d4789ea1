package marshal

import (
	"strings"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/xbind/pkg/bts"
)

const peopleNS = "urn:example:people"

const peopleYAML = `
target-namespace: urn:example:people
namespaces:
  ex: urn:example:people
types:
  - name: person
    go: example.Person
    properties:
      - name: id
        attribute: true
        type: xs:int
        default: "0"
        field: ID
      - name: name
        type: xs:string
      - name: age
        type: xs:int
      - name: nickname
        type: xs:string
        nillable: true
      - name: status
        type: xs:string
        default: active
      - name: scores
        type: scores
      - name: price
        type: price
      - name: child
        type: person
        multiple: true
        field: Children
  - name: employee
    go: example.Employee
    base: person
    properties:
      - name: salary
        type: xs:decimal
  - name: scores
    kind: list
    item: xs:int
  - name: price
    go: example.Price
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

type Person struct {
	ID       int32
	Name     string
	Age      int32
	Nickname *string
	Status   string
	Scores   []int32
	Price    *Price
	Children []*Person
}

type Employee struct {
	Person
	Salary *apd.Decimal
}

type Price struct {
	Currency string
	Value    *apd.Decimal
}

func peopleLoader(t *testing.T) *bts.BindingFile {
	t.Helper()
	f, err := bts.ReadBindingFile(strings.NewReader(peopleYAML))
	require.NoError(t, err)
	return f
}

func peopleTypes() *TypeRegistry {
	types := NewTypeRegistry()
	types.MustRegister("example.Person", Person{})
	types.MustRegister("example.Employee", Employee{})
	types.MustRegister("example.Price", &Price{})
	return types
}

// structContext binds the people schema to the Go structs above.
func structContext(t *testing.T, opts ...ContextOption) *BindingContext {
	t.Helper()
	return NewBindingContext(peopleLoader(t), append([]ContextOption{WithTypes(peopleTypes())}, opts...)...)
}

// mapContext binds the people schema with no Go types registered.
func mapContext(t *testing.T, opts ...ContextOption) *BindingContext {
	t.Helper()
	return NewBindingContext(peopleLoader(t), opts...)
}

func personType() bts.XmlTypeName {
	return bts.ForTypeNamed(xmlName(peopleNS, "person"))
}
