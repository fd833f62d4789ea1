package bts

import (
	"encoding/xml"
	"fmt"
)

// Kind is the structural category of a binding.
type Kind int

const (
	// Builtin is one of the XML Schema primitive or derived builtin types.
	Builtin Kind = iota
	// SimpleRestriction behaves as the builtin named by AsIf.
	SimpleRestriction
	// List is a whitespace separated list of ItemType values.
	List
	// Complex has element and attribute properties.
	Complex
	// SimpleContent has attribute properties and text content.
	SimpleContent
	// Document binds a global element to ElementType.
	Document
)

var kindNames = map[Kind]string{
	Builtin:           "builtin",
	SimpleRestriction: "restriction",
	List:              "list",
	Complex:           "complex",
	SimpleContent:     "simple-content",
	Document:          "document",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsSimple reports whether values of kind k have a lexical form.
func (k Kind) IsSimple() bool {
	return k == Builtin || k == SimpleRestriction || k == List
}

// BindingType is the compiled description of one binding. It is immutable
// once its loader has been built.
type BindingType struct {
	Name BindingTypeName
	Kind Kind

	// Properties in declaration order. Complex and SimpleContent only.
	Properties []BindingProperty
	// Content is the text property of a SimpleContent binding.
	Content *BindingProperty
	// Base is the binding this one was derived from, if any.
	Base BindingTypeName

	// ElementType is the type of the element of a Document binding.
	ElementType BindingTypeName
	// ItemType is the item type of a List binding.
	ItemType BindingTypeName
	// AsIf is the builtin a SimpleRestriction binding behaves as.
	AsIf BindingTypeName

	// Rules are semantic checks evaluated by a validator after unmarshal.
	Rules []Rule
}

// Rule is a boolean CEL expression over the bound value, available as
// self. Message is reported when the expression evaluates to false.
type Rule struct {
	Expr    string `yaml:"expr"`
	Message string `yaml:"message,omitempty"`
}

// BindingProperty describes one element, attribute or text property of a
// complex binding.
type BindingProperty struct {
	Name      xml.Name
	Attribute bool
	TypeName  BindingTypeName
	Nillable  bool
	Optional  bool
	Multiple  bool
	// Default is the lexical default, nil when the property has none.
	Default *string

	// Field is the Go struct field, or the key of a map-backed object.
	Field  string
	Setter string
	Getter string
}

// Key is the map key used for the property of map-backed objects.
func (p *BindingProperty) Key() string {
	if p.Field != "" {
		return p.Field
	}
	return p.Name.Local
}

func (p *BindingProperty) String() string {
	kind := "element"
	if p.Attribute {
		kind = "attribute"
	}
	return fmt.Sprintf("%s %s of %s", kind, p.Name.Local, p.TypeName)
}
