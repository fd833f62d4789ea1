// Package bts describes bindings between Go types and XML Schema types.
//
// A binding pairs a Go type name with a schema type name and records how
// values of that pair are shaped: builtin primitive, restriction of a
// builtin, whitespace separated list, complex type with element and
// attribute properties, complex type with simple content, or a document
// binding tying a global element to its type.
//
// Bindings are looked up through a BindingLoader. Loaders are built once,
// either from the builtin table, programmatically through a BindingFile or
// from a YAML binding file, and are read-only afterwards, so a single loader
// may be shared by any number of concurrent marshal and unmarshal calls.
package bts

import (
	"encoding/xml"
	"fmt"
)

// Well known namespaces.
const (
	XSDNamespace = "http://www.w3.org/2001/XMLSchema"
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

// NameKind discriminates the symbol spaces of XML Schema.
type NameKind int

const (
	KindType NameKind = iota
	KindElement
	KindAttribute
)

func (k NameKind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindElement:
		return "element"
	case KindAttribute:
		return "attribute"
	}
	return fmt.Sprintf("NameKind(%d)", int(k))
}

// XmlTypeName identifies a schema component. The zero value is not a valid
// name.
type XmlTypeName struct {
	Namespace string
	Local     string
	Kind      NameKind
}

// ForTypeNamed returns the name of the global type called n.
func ForTypeNamed(n xml.Name) XmlTypeName {
	return XmlTypeName{Namespace: n.Space, Local: n.Local, Kind: KindType}
}

// ForGlobalName returns the name of the global component of the given kind.
func ForGlobalName(kind NameKind, n xml.Name) XmlTypeName {
	return XmlTypeName{Namespace: n.Space, Local: n.Local, Kind: kind}
}

// QName returns the qualified name without the kind.
func (n XmlTypeName) QName() xml.Name {
	return xml.Name{Space: n.Namespace, Local: n.Local}
}

// IsZero reports whether n is the zero name.
func (n XmlTypeName) IsZero() bool {
	return n == XmlTypeName{}
}

func (n XmlTypeName) String() string {
	if n.Namespace == "" {
		return n.Kind.String() + "=" + n.Local
	}
	return n.Kind.String() + "={" + n.Namespace + "}" + n.Local
}

// GoTypeName identifies a Go type, for example "int32", "*big.Int" or
// "example.Person". Names of types that have no Go counterpart registered
// are free form.
type GoTypeName string

// BindingTypeName is the key of a binding: an ordered (Go, XML) pair.
type BindingTypeName struct {
	Go  GoTypeName
	Xml XmlTypeName
}

// ForPair returns the binding name for the pair.
func ForPair(g GoTypeName, x XmlTypeName) BindingTypeName {
	return BindingTypeName{Go: g, Xml: x}
}

// IsZero reports whether n is the zero name.
func (n BindingTypeName) IsZero() bool {
	return n == BindingTypeName{}
}

func (n BindingTypeName) String() string {
	return "binding[" + string(n.Go) + " <-> " + n.Xml.String() + "]"
}
