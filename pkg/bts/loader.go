package bts

import (
	"errors"
	"fmt"
)

// ErrDuplicateBinding is returned when a binding name is added twice.
var ErrDuplicateBinding = errors.New("duplicate binding")

// BindingLoader resolves between schema names, Go type names and bindings.
// Absence is reported through the boolean result; it is up to the caller
// to decide whether a missing binding is fatal.
type BindingLoader interface {
	// BindingType returns the binding registered under name.
	BindingType(name BindingTypeName) (*BindingType, bool)
	// LookupPojoFor returns the binding the schema component unmarshals to.
	LookupPojoFor(x XmlTypeName) (BindingTypeName, bool)
	// LookupXmlFor returns the binding of the schema type Go type g
	// marshals to.
	LookupXmlFor(g GoTypeName) (BindingTypeName, bool)
	// LookupElementFor returns the document binding of the global element
	// Go type g marshals to as a root.
	LookupElementFor(g GoTypeName) (BindingTypeName, bool)
}

// BindingFile is a BindingLoader populated programmatically or by
// ReadBindingFile. It must not be modified once it is handed to a
// BindingContext. Lookups that miss fall through to the parent loader.
type BindingFile struct {
	parent   BindingLoader
	bindings map[BindingTypeName]*BindingType
	order    []BindingTypeName
	pojoFor  map[XmlTypeName]BindingTypeName
	xmlFor   map[GoTypeName]BindingTypeName
	elemFor  map[GoTypeName]BindingTypeName
}

// NewBindingFile returns an empty file layered over parent, which may be
// nil.
func NewBindingFile(parent BindingLoader) *BindingFile {
	return &BindingFile{
		parent:   parent,
		bindings: make(map[BindingTypeName]*BindingType),
		pojoFor:  make(map[XmlTypeName]BindingTypeName),
		xmlFor:   make(map[GoTypeName]BindingTypeName),
		elemFor:  make(map[GoTypeName]BindingTypeName),
	}
}

// Add registers bt under its name.
func (f *BindingFile) Add(bt *BindingType) error {
	if bt == nil || bt.Name.IsZero() {
		return errors.New("binding without a name")
	}
	if _, ok := f.bindings[bt.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, bt.Name)
	}
	f.bindings[bt.Name] = bt
	f.order = append(f.order, bt.Name)
	return nil
}

// AddPojoFor maps the schema component x to the binding name. The first
// mapping for x wins.
func (f *BindingFile) AddPojoFor(x XmlTypeName, name BindingTypeName) {
	if _, ok := f.pojoFor[x]; !ok {
		f.pojoFor[x] = name
	}
}

// AddXmlFor maps the Go type g to the binding name. The first mapping for
// g wins.
func (f *BindingFile) AddXmlFor(g GoTypeName, name BindingTypeName) {
	if _, ok := f.xmlFor[g]; !ok {
		f.xmlFor[g] = name
	}
}

// AddElementFor maps the Go type g to a document binding. The first
// mapping for g wins.
func (f *BindingFile) AddElementFor(g GoTypeName, name BindingTypeName) {
	if _, ok := f.elemFor[g]; !ok {
		f.elemFor[g] = name
	}
}

// Bindings returns the bindings added to f, in the order they were added.
// Bindings of the parent are not included.
func (f *BindingFile) Bindings() []*BindingType {
	out := make([]*BindingType, 0, len(f.order))
	for _, n := range f.order {
		out = append(out, f.bindings[n])
	}
	return out
}

func (f *BindingFile) BindingType(name BindingTypeName) (*BindingType, bool) {
	if bt, ok := f.bindings[name]; ok {
		return bt, true
	}
	if f.parent != nil {
		return f.parent.BindingType(name)
	}
	return nil, false
}

func (f *BindingFile) LookupPojoFor(x XmlTypeName) (BindingTypeName, bool) {
	if n, ok := f.pojoFor[x]; ok {
		return n, true
	}
	if f.parent != nil {
		return f.parent.LookupPojoFor(x)
	}
	return BindingTypeName{}, false
}

func (f *BindingFile) LookupXmlFor(g GoTypeName) (BindingTypeName, bool) {
	if n, ok := f.xmlFor[g]; ok {
		return n, true
	}
	if f.parent != nil {
		return f.parent.LookupXmlFor(g)
	}
	return BindingTypeName{}, false
}

func (f *BindingFile) LookupElementFor(g GoTypeName) (BindingTypeName, bool) {
	if n, ok := f.elemFor[g]; ok {
		return n, true
	}
	if f.parent != nil {
		return f.parent.LookupElementFor(g)
	}
	return BindingTypeName{}, false
}

// Composite returns a loader that asks each loader in turn; the first
// match wins.
func Composite(loaders ...BindingLoader) BindingLoader {
	return composite(loaders)
}

type composite []BindingLoader

func (c composite) BindingType(name BindingTypeName) (*BindingType, bool) {
	for _, l := range c {
		if bt, ok := l.BindingType(name); ok {
			return bt, true
		}
	}
	return nil, false
}

func (c composite) LookupPojoFor(x XmlTypeName) (BindingTypeName, bool) {
	for _, l := range c {
		if n, ok := l.LookupPojoFor(x); ok {
			return n, true
		}
	}
	return BindingTypeName{}, false
}

func (c composite) LookupXmlFor(g GoTypeName) (BindingTypeName, bool) {
	for _, l := range c {
		if n, ok := l.LookupXmlFor(g); ok {
			return n, true
		}
	}
	return BindingTypeName{}, false
}

func (c composite) LookupElementFor(g GoTypeName) (BindingTypeName, bool) {
	for _, l := range c {
		if n, ok := l.LookupElementFor(g); ok {
			return n, true
		}
	}
	return BindingTypeName{}, false
}

// Resolve looks up the binding the schema component x unmarshals to.
func Resolve(l BindingLoader, x XmlTypeName) (*BindingType, bool) {
	name, ok := l.LookupPojoFor(x)
	if !ok {
		return nil, false
	}
	return l.BindingType(name)
}
