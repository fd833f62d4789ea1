package marshal

import (
	"fmt"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

// TypeUnmarshaller converts XML to the Go value of one binding. It holds
// no per-call state and is shared by every session.
type TypeUnmarshaller interface {
	// Unmarshal converts the element the session is positioned on and
	// leaves the session on the matching end element.
	Unmarshal(s *UnmarshalResult) (any, error)
	// UnmarshalAttribute converts the value of the session's current
	// attribute.
	UnmarshalAttribute(s *UnmarshalResult) (any, error)
}

// TypeMarshaller describes how values of one binding are written.
type TypeMarshaller interface {
	// Simple reports whether values are written as character data rather
	// than as child elements.
	Simple() bool
	// Print returns the lexical form of v. Complex marshallers return an
	// error.
	Print(v any, r *MarshalResult) (string, error)
}

// converter is what the type table stores: one value serving both
// directions of a binding.
type converter interface {
	TypeUnmarshaller
	TypeMarshaller
	BindingType() *bts.BindingType
}

// lexicalConverter converts text that did not come from the current
// element, such as defaults, list items and simple content.
type lexicalConverter interface {
	converter
	parseLexical(lex string, s *UnmarshalResult, loc xmlcursor.Location) (any, error)
}

// initializer is implemented by converters that depend on other
// converters. initialize runs once, after the converter has been made
// visible to the builder, so cycles resolve to the same instance.
type initializer interface {
	initialize(b *builder) error
}

// builder constructs converters for one request against the table. The
// converters it creates stay private to the request until all of them are
// complete.
type builder struct {
	table    *RuntimeTypeTable
	loader   bts.BindingLoader
	building map[bts.BindingTypeName]converter
}

func (b *builder) converterFor(name bts.BindingTypeName) (converter, error) {
	if c, ok := b.table.load(name); ok {
		return c, nil
	}
	if c, ok := b.building[name]; ok {
		return c, nil
	}
	bt, ok := b.loader.BindingType(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoConverter, name, bts.ErrUnresolvedType)
	}
	return b.build(bt)
}

func (b *builder) build(bt *bts.BindingType) (converter, error) {
	c, err := newConverter(bt)
	if err != nil {
		return nil, err
	}
	b.building[bt.Name] = c
	if in, ok := c.(initializer); ok {
		if err := in.initialize(b); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (b *builder) lexicalFor(owner string, name bts.BindingTypeName) (lexicalConverter, error) {
	c, err := b.converterFor(name)
	if err != nil {
		return nil, err
	}
	lc, ok := c.(lexicalConverter)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a simple type, %s is %s", ErrNoConverter, owner, name, c.BindingType().Kind)
	}
	return lc, nil
}

func newConverter(bt *bts.BindingType) (converter, error) {
	switch bt.Kind {
	case bts.Builtin:
		return newBuiltinConverter(bt)
	case bts.SimpleRestriction:
		return &restrictionConverter{bt: bt}, nil
	case bts.List:
		return &listConverter{bt: bt}, nil
	case bts.Complex, bts.SimpleContent:
		return &complexConverter{bt: bt}, nil
	}
	return nil, fmt.Errorf("%w: %s has kind %s", ErrNoConverter, bt.Name, bt.Kind)
}
