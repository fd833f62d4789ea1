package marshal

import (
	"encoding/xml"
	"fmt"
	"reflect"

	"github.com/twinfer/xbind/internal/lexical"
	"github.com/twinfer/xbind/pkg/bts"
)

type visitorKind int

const (
	complexVisitor visitorKind = iota
	simpleVisitor
	collectionVisitor
)

type visitorState int

const (
	stateStart visitorState = iota
	stateContent
	stateChars
	stateEnd
)

// visitor walks one element of the output, or one collection of sibling
// elements. Complex visitors go START, CONTENT, END; simple ones START,
// CHARS, END. A collection has no start or end tag of its own.
type visitor struct {
	kind  visitorKind
	state visitorState
	name  xml.Name
	conv  converter
	value any

	nillable bool
	isNil    bool
	xsiType  *bts.BindingType

	// complex: index into the element properties
	cc    *complexConverter
	child int
	// collection: the items and the property they belong to
	prop  *RuntimeBindingProperty
	items reflect.Value
	item  int

	attrs   []xml.Attr
	chars   string
	outName string
}

// newVisitor returns the visitor for value written as element name through
// conv, or nil when the element is omitted.
func (r *MarshalResult) newVisitor(name xml.Name, conv converter, value any, nillable bool) (*visitor, error) {
	if isNil(value) {
		if !nillable {
			return nil, nil
		}
		return &visitor{kind: simpleVisitor, name: name, conv: conv, isNil: true}, nil
	}
	v := &visitor{name: name, conv: conv, value: value, nillable: nillable, child: -1}
	if conv.Simple() {
		v.kind = simpleVisitor
		return v, nil
	}
	v.kind = complexVisitor
	if actual, ok := r.runtimeType(conv.BindingType(), value); ok {
		c, err := r.table.getOrCreate(actual, r.loader)
		if err != nil {
			if err := r.addError(fmt.Sprintf("no converter for %s: %v", actual.Name, err)); err != nil {
				return nil, err
			}
		} else {
			v.conv, v.xsiType = c, actual
		}
	}
	cc, ok := v.conv.(*complexConverter)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not complex", ErrNoConverter, v.conv.BindingType().Name)
	}
	v.cc = cc
	return v, nil
}

// runtimeType returns the binding of value's dynamic type when it differs
// from the static binding.
func (r *MarshalResult) runtimeType(static *bts.BindingType, value any) (*bts.BindingType, bool) {
	gn, ok := r.types.NameOf(value)
	if !ok || gn == static.Name.Go {
		return nil, false
	}
	bn, ok := r.loader.LookupXmlFor(gn)
	if !ok || bn == static.Name {
		return nil, false
	}
	bt, ok := r.loader.BindingType(bn)
	if !ok || bt.Kind.IsSimple() {
		return nil, false
	}
	return bt, true
}

func newCollectionVisitor(p *RuntimeBindingProperty, items reflect.Value) *visitor {
	return &visitor{kind: collectionVisitor, name: p.Name, conv: p.conv, prop: p, items: items, item: -1}
}

// advance moves to the next child that is written. It reports false when
// the children are exhausted.
func (v *visitor) advance(r *MarshalResult) (bool, error) {
	switch v.kind {
	case complexVisitor:
		if v.isNil || v.cc.content != nil {
			return false, nil
		}
		for v.child+1 < len(v.cc.elems) {
			v.child++
			ok, err := v.childPresent(r, v.cc.elems[v.child])
			if ok || err != nil {
				return ok, err
			}
		}
	case collectionVisitor:
		if v.item+1 < v.items.Len() {
			v.item++
			return true, nil
		}
	}
	return false, nil
}

func (v *visitor) childPresent(r *MarshalResult, p *RuntimeBindingProperty) (bool, error) {
	val, present, err := p.Value(v.value)
	if err != nil {
		return false, r.addError(err.Error())
	}
	if !present {
		return false, nil
	}
	if p.Multiple {
		items := reflect.ValueOf(val)
		return val != nil && (items.Kind() == reflect.Slice || items.Kind() == reflect.Array) && items.Len() > 0, nil
	}
	return !isNil(val) || p.Nillable, nil
}

// currentChild returns the visitor for the child advance moved to. A nil
// visitor with a nil error means the child is not written.
func (v *visitor) currentChild(r *MarshalResult) (*visitor, error) {
	switch v.kind {
	case complexVisitor:
		p := v.cc.elems[v.child]
		val, _, err := p.Value(v.value)
		if err != nil {
			return nil, r.addError(err.Error())
		}
		if p.Multiple {
			return newCollectionVisitor(p, reflect.ValueOf(val)), nil
		}
		return r.newVisitor(p.Name, p.conv, val, p.Nillable)
	case collectionVisitor:
		item := v.items.Index(v.item)
		if item.Kind() == reflect.Struct {
			item = addressableValue(item)
		}
		return r.newVisitor(v.name, v.conv, item.Interface(), v.prop.Nillable)
	}
	return nil, nil
}

// initAttributes computes the attributes and, for simple values, the
// text of the element. It runs before the start tag is built so that the
// namespace declarations it needs land on this element.
func (v *visitor) initAttributes(r *MarshalResult) error {
	v.attrs = v.attrs[:0]
	if v.xsiType != nil {
		t := v.xsiType.Name.Xml
		v.attrs = append(v.attrs, xml.Attr{
			Name:  r.qualified(xsiType),
			Value: lexical.PrintQName(r.ensurePrefix(t.Namespace), t.Local),
		})
	}
	if v.isNil {
		v.attrs = append(v.attrs, xml.Attr{Name: r.qualified(xsiNil), Value: "true"})
		return nil
	}
	if v.kind == simpleVisitor {
		s, err := v.conv.Print(v.value, r)
		if err != nil {
			return r.addError(fmt.Sprintf("cannot print %s: %v", v.name.Local, err))
		}
		v.chars = s
		return nil
	}
	for _, p := range v.cc.attrs {
		val, present, err := p.Value(v.value)
		if err != nil {
			if err := r.addError(err.Error()); err != nil {
				return err
			}
			continue
		}
		if !present || isNil(val) {
			continue
		}
		s, err := p.conv.Print(val, r)
		if err != nil {
			if err := r.addError(fmt.Sprintf("cannot print attribute %s: %v", p.Name.Local, err)); err != nil {
				return err
			}
			continue
		}
		v.attrs = append(v.attrs, xml.Attr{Name: r.qualified(p.Name), Value: s})
	}
	if p := v.cc.content; p != nil {
		val, present, err := p.Value(v.value)
		if err != nil {
			return r.addError(err.Error())
		}
		if present && !isNil(val) {
			s, err := p.conv.Print(val, r)
			if err != nil {
				return r.addError(fmt.Sprintf("cannot print content of %s: %v", v.name.Local, err))
			}
			v.chars = s
		}
	}
	return nil
}

func (v *visitor) attributeCount() int { return len(v.attrs) }

func (v *visitor) attributeName(i int) xml.Name { return v.attrs[i].Name }

func (v *visitor) attributeValue(i int) string { return v.attrs[i].Value }
