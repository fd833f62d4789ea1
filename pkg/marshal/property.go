package marshal

import (
	"fmt"
	"reflect"

	"github.com/twinfer/xbind/pkg/bts"
)

// RuntimeBindingProperty is a property of a complex binding together with
// its resolved converter and the means to read and write it on a Go value.
// Values are either pointers to registered structs or map[string]any.
type RuntimeBindingProperty struct {
	bts.BindingProperty
	conv  converter
	index int
}

func newRuntimeProperty(p bts.BindingProperty, conv converter, index int) *RuntimeBindingProperty {
	return &RuntimeBindingProperty{BindingProperty: p, conv: conv, index: index}
}

// TypeUnmarshaller is the converter for the statically declared type.
func (p *RuntimeBindingProperty) TypeUnmarshaller() TypeUnmarshaller { return p.conv }

// TypeMarshaller is the converter for the statically declared type.
func (p *RuntimeBindingProperty) TypeMarshaller() TypeMarshaller { return p.conv }

func (p *RuntimeBindingProperty) fieldName() string {
	if p.Field != "" {
		return p.Field
	}
	return bts.FieldName(p.Name.Local)
}

// Fill sets the property on obj to v.
func (p *RuntimeBindingProperty) Fill(obj, v any) error {
	if m, ok := obj.(map[string]any); ok {
		m[p.Key()] = v
		return nil
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("cannot set %s on %T", p.Name.Local, obj)
	}
	if p.Setter != "" {
		m := rv.MethodByName(p.Setter)
		if !m.IsValid() || m.Type().NumIn() != 1 {
			return fmt.Errorf("%T has no setter %s(v)", obj, p.Setter)
		}
		arg, err := assignValue(v, m.Type().In(0))
		if err != nil {
			return fmt.Errorf("setting %s: %w", p.Name.Local, err)
		}
		m.Call([]reflect.Value{arg})
		return nil
	}
	f := rv.Elem().FieldByName(p.fieldName())
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("%T has no settable field %s", obj, p.fieldName())
	}
	val, err := assignValue(v, f.Type())
	if err != nil {
		return fmt.Errorf("setting %s: %w", p.Name.Local, err)
	}
	f.Set(val)
	return nil
}

// Value reads the property from obj. present is false when a map-backed
// object has no entry for the property. Struct fields are always present;
// a nil pointer reads as a nil value.
func (p *RuntimeBindingProperty) Value(obj any) (v any, present bool, err error) {
	if m, ok := obj.(map[string]any); ok {
		v, present = m[p.Key()]
		return v, present, nil
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, false, fmt.Errorf("cannot read %s from %T", p.Name.Local, obj)
	}
	var f reflect.Value
	if p.Getter != "" {
		m := rv.MethodByName(p.Getter)
		if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() < 1 {
			return nil, false, fmt.Errorf("%T has no getter %s()", obj, p.Getter)
		}
		f = m.Call(nil)[0]
	} else {
		f = rv.Elem().FieldByName(p.fieldName())
		if !f.IsValid() {
			return nil, false, fmt.Errorf("%T has no field %s", obj, p.fieldName())
		}
	}
	switch f.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if f.IsNil() {
			return nil, true, nil
		}
	case reflect.Struct:
		return addressableValue(f).Interface(), true, nil
	}
	return f.Interface(), true, nil
}

// addressableValue returns a pointer to the struct f, copying it when f
// is not addressable, such as a getter result.
func addressableValue(f reflect.Value) reflect.Value {
	if f.CanAddr() {
		return f.Addr()
	}
	ptr := reflect.New(f.Type())
	ptr.Elem().Set(f)
	return ptr
}

// checkItem reports whether v can be stored as one item of the collection
// p is bound to on obj.
func (p *RuntimeBindingProperty) checkItem(obj, v any) error {
	t := p.targetType(obj)
	if t == nil || (t.Kind() != reflect.Slice && t.Kind() != reflect.Array) {
		return nil
	}
	if _, err := assignValue(v, t.Elem()); err != nil {
		return fmt.Errorf("setting %s: %w", p.Name.Local, err)
	}
	return nil
}

// targetType is the Go type Fill assigns to, or nil for map-backed
// objects and unknown targets.
func (p *RuntimeBindingProperty) targetType(obj any) reflect.Type {
	if _, ok := obj.(map[string]any); ok {
		return nil
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil
	}
	if p.Setter != "" {
		m := rv.MethodByName(p.Setter)
		if !m.IsValid() || m.Type().NumIn() != 1 {
			return nil
		}
		return m.Type().In(0)
	}
	f := rv.Elem().FieldByName(p.fieldName())
	if !f.IsValid() {
		return nil
	}
	return f.Type()
}

// assignValue converts v to a value assignable to t.
func assignValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	return convertValue(reflect.ValueOf(v), t)
}

func convertValue(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		rv = rv.Elem()
	}
	from := rv.Type()
	switch {
	case from.AssignableTo(t):
		return rv, nil
	case convertible(from, t):
		return rv.Convert(t), nil
	}
	// A derived struct selected by xsi:type fills a field of its base type
	// through the embedded base.
	if base, ok := embeddedBase(rv, t); ok {
		return base, nil
	}
	switch {
	case from.Kind() == reflect.Pointer:
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		return convertValue(rv.Elem(), t)
	case t.Kind() == reflect.Pointer:
		elem, err := convertValue(rv, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	case t.Kind() == reflect.Interface && from.Implements(t):
		return rv, nil
	case t.Kind() == reflect.Slice && (from.Kind() == reflect.Slice || from.Kind() == reflect.Array):
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := convertValue(rv.Index(i), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(item)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %v to %v", from, t)
}

// embeddedBase finds an exported embedded struct of rv, at any depth,
// that is assignable to t or whose address is.
func embeddedBase(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	for i := 0; i < rv.NumField(); i++ {
		sf := rv.Type().Field(i)
		if !sf.Anonymous || !sf.IsExported() {
			continue
		}
		f := rv.Field(i)
		switch {
		case f.Type().AssignableTo(t):
			return f, true
		case t.Kind() == reflect.Pointer && f.Type().AssignableTo(t.Elem()):
			return addressableValue(f), true
		}
		if base, ok := embeddedBase(f, t); ok {
			return base, true
		}
	}
	return reflect.Value{}, false
}

// convertible limits reflect conversions to those that keep the value:
// numbers to numbers, strings to strings, and identical underlying types.
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	fk, tk := from.Kind(), to.Kind()
	switch {
	case fk == reflect.String || tk == reflect.String:
		return fk == tk
	case isNumeric(fk) || isNumeric(tk):
		return isNumeric(fk) && isNumeric(tk)
	case fk == reflect.Slice || tk == reflect.Slice:
		return from.Elem() == to.Elem()
	}
	return true
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// PropertyValue reads p from obj the way the marshaller does. It lets
// code outside this package walk bound values.
func PropertyValue(p bts.BindingProperty, obj any) (v any, present bool, err error) {
	return newRuntimeProperty(p, nil, 0).Value(obj)
}
