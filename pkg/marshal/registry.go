package marshal

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/twinfer/xbind/pkg/bts"
)

// TypeKey is the key under which map-backed objects record their Go type
// name when it differs from the statically expected one.
const TypeKey = "@type"

var (
	// ErrNotStruct is returned when registering something other than a
	// struct or a pointer to one.
	ErrNotStruct = errors.New("registered type must be a struct")
	// ErrConflictingRegistration indicates an attempt to register a name
	// or a type twice with different counterparts.
	ErrConflictingRegistration = errors.New("conflicting type registration")
)

// TypeRegistry maps Go type names used in bindings to Go struct types.
// Complex values whose Go type name has no registered struct are built as
// map[string]any. A registry is safe for concurrent use.
type TypeRegistry struct {
	mu     sync.Mutex
	byName sync.Map // map[bts.GoTypeName]reflect.Type
	byType sync.Map // map[reflect.Type]bts.GoTypeName
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{}
}

// Register associates name with the struct type of sample, which may be a
// struct value or a pointer to one. Registering the same pair again is a
// no-op.
func (r *TypeRegistry) Register(name bts.GoTypeName, sample any) error {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s is %v", ErrNotStruct, name, reflect.TypeOf(sample))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byName.Load(name); ok {
		if old.(reflect.Type) == t {
			return nil
		}
		return fmt.Errorf("%w: %s already names %v", ErrConflictingRegistration, name, old)
	}
	if old, ok := r.byType.Load(t); ok {
		return fmt.Errorf("%w: %v already registered as %s", ErrConflictingRegistration, t, old)
	}
	r.byName.Store(name, t)
	r.byType.Store(t, name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *TypeRegistry) MustRegister(name bts.GoTypeName, sample any) {
	if err := r.Register(name, sample); err != nil {
		panic(err)
	}
}

// Lookup returns the struct type registered under name.
func (r *TypeRegistry) Lookup(name bts.GoTypeName) (reflect.Type, bool) {
	if r == nil {
		return nil, false
	}
	if t, ok := r.byName.Load(name); ok {
		return t.(reflect.Type), true
	}
	return nil, false
}

// NameOf returns the Go type name of a complex value: the registered name
// of its struct type, or the TypeKey entry of a map-backed object.
func (r *TypeRegistry) NameOf(v any) (bts.GoTypeName, bool) {
	if m, ok := v.(map[string]any); ok {
		switch name := m[TypeKey].(type) {
		case string:
			return bts.GoTypeName(name), name != ""
		case bts.GoTypeName:
			return name, name != ""
		}
		return "", false
	}
	if r == nil || v == nil {
		return "", false
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name, ok := r.byType.Load(t); ok {
		return name.(bts.GoTypeName), true
	}
	return "", false
}

// New returns a pointer to a new zero value of the struct registered under
// name.
func (r *TypeRegistry) New(name bts.GoTypeName) (any, bool) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}
