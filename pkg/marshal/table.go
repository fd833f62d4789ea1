package marshal

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/twinfer/xbind/pkg/bts"
)

// RuntimeTypeTable caches one converter per binding. It is shared by all
// sessions of a BindingContext and safe for concurrent use.
//
// Two goroutines asking for the same missing binding may both build it;
// whichever stores last wins, and both get a working converter. A
// converter under construction is never visible to another goroutine.
type RuntimeTypeTable struct {
	converters sync.Map // map[bts.BindingTypeName]converter
	logger     *slog.Logger
}

// NewRuntimeTypeTable returns a table seeded with every builtin type.
func NewRuntimeTypeTable(logger *slog.Logger) *RuntimeTypeTable {
	if logger == nil {
		logger = slog.Default()
	}
	t := &RuntimeTypeTable{logger: logger}
	for _, bt := range bts.BuiltinTypes() {
		if _, err := t.getOrCreate(bt, bts.BuiltinLoader()); err != nil {
			// The builtin table and the converter table are kept in step.
			panic(fmt.Sprintf("seeding builtin %s: %v", bt.Name, err))
		}
	}
	return t
}

func (t *RuntimeTypeTable) load(name bts.BindingTypeName) (converter, bool) {
	if c, ok := t.converters.Load(name); ok {
		return c.(converter), true
	}
	return nil, false
}

// TypeUnmarshaller returns the unmarshaller for name if it has been built.
func (t *RuntimeTypeTable) TypeUnmarshaller(name bts.BindingTypeName) (TypeUnmarshaller, bool) {
	return t.load(name)
}

// TypeMarshaller returns the marshaller for name if it has been built.
func (t *RuntimeTypeTable) TypeMarshaller(name bts.BindingTypeName) (TypeMarshaller, bool) {
	return t.load(name)
}

// GetOrCreateTypeUnmarshaller returns the unmarshaller for bt, building it
// and every converter it depends on if needed.
func (t *RuntimeTypeTable) GetOrCreateTypeUnmarshaller(bt *bts.BindingType, loader bts.BindingLoader) (TypeUnmarshaller, error) {
	return t.getOrCreate(bt, loader)
}

// GetOrCreateTypeMarshaller is the marshalling counterpart of
// GetOrCreateTypeUnmarshaller.
func (t *RuntimeTypeTable) GetOrCreateTypeMarshaller(bt *bts.BindingType, loader bts.BindingLoader) (TypeMarshaller, error) {
	return t.getOrCreate(bt, loader)
}

func (t *RuntimeTypeTable) getOrCreate(bt *bts.BindingType, loader bts.BindingLoader) (converter, error) {
	if bt == nil {
		return nil, fmt.Errorf("%w: nil binding type", ErrNoConverter)
	}
	if c, ok := t.load(bt.Name); ok {
		return c, nil
	}
	b := &builder{table: t, loader: loader, building: make(map[bts.BindingTypeName]converter)}
	c, err := b.build(bt)
	if err != nil {
		return nil, fmt.Errorf("building converter for %s: %w", bt.Name, err)
	}
	for name, built := range b.building {
		t.converters.Store(name, built)
	}
	t.logger.Debug("published converters", "type_name", bt.Name.String(), "count", len(b.building))
	return c, nil
}
