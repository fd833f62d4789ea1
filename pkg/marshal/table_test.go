package marshal

import (
	"encoding/xml"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/xbind/pkg/bts"
)

func TestRuntimeTypeTableBuiltins(t *testing.T) {
	table := NewRuntimeTypeTable(nil)
	for _, bt := range bts.BuiltinTypes() {
		u, ok := table.TypeUnmarshaller(bt.Name)
		require.True(t, ok, bt.Name.String())
		require.NotNil(t, u)
		m, ok := table.TypeMarshaller(bt.Name)
		require.True(t, ok)
		assert.True(t, m.Simple(), bt.Name.String())
	}
}

func TestRuntimeTypeTableRecursiveTypes(t *testing.T) {
	loader := peopleLoader(t)
	table := NewRuntimeTypeTable(nil)
	person, ok := bts.Resolve(loader, personType())
	require.True(t, ok)

	_, ok = table.TypeUnmarshaller(person.Name)
	assert.False(t, ok, "nothing is built before it is asked for")

	u, err := table.GetOrCreateTypeUnmarshaller(person, loader)
	require.NoError(t, err)
	cc, ok := u.(*complexConverter)
	require.True(t, ok)

	child := cc.byElem[xml.Name{Local: "child"}]
	require.NotNil(t, child)
	assert.Same(t, cc, child.conv, "self reference resolves to the same converter")

	m, err := table.GetOrCreateTypeMarshaller(person, loader)
	require.NoError(t, err)
	assert.Same(t, cc, m, "one converter serves both directions")

	price := cc.byElem[xml.Name{Local: "price"}]
	cached, ok := table.TypeUnmarshaller(price.TypeName)
	require.True(t, ok, "dependencies are published with the type")
	assert.Same(t, price.conv, cached)
}

func TestRuntimeTypeTableConcurrentUse(t *testing.T) {
	loader := peopleLoader(t)
	table := NewRuntimeTypeTable(nil)
	names := []string{"person", "employee", "price", "scores"}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 16; i++ {
		for _, local := range names {
			wg.Add(1)
			go func(local string) {
				defer wg.Done()
				bt, ok := bts.Resolve(loader, bts.ForTypeNamed(xmlName(peopleNS, local)))
				if !ok {
					errs <- assert.AnError
					return
				}
				u, err := table.GetOrCreateTypeUnmarshaller(bt, loader)
				if err == nil && u == nil {
					err = assert.AnError
				}
				if err != nil {
					errs <- err
				}
			}(local)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for _, local := range names {
		bt, _ := bts.Resolve(loader, bts.ForTypeNamed(xmlName(peopleNS, local)))
		_, ok := table.TypeUnmarshaller(bt.Name)
		assert.True(t, ok, local)
	}
}

func TestRuntimeTypeTableErrors(t *testing.T) {
	table := NewRuntimeTypeTable(nil)

	_, err := table.GetOrCreateTypeUnmarshaller(nil, bts.BuiltinLoader())
	assert.ErrorIs(t, err, ErrNoConverter)

	broken := &bts.BindingType{
		Name: bts.ForPair("example.Broken", bts.ForTypeNamed(xmlName(peopleNS, "broken"))),
		Kind: bts.Complex,
		Properties: []bts.BindingProperty{{
			Name:     xml.Name{Local: "missing"},
			TypeName: bts.ForPair("example.Missing", bts.ForTypeNamed(xmlName(peopleNS, "missing"))),
		}},
	}
	_, err = table.GetOrCreateTypeUnmarshaller(broken, bts.BuiltinLoader())
	assert.ErrorIs(t, err, ErrNoConverter)
	assert.ErrorIs(t, err, bts.ErrUnresolvedType)
	_, ok := table.TypeUnmarshaller(broken.Name)
	assert.False(t, ok, "failed builds publish nothing")
}
