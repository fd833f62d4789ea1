package validate

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"

	celgo "github.com/google/cel-go/cel"
	celtypes "github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/marshal"
)

const rulesYAML = `
target-namespace: urn:example:shop
types:
  - name: order
    go: example.Order
    rules:
      - expr: has(self.line) && size(self.line) > 0
        message: an order needs at least one line
      - expr: "!has(self.note) || size(self.note) <= 10"
        message: note too long
    properties:
      - name: id
        attribute: true
        type: xs:string
        field: ID
      - name: note
        type: xs:string
      - name: line
        type: line
        multiple: true
  - name: line
    rules:
      - expr: self.qty >= 1
        message: quantity must be positive
    properties:
      - name: sku
        type: sku
      - name: qty
        type: xs:int
  - name: rush-order
    go: example.RushOrder
    base: order
    rules:
      - expr: has(self.deadline)
        message: rush orders need a deadline
    properties:
      - name: deadline
        type: xs:date
  - name: sku
    kind: restriction
    as: xs:string
    rules:
      - expr: self.startsWith("SKU-")
elements:
  - name: order
    type: order
`

func setup(t *testing.T) (*bts.BindingFile, *marshal.BindingContext, *Validator) {
	t.Helper()
	f, err := bts.ReadBindingFile(strings.NewReader(rulesYAML))
	require.NoError(t, err)
	v, err := New(f)
	require.NoError(t, err)
	return f, marshal.NewBindingContext(f), v
}

func orderType(t *testing.T, l bts.BindingLoader) *bts.BindingType {
	t.Helper()
	bt, ok := bts.Resolve(l, bts.ForTypeNamed(xml.Name{Space: "urn:example:shop", Local: "order"}))
	require.True(t, ok)
	return bt
}

func TestValidate(t *testing.T) {
	f, bc, v := setup(t)
	require.NoError(t, v.Compile(orderType(t, f)))

	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "valid",
			doc:  `<s:order xmlns:s="urn:example:shop" id="1"><line><sku>SKU-1</sku><qty>2</qty></line></s:order>`,
		},
		{
			name: "no lines",
			doc:  `<s:order xmlns:s="urn:example:shop"><note>hi</note></s:order>`,
			want: []string{"order: an order needs at least one line"},
		},
		{
			name: "nested violations",
			doc: `<s:order xmlns:s="urn:example:shop"><note>far too long a note</note>
  <line><sku>SKU-1</sku><qty>1</qty></line>
  <line><sku>X-2</sku><qty>0</qty></line></s:order>`,
			want: []string{
				"order/line[1]/sku: rule self.startsWith(\"SKU-\") failed",
				"order/line[1]: quantity must be positive",
				"order: note too long",
			},
		},
		{
			name: "derived type rules",
			doc: `<s:order xmlns:s="urn:example:shop" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:type="s:rush-order">
  <line><sku>SKU-1</sku><qty>1</qty></line></s:order>`,
			want: []string{"order: rush orders need a deadline"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := bc.Unmarshaller().Unmarshal(context.Background(), strings.NewReader(tt.doc))
			require.NoError(t, err)

			err = v.Validate(context.Background(), obj, orderType(t, f))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var vs Violations
			require.ErrorAs(t, err, &vs)
			got := make([]string, len(vs))
			for i, viol := range vs {
				got[i] = viol.Error()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateStructs(t *testing.T) {
	type Line struct {
		Sku string
		Qty int32
	}
	type Order struct {
		ID   string
		Note string
		Line []Line
	}
	f, _, _ := setup(t)
	types := marshal.NewTypeRegistry()
	types.MustRegister("example.Order", Order{})
	v, err := New(f, WithTypeNamer(types.NameOf))
	require.NoError(t, err)

	err = v.Validate(context.Background(), &Order{Line: []Line{{Sku: "SKU-9", Qty: 0}}}, orderType(t, f))
	var vs Violations
	require.ErrorAs(t, err, &vs)
	require.Len(t, vs, 1)
	assert.Equal(t, "order/line[0]", vs[0].Path)
	assert.Equal(t, "self.qty >= 1", vs[0].Rule)
}

func TestCompileRejectsBadRules(t *testing.T) {
	f, err := bts.ReadBindingFile(strings.NewReader(`
types:
  - name: thing
    rules:
      - expr: self.a +
    properties:
      - name: a
        type: xs:int
`))
	require.NoError(t, err)
	v, err := New(f)
	require.NoError(t, err)

	bt, ok := bts.Resolve(f, bts.ForTypeNamed(xml.Name{Local: "thing"}))
	require.True(t, ok)
	assert.ErrorIs(t, v.Compile(bt), ErrRule)
	assert.ErrorIs(t, v.Validate(context.Background(), map[string]any{"a": int32(1)}, bt), ErrRule)
}

func TestEnvOptions(t *testing.T) {
	f, err := bts.ReadBindingFile(strings.NewReader(`
types:
  - name: pair
    rules:
      - expr: is_even(self.n)
        message: n must be even
    properties:
      - name: n
        type: xs:int
`))
	require.NoError(t, err)
	bt, ok := bts.Resolve(f, bts.ForTypeNamed(xml.Name{Local: "pair"}))
	require.True(t, ok)

	isEven := celgo.Function("is_even",
		celgo.Overload("is_even_int", []*celgo.Type{celgo.IntType}, celgo.BoolType,
			celgo.UnaryBinding(func(v ref.Val) ref.Val {
				n, ok := v.(celtypes.Int)
				if !ok {
					return celtypes.MaybeNoSuchOverloadErr(v)
				}
				return celtypes.Bool(n%2 == 0)
			})))

	t.Run("unknown function without the option", func(t *testing.T) {
		v, err := New(f)
		require.NoError(t, err)
		assert.ErrorIs(t, v.Compile(bt), ErrRule)
	})

	t.Run("custom function", func(t *testing.T) {
		v, err := New(f, WithEnvOptions(isEven))
		require.NoError(t, err)
		require.NoError(t, v.Compile(bt))

		assert.NoError(t, v.Validate(context.Background(), map[string]any{"n": int32(4)}, bt))

		err = v.Validate(context.Background(), map[string]any{"n": int32(3)}, bt)
		var vs Violations
		require.ErrorAs(t, err, &vs)
		require.Len(t, vs, 1)
		assert.Equal(t, "n must be even", vs[0].Message)
	})

	t.Run("built-in functions stay available", func(t *testing.T) {
		v, err := New(f, WithEnvOptions(isEven))
		require.NoError(t, err)
		_, err = v.pool.GetExpression(`is_even(self.n) && has_key(self, "n")`)
		assert.NoError(t, err)
	})
}
