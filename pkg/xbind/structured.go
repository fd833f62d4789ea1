package xbind

import (
	"encoding/json"
	"encoding/xml"
	"math/big"
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rickb777/period"

	"github.com/twinfer/xbind/pkg/marshal"
)

// ToStructured converts a bound value into plain data that encoding/json
// writes without loss: numbers of arbitrary precision become json.Number,
// times become RFC 3339 strings, durations their ISO 8601 form, QNames
// their {namespace}local form, and structs maps keyed by field name.
func ToStructured(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *apd.Decimal:
		if x == nil {
			return nil
		}
		return json.Number(x.Text('f'))
	case *big.Int:
		if x == nil {
			return nil
		}
		return json.Number(x.String())
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case period.Period:
		return x.String()
	case xml.Name:
		return marshal.ClarkName(x)
	case []byte:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = ToStructured(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToStructured(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return ToStructured(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = ToStructured(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any)
		structFields(rv, out)
		return out
	}
	return v
}

// structFields copies the exported fields of rv into out, flattening
// embedded structs.
func structFields(rv reflect.Value, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				structFields(fv, out)
				continue
			}
		}
		out[f.Name] = ToStructured(fv.Interface())
	}
}
