package cel

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/rickb777/period"
)

// SelfVariable is the name rules use for the value being validated.
const SelfVariable = "self"

// NewEnvironment creates a CEL environment for validation rules. The value
// under validation is bound to self.
func NewEnvironment() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.CustomTypeAdapter(NewValueAdapter()),
		cel.Variable(SelfVariable, cel.DynType),
		cel.StdLib(),
		ErrorHandlingFunctions(),
		XMLFunctions(),
		RuleFunctions(),
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func ErrorHandlingFunctions() cel.EnvOption {
	return cel.Lib(&errorLib{})
}

type errorLib struct{}

func (*errorLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("error",
			cel.Overload("error_string", []*cel.Type{cel.StringType}, cel.AnyType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					msg, ok := val.(types.String)
					if !ok {
						return types.NewErr("expected string for error message")
					}
					return types.NewErr("%s", msg)
				}),
			),
		),
		cel.Function("isError",
			cel.Overload("iserror_any", []*cel.Type{cel.AnyType}, cel.BoolType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					return types.Bool(types.IsError(val))
				}),
			),
		),
	}
}

func (*errorLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// XMLFunctions adds helpers for values that came out of XML documents.
func XMLFunctions() cel.EnvOption {
	return cel.Lib(&xmlLib{})
}

type xmlLib struct{}

func (*xmlLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		// has_key(map, key) works on the string keyed maps of structured
		// objects, where the has() macro needs a field selection.
		cel.Function("has_key",
			cel.Overload("has_key_map_string", []*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType}, cel.BoolType,
				cel.BinaryBinding(func(m, k ref.Val) ref.Val {
					mapper, ok := m.(traits.Mapper)
					if !ok {
						return types.NewErr("has_key: not a map")
					}
					_, found := mapper.Find(k)
					return types.Bool(found)
				}),
			),
		),
		// local_name("{urn}x") returns "x"; QName values are Clark names.
		cel.Function("local_name",
			cel.Overload("local_name_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					s, ok := val.(types.String)
					if !ok {
						return types.NewErr("local_name: expected string")
					}
					str := string(s)
					for i := len(str) - 1; i >= 0; i-- {
						if str[i] == '}' {
							return types.String(str[i+1:])
						}
					}
					return s
				}),
			),
		),
	}
}

func (*xmlLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// ValueAdapter extends the default type adapter with the Go types XML
// bindings produce.
type ValueAdapter struct {
	types.Adapter
}

// NewValueAdapter creates a new type adapter.
func NewValueAdapter() *ValueAdapter {
	return &ValueAdapter{
		Adapter: types.DefaultTypeAdapter,
	}
}

// NativeToValue converts Go native types to CEL values.
func (a *ValueAdapter) NativeToValue(value any) ref.Val {
	switch v := value.(type) {
	case int8:
		return types.Int(v)
	case int16:
		return types.Int(v)
	case int32:
		return types.Int(v)
	case uint8:
		return types.Int(v)
	case uint16:
		return types.Int(v)
	case uint32:
		return types.Uint(v)
	case float32:
		return types.Double(v)
	}
	return a.Adapter.NativeToValue(Normalize(value))
}

// Normalize converts a value built by the binding runtime into one the
// default CEL adapter understands: structs and string keyed maps become
// map[string]any, slices []any, decimals and big integers numbers,
// durations time.Duration and QNames Clark strings.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *apd.Decimal:
		if x == nil {
			return nil
		}
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return string(x)
	case period.Period:
		return x.DurationApprox()
	case xml.Name:
		if x.Space == "" {
			return x.Local
		}
		return "{" + x.Space + "}" + x.Local
	case time.Time, time.Duration, []byte, string, bool:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				if inner, ok := Normalize(rv.Field(i).Interface()).(map[string]any); ok {
					for k, e := range inner {
						out[k] = e
					}
				}
				continue
			}
			out[f.Name] = Normalize(rv.Field(i).Interface())
		}
		return out
	}
	return v
}

// RefValueToValue converts a CEL ref.Val back to a Go value
func RefValueToValue(val ref.Val) (any, error) {
	if val == nil {
		return nil, nil
	}

	if types.IsError(val) {
		return nil, fmt.Errorf("CEL error: %v", val)
	}

	if types.IsUnknown(val) {
		return nil, fmt.Errorf("unknown CEL value")
	}

	return val.Value(), nil
}
