package marshal

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rickb777/period"

	"github.com/twinfer/xbind/internal/lexical"
)

// The to* helpers accept the Go type a converter produces, any other Go
// type holding the same value, and the lexical form as a string. That lets
// map-backed objects decoded from JSON marshal without a schema-aware
// conversion step.

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return fmt.Sprint(deref(v))
}

func toBool(v any) (bool, error) {
	switch x := deref(v).(type) {
	case bool:
		return x, nil
	case string:
		return lexical.ParseBoolean(x)
	}
	rv := reflect.ValueOf(deref(v))
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	return false, fmt.Errorf("cannot print %T as boolean", v)
}

func toInt64(v any, bits int) (int64, error) {
	var (
		n   int64
		err error
	)
	switch x := deref(v).(type) {
	case json.Number:
		n, err = lexical.ParseInt(string(x), 64)
	case string:
		n, err = lexical.ParseInt(x, 64)
	case big.Int:
		if !x.IsInt64() {
			return 0, fmt.Errorf("integer %s out of range", x.String())
		}
		n = x.Int64()
	default:
		rv := reflect.ValueOf(x)
		switch {
		case rv.CanInt():
			n = rv.Int()
		case rv.CanUint():
			u := rv.Uint()
			if u > math.MaxInt64 {
				return 0, fmt.Errorf("integer %d out of range", u)
			}
			n = int64(u)
		case rv.CanFloat():
			f := rv.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return 0, fmt.Errorf("%v is not an integer", f)
			}
			n = int64(f)
		default:
			return 0, fmt.Errorf("cannot print %T as integer", v)
		}
	}
	if err != nil {
		return 0, err
	}
	if bits < 64 && (n < -1<<(bits-1) || n >= 1<<(bits-1)) {
		return 0, fmt.Errorf("integer %d out of range for %d bits", n, bits)
	}
	return n, nil
}

func toUint64(v any, bits int) (uint64, error) {
	var (
		n   uint64
		err error
	)
	switch x := deref(v).(type) {
	case json.Number:
		n, err = lexical.ParseUint(string(x), 64)
	case string:
		n, err = lexical.ParseUint(x, 64)
	case big.Int:
		if !x.IsUint64() {
			return 0, fmt.Errorf("unsigned integer %s out of range", x.String())
		}
		n = x.Uint64()
	default:
		rv := reflect.ValueOf(x)
		switch {
		case rv.CanUint():
			n = rv.Uint()
		case rv.CanInt():
			i := rv.Int()
			if i < 0 {
				return 0, fmt.Errorf("unsigned integer %d is negative", i)
			}
			n = uint64(i)
		case rv.CanFloat():
			f := rv.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return 0, fmt.Errorf("%v is not an unsigned integer", f)
			}
			n = uint64(f)
		default:
			return 0, fmt.Errorf("cannot print %T as unsigned integer", v)
		}
	}
	if err != nil {
		return 0, err
	}
	if bits < 64 && n >= 1<<bits {
		return 0, fmt.Errorf("unsigned integer %d out of range for %d bits", n, bits)
	}
	return n, nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x != nil {
			return x, nil
		}
	case big.Int:
		return &x, nil
	case json.Number:
		return lexical.ParseInteger(string(x))
	case string:
		return lexical.ParseInteger(x)
	}
	rv := reflect.ValueOf(deref(v))
	switch {
	case rv.CanInt():
		return big.NewInt(rv.Int()), nil
	case rv.CanUint():
		return new(big.Int).SetUint64(rv.Uint()), nil
	case rv.CanFloat():
		f := rv.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", f)
		}
		n, _ := big.NewFloat(f).Int(nil)
		return n, nil
	}
	return nil, fmt.Errorf("cannot print %T as integer", v)
}

func toDecimal(v any) (*apd.Decimal, error) {
	switch x := v.(type) {
	case *apd.Decimal:
		if x != nil {
			return x, nil
		}
	case apd.Decimal:
		return &x, nil
	case json.Number:
		return lexical.ParseDecimal(string(x))
	case string:
		return lexical.ParseDecimal(x)
	case *big.Int:
		return lexical.ParseDecimal(x.String())
	}
	rv := reflect.ValueOf(deref(v))
	switch {
	case rv.CanInt():
		return apd.New(rv.Int(), 0), nil
	case rv.CanUint():
		return lexical.ParseDecimal(fmt.Sprint(rv.Uint()))
	case rv.CanFloat():
		d, err := new(apd.Decimal).SetFloat64(rv.Float())
		if err != nil {
			return nil, fmt.Errorf("%v is not a decimal: %w", rv.Float(), err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot print %T as decimal", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return lexical.ParseFloat(string(x), 64)
	case string:
		return lexical.ParseFloat(x, 64)
	case *apd.Decimal:
		if x != nil {
			return x.Float64()
		}
	case *big.Int:
		if x != nil {
			f, _ := new(big.Float).SetInt(x).Float64()
			return f, nil
		}
	}
	rv := reflect.ValueOf(deref(v))
	switch {
	case rv.CanFloat():
		return rv.Float(), nil
	case rv.CanInt():
		return float64(rv.Int()), nil
	case rv.CanUint():
		return float64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("cannot print %T as float", v)
}

func toBytes(v any, hexFirst bool) ([]byte, error) {
	switch x := deref(v).(type) {
	case []byte:
		return x, nil
	case string:
		if hexFirst {
			if b, err := hex.DecodeString(strings.TrimSpace(x)); err == nil {
				return b, nil
			}
		}
		if b, err := base64.StdEncoding.DecodeString(strings.Join(lexical.Fields(x), "")); err == nil {
			return b, nil
		}
		return nil, fmt.Errorf("string %q is neither base64 nor hex", x)
	}
	rv := reflect.ValueOf(deref(v))
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), nil
	}
	return nil, fmt.Errorf("cannot print %T as binary", v)
}

func toTime(v any, c lexical.Calendar) (time.Time, error) {
	switch x := deref(v).(type) {
	case time.Time:
		return x, nil
	case string:
		if t, err := lexical.ParseCalendar(c, x); err == nil {
			return t, nil
		}
		if t, err := lexical.ParseCalendar(lexical.DateTime, x); err == nil {
			return t, nil
		}
		return time.Parse(time.RFC3339Nano, x)
	}
	return time.Time{}, fmt.Errorf("cannot print %T as %s", v, c)
}

func toPeriod(v any) (period.Period, error) {
	switch x := deref(v).(type) {
	case period.Period:
		return x, nil
	case string:
		return lexical.ParseDuration(x)
	}
	return period.Period{}, fmt.Errorf("cannot print %T as duration", v)
}

// toQName accepts xml.Name and strings in {namespace}local notation.
func toQName(v any) (xml.Name, error) {
	switch x := deref(v).(type) {
	case xml.Name:
		return x, nil
	case string:
		if strings.HasPrefix(x, "{") {
			if space, local, ok := strings.Cut(x[1:], "}"); ok && local != "" {
				return xml.Name{Space: space, Local: local}, nil
			}
			return xml.Name{}, fmt.Errorf("malformed QName %q", x)
		}
		return xml.Name{Local: x}, nil
	}
	return xml.Name{}, fmt.Errorf("cannot print %T as QName", v)
}

// ClarkName returns n in {namespace}local notation, the string form toQName
// reads back.
func ClarkName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}
