package lexical

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// ErrEmpty is returned when a value that cannot be empty is empty after
// whitespace processing.
var ErrEmpty = errors.New("empty lexical value")

// ParseBoolean parses the xs:boolean lexical space {true, false, 1, 0}.
func ParseBoolean(s string) (bool, error) {
	switch Normalize(Collapse, s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	case "":
		return false, fmt.Errorf("invalid boolean: %w", ErrEmpty)
	}
	return false, fmt.Errorf("invalid boolean: %q", s)
}

// PrintBoolean returns the canonical form of b.
func PrintBoolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseInt parses a signed integer that must fit in bits.
func ParseInt(s string, bits int) (int64, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return 0, fmt.Errorf("invalid integer: %w", ErrEmpty)
	}
	if !isInteger(v) {
		return 0, fmt.Errorf("invalid integer: %q", s)
	}
	n, err := strconv.ParseInt(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("integer %q out of range for %d bits", v, bits)
	}
	return n, nil
}

// ParseUint parses an unsigned integer that must fit in bits. A negative
// zero is accepted.
func ParseUint(s string, bits int) (uint64, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return 0, fmt.Errorf("invalid unsigned integer: %w", ErrEmpty)
	}
	if !isInteger(v) {
		return 0, fmt.Errorf("invalid unsigned integer: %q", s)
	}
	switch v[0] {
	case '+':
		v = v[1:]
	case '-':
		if strings.Trim(v[1:], "0") != "" {
			return 0, fmt.Errorf("unsigned integer %q is negative", v)
		}
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("unsigned integer %q out of range for %d bits", v, bits)
	}
	return n, nil
}

// ParseInteger parses an xs:integer of arbitrary size.
func ParseInteger(s string) (*big.Int, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return nil, fmt.Errorf("invalid integer: %w", ErrEmpty)
	}
	if !isInteger(v) {
		return nil, fmt.Errorf("invalid integer: %q", s)
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "+"), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %q", s)
	}
	return n, nil
}

// PrintInteger returns the canonical form of n.
func PrintInteger(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// ParseDecimal parses an xs:decimal keeping every digit, including
// trailing fractional zeros.
func ParseDecimal(s string) (*apd.Decimal, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return nil, fmt.Errorf("invalid decimal: %w", ErrEmpty)
	}
	if !isDecimal(v) {
		return nil, fmt.Errorf("invalid decimal: %q", s)
	}
	v = strings.TrimPrefix(v, "+")
	if strings.HasSuffix(v, ".") {
		v += "0"
	}
	if strings.HasPrefix(v, ".") {
		v = "0" + v
	} else if strings.HasPrefix(v, "-.") {
		v = "-0" + v[1:]
	}
	d, _, err := apd.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// PrintDecimal returns the plain (exponent free) form of d.
func PrintDecimal(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.Text('f')
}

// ParseFloat parses xs:float (bits 32) or xs:double (bits 64), including
// INF, -INF and NaN.
func ParseFloat(s string, bits int) (float64, error) {
	v := Normalize(Collapse, s)
	switch v {
	case "":
		return 0, fmt.Errorf("invalid float: %w", ErrEmpty)
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	if !isFloat(v) {
		return 0, fmt.Errorf("invalid float: %q", s)
	}
	f, err := strconv.ParseFloat(v, bits)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("invalid float: %q", s)
	}
	return f, nil
}

// PrintFloat returns the shortest form of f that parses back to the same
// value at the given precision.
func PrintFloat(f float64, bits int) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func isInteger(v string) bool {
	if v[0] == '+' || v[0] == '-' {
		v = v[1:]
	}
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

func isDecimal(v string) bool {
	if v[0] == '+' || v[0] == '-' {
		v = v[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func isFloat(v string) bool {
	mantissa, exp, hasExp := strings.Cut(strings.ReplaceAll(v, "E", "e"), "e")
	if !isDecimal(mantissa) {
		return false
	}
	return !hasExp || (exp != "" && isInteger(exp))
}
