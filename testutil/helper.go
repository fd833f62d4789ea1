// Package testutil holds go-cmp options shared by the tests of several
// packages.
package testutil

import (
	"math"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/go-cmp/cmp"
)

// ConvertToInt64 converts various numeric types to int64 for comparison.
// Returns the int64 value and a boolean indicating success.
func ConvertToInt64(i any) (int64, bool) {
	switch v := i.(type) {
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case float32:
		if v == float32(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// NumericComparer treats integers of different Go types holding the same
// value as equal, e.g. the int32 a binding produces and the int64 a test
// expects.
var NumericComparer = cmp.FilterValues(func(x, y any) bool {
	_, xOk := ConvertToInt64(x)
	_, yOk := ConvertToInt64(y)
	return xOk && yOk
}, cmp.Comparer(func(x, y any) bool {
	xInt, _ := ConvertToInt64(x)
	yInt, _ := ConvertToInt64(y)
	return xInt == yInt
}))

// DecimalComparer compares decimals by value, so 1.50 equals 1.5.
var DecimalComparer = cmp.Comparer(func(x, y *apd.Decimal) bool {
	if x == nil || y == nil {
		return x == y
	}
	return x.Cmp(y) == 0
})

// BigIntComparer compares big integers by value.
var BigIntComparer = cmp.Comparer(func(x, y *big.Int) bool {
	if x == nil || y == nil {
		return x == y
	}
	return x.Cmp(y) == 0
})

// TimeComparer compares instants, ignoring the location.
var TimeComparer = cmp.Comparer(func(x, y time.Time) bool {
	return x.Equal(y)
})

// Options returns every comparer in this package.
func Options() cmp.Options {
	return cmp.Options{NumericComparer, DecimalComparer, BigIntComparer, TimeComparer}
}

// FilterMapKeys recursively creates a new map from 'source' containing only keys present in 'reference'.
func FilterMapKeys(source map[string]any, reference map[string]any) map[string]any {
	result := make(map[string]any)
	for key, refVal := range reference {
		if srcVal, ok := source[key]; ok {
			if refSubMap, refIsMap := refVal.(map[string]any); refIsMap {
				if srcSubMap, srcIsMap := srcVal.(map[string]any); srcIsMap {
					result[key] = FilterMapKeys(srcSubMap, refSubMap)
				} else {
					result[key] = srcVal // Type mismatch, will be caught by cmp.Diff
				}
			} else {
				result[key] = srcVal
			}
		}
	}
	return result
}
