package cel

import (
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// RuleFunctions returns numeric helpers for rules over bound values:
// abs, ceil, floor and round on numbers, and list_min, list_max and sum
// over repeated properties.
func RuleFunctions() cel.EnvOption {
	return cel.Lib(&ruleLib{})
}

type ruleLib struct{}

func (*ruleLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("abs",
			cel.Overload("abs_int", []*cel.Type{cel.IntType}, cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					x, ok := val.(types.Int)
					if !ok {
						return types.NewErr("expected int argument to abs, got %T", val)
					}
					if x < 0 {
						return -x
					}
					return x
				}),
			),
			cel.Overload("abs_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					x, ok := val.(types.Double)
					if !ok {
						return types.NewErr("expected double argument to abs, got %T", val)
					}
					return types.Double(math.Abs(float64(x)))
				}),
			),
		),
		doubleFunction("ceil", math.Ceil),
		doubleFunction("floor", math.Floor),
		doubleFunction("round", math.Round),

		cel.Function("list_min",
			cel.Overload("list_min_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					return extreme(val, types.IntNegOne, "list_min")
				}),
			),
		),
		cel.Function("list_max",
			cel.Overload("list_max_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					return extreme(val, types.IntOne, "list_max")
				}),
			),
		),

		// sum is int over ints and double as soon as one item is not.
		cel.Function("sum",
			cel.Overload("sum_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					list, ok := val.(traits.Lister)
					if !ok {
						return types.NewErr("expected list for sum function")
					}
					var (
						isum  int64
						fsum  float64
						float bool
					)
					size := list.Size().(types.Int)
					for i := types.Int(0); i < size; i++ {
						switch x := list.Get(i).(type) {
						case types.Int:
							isum += int64(x)
						case types.Uint:
							isum += int64(x)
						case types.Double:
							fsum += float64(x)
							float = true
						default:
							return types.NewErr("sum: %v is not a number", x.Type())
						}
					}
					if float {
						return types.Double(fsum + float64(isum))
					}
					return types.Int(isum)
				}),
			),
		),
	}
}

func (*ruleLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func doubleFunction(name string, fn func(float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
			cel.UnaryBinding(func(val ref.Val) ref.Val {
				x, ok := val.(types.Double)
				if !ok {
					return types.NewErr("expected double argument to %s, got %T", name, val)
				}
				return types.Double(fn(float64(x)))
			}),
		),
	)
}

// extreme returns the item of the list that compares as want against
// every other item.
func extreme(val ref.Val, want types.Int, name string) ref.Val {
	list, ok := val.(traits.Lister)
	if !ok {
		return types.NewErr("expected list for %s function", name)
	}
	size := list.Size().(types.Int)
	if size == 0 {
		return types.NewErr("%s of empty list", name)
	}
	best := list.Get(types.Int(0))
	for i := types.Int(1); i < size; i++ {
		elem := list.Get(i)
		c, ok := elem.(traits.Comparer)
		if !ok {
			return types.NewErr("%s: %v is not comparable", name, elem.Type())
		}
		if c.Compare(best) == want {
			best = elem
		}
	}
	return best
}
