package marshal

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/twinfer/xbind/internal/lexical"
	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

var errNilValue = errors.New("nil value has no lexical form")

type parseFunc func(lex string, ns lexical.NamespaceResolver) (any, error)

type printFunc func(v any, r *MarshalResult) (string, error)

type builtin struct {
	ws    lexical.Whitespace
	parse parseFunc
	print printFunc
}

func stringBuiltin(ws lexical.Whitespace) builtin {
	return builtin{
		ws:    ws,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) { return lex, nil },
		print: func(v any, _ *MarshalResult) (string, error) { return lexical.Normalize(ws, toString(v)), nil },
	}
}

func intBuiltin(bits int, wrap func(int64) any) builtin {
	return builtin{
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			n, err := lexical.ParseInt(lex, bits)
			if err != nil {
				return nil, err
			}
			return wrap(n), nil
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			n, err := toInt64(v, bits)
			if err != nil {
				return "", err
			}
			return strconv.FormatInt(n, 10), nil
		},
	}
}

func uintBuiltin(bits int, wrap func(uint64) any) builtin {
	return builtin{
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			n, err := lexical.ParseUint(lex, bits)
			if err != nil {
				return nil, err
			}
			return wrap(n), nil
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			n, err := toUint64(v, bits)
			if err != nil {
				return "", err
			}
			return strconv.FormatUint(n, 10), nil
		},
	}
}

var integerBuiltin = builtin{
	ws: lexical.Collapse,
	parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
		return lexical.ParseInteger(lex)
	},
	print: func(v any, _ *MarshalResult) (string, error) {
		n, err := toBigInt(v)
		if err != nil {
			return "", err
		}
		return lexical.PrintInteger(n), nil
	},
}

func floatBuiltin(bits int) builtin {
	return builtin{
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			f, err := lexical.ParseFloat(lex, bits)
			if err != nil {
				return nil, err
			}
			if bits == 32 {
				return float32(f), nil
			}
			return f, nil
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			f, err := toFloat64(v)
			if err != nil {
				return "", err
			}
			return lexical.PrintFloat(f, bits), nil
		},
	}
}

func binaryBuiltin(hex bool) builtin {
	decode, encode := lexical.ParseBase64, lexical.PrintBase64
	if hex {
		decode, encode = lexical.ParseHex, lexical.PrintHex
	}
	return builtin{
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			return decode(lex)
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			b, err := toBytes(v, hex)
			if err != nil {
				return "", err
			}
			return encode(b), nil
		},
	}
}

func calendarBuiltin(c lexical.Calendar) builtin {
	return builtin{
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			return lexical.ParseCalendar(c, lex)
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			t, err := toTime(v, c)
			if err != nil {
				return "", err
			}
			return lexical.PrintCalendar(c, t), nil
		},
	}
}

var builtins = map[string]builtin{
	"string":           stringBuiltin(lexical.Preserve),
	"anySimpleType":    stringBuiltin(lexical.Preserve),
	"normalizedString": stringBuiltin(lexical.Replace),
	"token":            stringBuiltin(lexical.Collapse),
	"language":         stringBuiltin(lexical.Collapse),
	"Name":             stringBuiltin(lexical.Collapse),
	"NCName":           stringBuiltin(lexical.Collapse),
	"NMTOKEN":          stringBuiltin(lexical.Collapse),
	"ID":               stringBuiltin(lexical.Collapse),
	"IDREF":            stringBuiltin(lexical.Collapse),
	"ENTITY":           stringBuiltin(lexical.Collapse),
	"anyURI":           stringBuiltin(lexical.Collapse),
	"boolean": {
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			return lexical.ParseBoolean(lex)
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			b, err := toBool(v)
			if err != nil {
				return "", err
			}
			return lexical.PrintBoolean(b), nil
		},
	},
	"byte":               intBuiltin(8, func(n int64) any { return int8(n) }),
	"short":              intBuiltin(16, func(n int64) any { return int16(n) }),
	"int":                intBuiltin(32, func(n int64) any { return int32(n) }),
	"long":               intBuiltin(64, func(n int64) any { return n }),
	"unsignedByte":       uintBuiltin(8, func(n uint64) any { return uint8(n) }),
	"unsignedShort":      uintBuiltin(16, func(n uint64) any { return uint16(n) }),
	"unsignedInt":        uintBuiltin(32, func(n uint64) any { return uint32(n) }),
	"unsignedLong":       uintBuiltin(64, func(n uint64) any { return n }),
	"integer":            integerBuiltin,
	"nonNegativeInteger": integerBuiltin,
	"positiveInteger":    integerBuiltin,
	"nonPositiveInteger": integerBuiltin,
	"negativeInteger":    integerBuiltin,
	"decimal": {
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			return lexical.ParseDecimal(lex)
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			d, err := toDecimal(v)
			if err != nil {
				return "", err
			}
			return lexical.PrintDecimal(d), nil
		},
	},
	"float":        floatBuiltin(32),
	"double":       floatBuiltin(64),
	"base64Binary": binaryBuiltin(false),
	"hexBinary":    binaryBuiltin(true),
	"dateTime":     calendarBuiltin(lexical.DateTime),
	"date":         calendarBuiltin(lexical.Date),
	"time":         calendarBuiltin(lexical.Time),
	"gYear":        calendarBuiltin(lexical.GYear),
	"gYearMonth":   calendarBuiltin(lexical.GYearMonth),
	"gMonth":       calendarBuiltin(lexical.GMonth),
	"gMonthDay":    calendarBuiltin(lexical.GMonthDay),
	"gDay":         calendarBuiltin(lexical.GDay),
	"duration": {
		ws: lexical.Collapse,
		parse: func(lex string, _ lexical.NamespaceResolver) (any, error) {
			return lexical.ParseDuration(lex)
		},
		print: func(v any, _ *MarshalResult) (string, error) {
			p, err := toPeriod(v)
			if err != nil {
				return "", err
			}
			return lexical.PrintDuration(p), nil
		},
	},
	"QName": {
		ws: lexical.Collapse,
		parse: func(lex string, ns lexical.NamespaceResolver) (any, error) {
			return lexical.ParseQName(lex, ns)
		},
		print: func(v any, r *MarshalResult) (string, error) {
			n, err := toQName(v)
			if err != nil {
				return "", err
			}
			return lexical.PrintQName(r.ensurePrefix(n.Space), n.Local), nil
		},
	},
}

// simpleConverter handles one builtin primitive.
type simpleConverter struct {
	bt *bts.BindingType
	builtin
}

func newBuiltinConverter(bt *bts.BindingType) (converter, error) {
	x := bt.Name.Xml
	b, ok := builtins[x.Local]
	if x.Namespace != bts.XSDNamespace || !ok {
		return nil, fmt.Errorf("%w: %s is not a builtin type", ErrNoConverter, x)
	}
	return &simpleConverter{bt: bt, builtin: b}, nil
}

func (c *simpleConverter) BindingType() *bts.BindingType { return c.bt }

func (c *simpleConverter) Simple() bool { return true }

func (c *simpleConverter) Unmarshal(s *UnmarshalResult) (any, error) {
	return unmarshalText(c, s)
}

func (c *simpleConverter) UnmarshalAttribute(s *UnmarshalResult) (any, error) {
	return c.parseLexical(s.CurrentAttributeValue(), s, s.Location())
}

func (c *simpleConverter) parseLexical(lex string, s *UnmarshalResult, loc xmlcursor.Location) (any, error) {
	var ns lexical.NamespaceResolver = noNamespaces{}
	if s != nil && s.cursor != nil {
		ns = s.cursor
	}
	v, err := c.parse(lexical.Normalize(c.ws, lex), ns)
	if err != nil {
		return nil, xmlcursor.NewInvalidLexicalValue(lex, err, loc)
	}
	return v, nil
}

func (c *simpleConverter) Print(v any, r *MarshalResult) (string, error) {
	if isNil(v) {
		return "", errNilValue
	}
	return c.print(v, r)
}

// unmarshalText reads the text of the current element and converts it.
func unmarshalText(c lexicalConverter, s *UnmarshalResult) (any, error) {
	loc := s.Location()
	lex, err := s.stringValue()
	if errors.Is(err, xmlcursor.ErrUnexpectedElement) {
		return nil, xmlcursor.NewInvalidLexicalValue(lex, err, loc)
	}
	if err != nil {
		return nil, err
	}
	return c.parseLexical(lex, s, loc)
}

type noNamespaces struct{}

func (noNamespaces) LookupNamespace(string) (string, bool) { return "", false }

// restrictionConverter behaves as its builtin base.
type restrictionConverter struct {
	bt   *bts.BindingType
	base lexicalConverter
}

func (c *restrictionConverter) initialize(b *builder) error {
	base, err := b.lexicalFor(c.bt.Name.String(), c.bt.AsIf)
	if err != nil {
		return err
	}
	c.base = base
	return nil
}

func (c *restrictionConverter) BindingType() *bts.BindingType { return c.bt }

func (c *restrictionConverter) Simple() bool { return true }

func (c *restrictionConverter) Unmarshal(s *UnmarshalResult) (any, error) {
	return c.base.Unmarshal(s)
}

func (c *restrictionConverter) UnmarshalAttribute(s *UnmarshalResult) (any, error) {
	return c.base.UnmarshalAttribute(s)
}

func (c *restrictionConverter) parseLexical(lex string, s *UnmarshalResult, loc xmlcursor.Location) (any, error) {
	return c.base.parseLexical(lex, s, loc)
}

func (c *restrictionConverter) Print(v any, r *MarshalResult) (string, error) {
	return c.base.Print(v, r)
}

// listConverter handles whitespace separated lists of a simple item type.
// Unmarshalled lists are []any; struct fields of any slice type accept
// them.
type listConverter struct {
	bt   *bts.BindingType
	item lexicalConverter
}

func (c *listConverter) initialize(b *builder) error {
	item, err := b.lexicalFor(c.bt.Name.String(), c.bt.ItemType)
	if err != nil {
		return err
	}
	if _, nested := item.(*listConverter); nested {
		return fmt.Errorf("%w: list %s of list %s", ErrNoConverter, c.bt.Name, c.bt.ItemType)
	}
	c.item = item
	return nil
}

func (c *listConverter) BindingType() *bts.BindingType { return c.bt }

func (c *listConverter) Simple() bool { return true }

func (c *listConverter) Unmarshal(s *UnmarshalResult) (any, error) {
	return unmarshalText(c, s)
}

func (c *listConverter) UnmarshalAttribute(s *UnmarshalResult) (any, error) {
	return c.parseLexical(s.CurrentAttributeValue(), s, s.Location())
}

func (c *listConverter) parseLexical(lex string, s *UnmarshalResult, loc xmlcursor.Location) (any, error) {
	fields := lexical.Fields(lex)
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		v, err := c.item.parseLexical(f, s, loc)
		if err != nil {
			return nil, xmlcursor.NewInvalidLexicalValue(lex, errors.Unwrap(err), loc)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *listConverter) Print(v any, r *MarshalResult) (string, error) {
	if isNil(v) {
		return "", errNilValue
	}
	if s, ok := v.(string); ok {
		v = lexical.Fields(s)
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return "", fmt.Errorf("cannot print %T as a list", v)
	}
	items := make([]string, rv.Len())
	for i := range items {
		s, err := c.item.Print(rv.Index(i).Interface(), r)
		if err != nil {
			return "", fmt.Errorf("list item %d: %w", i, err)
		}
		items[i] = s
	}
	return strings.Join(items, " "), nil
}

// nilConverter consumes an element carrying xsi:nil and yields nil.
type nilConverter struct{}

var theNilConverter TypeUnmarshaller = nilConverter{}

func (nilConverter) Unmarshal(s *UnmarshalResult) (any, error) {
	if s.cursor.IsStartElement() {
		if err := s.skipElement(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (nilConverter) UnmarshalAttribute(*UnmarshalResult) (any, error) {
	return nil, nil
}
