package bts

import "sync"

// Go type names of the builtin bindings.
const (
	GoString  GoTypeName = "string"
	GoBool    GoTypeName = "bool"
	GoInt8    GoTypeName = "int8"
	GoInt16   GoTypeName = "int16"
	GoInt32   GoTypeName = "int32"
	GoInt64   GoTypeName = "int64"
	GoUint8   GoTypeName = "uint8"
	GoUint16  GoTypeName = "uint16"
	GoUint32  GoTypeName = "uint32"
	GoUint64  GoTypeName = "uint64"
	GoBigInt  GoTypeName = "*big.Int"
	GoDecimal GoTypeName = "*apd.Decimal"
	GoFloat32 GoTypeName = "float32"
	GoFloat64 GoTypeName = "float64"
	GoBytes   GoTypeName = "[]byte"
	GoTime    GoTypeName = "time.Time"
	GoPeriod  GoTypeName = "period.Period"
	GoQName   GoTypeName = "xml.Name"
	GoStrings GoTypeName = "[]string"
)

type builtinEntry struct {
	local  string
	goName GoTypeName
	item   string
}

// Order matters: the first schema type listed for a Go type is the one
// that Go type marshals to.
var builtinTable = []builtinEntry{
	{local: "string", goName: GoString},
	{local: "anySimpleType", goName: GoString},
	{local: "normalizedString", goName: GoString},
	{local: "token", goName: GoString},
	{local: "language", goName: GoString},
	{local: "Name", goName: GoString},
	{local: "NCName", goName: GoString},
	{local: "NMTOKEN", goName: GoString},
	{local: "ID", goName: GoString},
	{local: "IDREF", goName: GoString},
	{local: "ENTITY", goName: GoString},
	{local: "anyURI", goName: GoString},
	{local: "boolean", goName: GoBool},
	{local: "byte", goName: GoInt8},
	{local: "short", goName: GoInt16},
	{local: "int", goName: GoInt32},
	{local: "long", goName: GoInt64},
	{local: "unsignedByte", goName: GoUint8},
	{local: "unsignedShort", goName: GoUint16},
	{local: "unsignedInt", goName: GoUint32},
	{local: "unsignedLong", goName: GoUint64},
	{local: "integer", goName: GoBigInt},
	{local: "nonNegativeInteger", goName: GoBigInt},
	{local: "positiveInteger", goName: GoBigInt},
	{local: "nonPositiveInteger", goName: GoBigInt},
	{local: "negativeInteger", goName: GoBigInt},
	{local: "decimal", goName: GoDecimal},
	{local: "float", goName: GoFloat32},
	{local: "double", goName: GoFloat64},
	{local: "base64Binary", goName: GoBytes},
	{local: "hexBinary", goName: GoBytes},
	{local: "dateTime", goName: GoTime},
	{local: "date", goName: GoTime},
	{local: "time", goName: GoTime},
	{local: "gYear", goName: GoTime},
	{local: "gYearMonth", goName: GoTime},
	{local: "gMonth", goName: GoTime},
	{local: "gMonthDay", goName: GoTime},
	{local: "gDay", goName: GoTime},
	{local: "duration", goName: GoPeriod},
	{local: "QName", goName: GoQName},
	{local: "NMTOKENS", goName: GoStrings, item: "NMTOKEN"},
	{local: "IDREFS", goName: GoStrings, item: "IDREF"},
	{local: "ENTITIES", goName: GoStrings, item: "ENTITY"},
}

var (
	builtinOnce   sync.Once
	builtinLoader *BindingFile
)

// BuiltinLoader returns the loader holding every XML Schema builtin type. The
// loader is shared and read-only.
func BuiltinLoader() BindingLoader {
	builtinOnce.Do(func() {
		f := NewBindingFile(nil)
		for _, e := range builtinTable {
			name := BuiltinName(e.local)
			bt := &BindingType{Name: name, Kind: Builtin}
			if e.item != "" {
				bt.Kind = List
				bt.ItemType = BuiltinName(e.item)
			}
			// The table holds no duplicates.
			_ = f.Add(bt)
			f.AddPojoFor(name.Xml, name)
			f.AddXmlFor(name.Go, name)
		}
		builtinLoader = f
	})
	return builtinLoader
}

// BuiltinTypes returns every builtin binding, in table order.
func BuiltinTypes() []*BindingType {
	BuiltinLoader()
	return builtinLoader.Bindings()
}

// BuiltinName returns the binding name of the builtin schema type local,
// or the zero name if local is not a builtin.
func BuiltinName(local string) BindingTypeName {
	for _, e := range builtinTable {
		if e.local == local {
			return ForPair(e.goName, XmlTypeName{Namespace: XSDNamespace, Local: local, Kind: KindType})
		}
	}
	return BindingTypeName{}
}
