package marshal

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

// BindingContext ties a binding loader to a type table and a registry of
// Go types. It is safe for concurrent use; every Unmarshal or Marshal call
// gets its own session.
type BindingContext struct {
	loader     bts.BindingLoader
	table      *RuntimeTypeTable
	types      *TypeRegistry
	logger     *slog.Logger
	mode       ErrorMode
	prefixSeed string
	prefixes   map[string]string
}

// ContextOption configures a BindingContext.
type ContextOption func(*BindingContext)

// WithLogger sets the logger used by the context, its type table and its
// sessions.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(bc *BindingContext) {
		if logger != nil {
			bc.logger = logger
		}
	}
}

// WithTypes sets the registry that maps Go type names to struct types.
// Without one every complex value is a map[string]any.
func WithTypes(types *TypeRegistry) ContextOption {
	return func(bc *BindingContext) {
		bc.types = types
	}
}

// WithTypeTable shares a type table between contexts over the same loader.
func WithTypeTable(table *RuntimeTypeTable) ContextOption {
	return func(bc *BindingContext) {
		bc.table = table
	}
}

// WithErrorMode selects whether recoverable errors are collected or abort
// the call.
func WithErrorMode(mode ErrorMode) ContextOption {
	return func(bc *BindingContext) {
		bc.mode = mode
	}
}

// WithPrefixSeed sets the stem of generated namespace prefixes. The
// default "n" gives n1, n2 and so on.
func WithPrefixSeed(seed string) ContextOption {
	return func(bc *BindingContext) {
		if seed != "" {
			bc.prefixSeed = seed
		}
	}
}

// WithNamespacePrefixes fixes the prefixes of some namespaces.
func WithNamespacePrefixes(prefixes map[string]string) ContextOption {
	return func(bc *BindingContext) {
		for uri, p := range prefixes {
			bc.prefixes[uri] = p
		}
	}
}

// NewBindingContext returns a context over loader.
func NewBindingContext(loader bts.BindingLoader, opts ...ContextOption) *BindingContext {
	bc := &BindingContext{
		loader:     loader,
		logger:     slog.Default(),
		prefixSeed: "n",
		prefixes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.table == nil {
		bc.table = NewRuntimeTypeTable(bc.logger)
	}
	if bc.types == nil {
		bc.types = NewTypeRegistry()
	}
	return bc
}

// Loader returns the loader the context was built over.
func (bc *BindingContext) Loader() bts.BindingLoader { return bc.loader }

// Types returns the context's type registry.
func (bc *BindingContext) Types() *TypeRegistry { return bc.types }

// TypeTable returns the context's type table.
func (bc *BindingContext) TypeTable() *RuntimeTypeTable { return bc.table }

// Unmarshaller returns an unmarshaller bound to the context.
func (bc *BindingContext) Unmarshaller() *Unmarshaller { return &Unmarshaller{bc: bc} }

// Marshaller returns a marshaller bound to the context.
func (bc *BindingContext) Marshaller() *Marshaller { return &Marshaller{bc: bc} }

// Unmarshaller reads XML documents into Go values.
type Unmarshaller struct {
	bc *BindingContext
}

// NewResult returns a fresh session for callers that drive their own
// cursor.
func (u *Unmarshaller) NewResult(ctx context.Context) *UnmarshalResult {
	return newUnmarshalResult(ctx, u.bc)
}

// Unmarshal reads the document in r. When only recoverable errors were
// recorded the value is returned together with an ErrorList.
func (u *Unmarshaller) Unmarshal(ctx context.Context, r io.Reader) (any, error) {
	return u.UnmarshalCursor(ctx, xmlcursor.New(r))
}

// UnmarshalCursor reads the document at c.
func (u *Unmarshaller) UnmarshalCursor(ctx context.Context, c *xmlcursor.Cursor) (any, error) {
	return newUnmarshalResult(ctx, u.bc).Unmarshal(c)
}

// UnmarshalType reads the first element of r as schemaType bound to
// goType. An empty goType accepts whichever binding the loader maps
// schemaType to.
func (u *Unmarshaller) UnmarshalType(ctx context.Context, r io.Reader, schemaType bts.XmlTypeName, goType bts.GoTypeName) (any, error) {
	return newUnmarshalResult(ctx, u.bc).UnmarshalType(xmlcursor.New(r), schemaType, goType)
}

// Marshaller writes Go values as XML documents.
type Marshaller struct {
	bc *BindingContext
}

// Marshal prepares obj for writing under the global element bound to its
// Go type. The returned session yields the tokens.
func (m *Marshaller) Marshal(ctx context.Context, obj any) (*MarshalResult, error) {
	bc := m.bc
	gn, ok := bc.types.NameOf(obj)
	if !ok {
		return nil, fmt.Errorf("%w: no Go type name for %T", ErrRootTypeUnresolved, obj)
	}
	docName, ok := m.elementFor(gn)
	if !ok {
		return nil, fmt.Errorf("%w: no global element for %s", ErrRootTypeUnresolved, gn)
	}
	doc, ok := bc.loader.BindingType(docName)
	if !ok || doc.Kind != bts.Document {
		return nil, fmt.Errorf("%w: %s is not a document binding", ErrRootTypeUnresolved, docName)
	}
	bt, ok := bc.loader.BindingType(doc.ElementType)
	if !ok {
		return nil, fmt.Errorf("%w: element type %s", ErrRootTypeUnresolved, doc.ElementType)
	}
	r := newMarshalResult(ctx, bc)
	if err := r.marshalRoot(doc.Name.Xml.QName(), bt, obj); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalType prepares obj for writing as element of type schemaType
// bound to goType. An empty goType accepts whichever binding the loader
// maps schemaType to.
func (m *Marshaller) MarshalType(ctx context.Context, obj any, element xml.Name, schemaType bts.XmlTypeName, goType bts.GoTypeName) (*MarshalResult, error) {
	bc := m.bc
	bt, ok := bc.loader.BindingType(bts.ForPair(goType, schemaType))
	if !ok {
		if r, found := bts.Resolve(bc.loader, schemaType); found && (goType == "" || r.Name.Go == goType) {
			bt, ok = r, true
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: no binding for %s as %s", ErrRootTypeUnresolved, schemaType, goType)
	}
	r := newMarshalResult(ctx, bc)
	if err := r.marshalRoot(element, bt, obj); err != nil {
		return nil, err
	}
	return r, nil
}

// elementFor finds the global element for gn, or for the nearest base
// type that has one. The value then carries xsi:type.
func (m *Marshaller) elementFor(gn bts.GoTypeName) (bts.BindingTypeName, bool) {
	loader := m.bc.loader
	if name, ok := loader.LookupElementFor(gn); ok {
		return name, true
	}
	tn, ok := loader.LookupXmlFor(gn)
	for ok {
		bt, found := loader.BindingType(tn)
		if !found || bt.Base.IsZero() {
			break
		}
		if name, found := loader.LookupElementFor(bt.Base.Go); found {
			return name, true
		}
		tn = bt.Base
	}
	return bts.BindingTypeName{}, false
}
