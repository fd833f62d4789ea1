// Package xbind provides a high-level API for reading and writing XML with
// YAML binding files.
//
// Basic usage:
//
//	// Read a document into structured data
//	data, err := xbind.Unmarshal(doc, "path/to/bindings.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Convert XML to JSON
//	jsonData, err := xbind.XMLToJSON(doc, "path/to/bindings.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Convert JSON back to XML
//	xmlData, err := xbind.JSONToXML(jsonData, "path/to/bindings.yaml", xbind.WithRootElement("person"))
//	if err != nil {
//	    log.Fatal(err)
//	}
package xbind

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/marshal"
	"github.com/twinfer/xbind/pkg/validate"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

// ErrUnknownElement is returned when WithRootElement names no global
// element of the binding file.
var ErrUnknownElement = errors.New("unknown root element")

// Binder wraps the binding runtime with caching and configuration
type Binder struct {
	bindingCache map[string]*binding
	cacheMutex   sync.RWMutex
	logger       *slog.Logger
	options      options
}

// binding is everything derived from one binding file.
type binding struct {
	file      *bts.BindingFile
	table     *marshal.RuntimeTypeTable
	validator *validate.Validator
	loaded    time.Time
}

// options holds configuration for the binder
type options struct {
	rootElement   string
	logger        *slog.Logger
	enableCaching bool
	cacheTimeout  time.Duration
	errorMode     marshal.ErrorMode
	prefixSeed    string
	prefixes      map[string]string
	encoding      string
	xmlDecl       bool
	indent        string
	validation    bool
	types         *marshal.TypeRegistry
}

// Option is a function that configures binder options
type Option func(*options)

// WithRootElement sets the global element values are written as, either
// as a local name or in Clark notation ("{urn:example}person"). Values
// whose Go type is bound to an element need no root element.
func WithRootElement(name string) Option {
	return func(o *options) {
		o.rootElement = name
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCaching enables binding file caching with the specified timeout. A
// zero timeout keeps entries until ClearCache.
func WithCaching(timeout time.Duration) Option {
	return func(o *options) {
		o.enableCaching = true
		o.cacheTimeout = timeout
	}
}

// WithErrorMode selects whether recoverable errors are collected or abort
// the call.
func WithErrorMode(mode marshal.ErrorMode) Option {
	return func(o *options) {
		o.errorMode = mode
	}
}

// WithPrefixSeed sets the stem of generated namespace prefixes.
func WithPrefixSeed(seed string) Option {
	return func(o *options) {
		o.prefixSeed = seed
	}
}

// WithNamespacePrefixes fixes the prefixes of some namespaces in written
// documents.
func WithNamespacePrefixes(prefixes map[string]string) Option {
	return func(o *options) {
		o.prefixes = prefixes
	}
}

// WithEncoding sets the character encoding of written documents, by its
// WHATWG label ("windows-1252", "shift_jis", ...). Documents are UTF-8
// by default. A non-UTF-8 encoding implies an XML declaration.
func WithEncoding(label string) Option {
	return func(o *options) {
		o.encoding = label
	}
}

// WithXMLDeclaration writes an XML declaration before the root element.
func WithXMLDeclaration(enabled bool) Option {
	return func(o *options) {
		o.xmlDecl = enabled
	}
}

// WithIndent indents written documents by the given string per level.
func WithIndent(indent string) Option {
	return func(o *options) {
		o.indent = indent
	}
}

// WithValidation evaluates the rules of the binding file on every value
// read or written.
func WithValidation(enabled bool) Option {
	return func(o *options) {
		o.validation = enabled
	}
}

// WithTypes binds complex values to registered Go structs instead of maps.
func WithTypes(types *marshal.TypeRegistry) Option {
	return func(o *options) {
		o.types = types
	}
}

// defaultOptions returns the default configuration
func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		enableCaching: true,
		cacheTimeout:  5 * time.Minute,
		errorMode:     marshal.CollectErrors,
	}
}

// Global binder instance for convenience functions
var globalBinder *Binder
var globalBinderOnce sync.Once

// getGlobalBinder returns a singleton binder instance
func getGlobalBinder() *Binder {
	globalBinderOnce.Do(func() {
		globalBinder = NewBinder()
	})
	return globalBinder
}

// NewBinder creates a new binder instance with the given options
func NewBinder(opts ...Option) *Binder {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Binder{
		bindingCache: make(map[string]*binding),
		logger:       options.logger,
		options:      options,
	}
}

// Unmarshal reads an XML document using the specified binding file
func Unmarshal(data []byte, bindingPath string, opts ...Option) (any, error) {
	return getGlobalBinder().Unmarshal(context.Background(), data, bindingPath, opts...)
}

// UnmarshalWithContext reads an XML document using the specified binding file with a context
func UnmarshalWithContext(ctx context.Context, data []byte, bindingPath string, opts ...Option) (any, error) {
	return getGlobalBinder().Unmarshal(ctx, data, bindingPath, opts...)
}

// Marshal writes obj as an XML document using the specified binding file
func Marshal(obj any, bindingPath string, opts ...Option) ([]byte, error) {
	return getGlobalBinder().Marshal(context.Background(), obj, bindingPath, opts...)
}

// MarshalWithContext writes obj as an XML document with a context
func MarshalWithContext(ctx context.Context, obj any, bindingPath string, opts ...Option) ([]byte, error) {
	return getGlobalBinder().Marshal(ctx, obj, bindingPath, opts...)
}

// XMLToJSON reads an XML document and converts it to JSON
func XMLToJSON(data []byte, bindingPath string, opts ...Option) ([]byte, error) {
	return getGlobalBinder().XMLToJSON(context.Background(), data, bindingPath, opts...)
}

// JSONToXML converts JSON data to an XML document
func JSONToXML(jsonData []byte, bindingPath string, opts ...Option) ([]byte, error) {
	return getGlobalBinder().JSONToXML(context.Background(), jsonData, bindingPath, opts...)
}

// ValidateBindingFile loads a binding file without reading any document
func ValidateBindingFile(bindingPath string) error {
	return getGlobalBinder().ValidateBindingFile(bindingPath)
}

func (b *Binder) resolveOptions(opts []Option) options {
	options := b.options
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = b.logger
	}
	return options
}

func (b *Binder) bindingContext(bd *binding, o options) *marshal.BindingContext {
	opts := []marshal.ContextOption{
		marshal.WithLogger(o.logger),
		marshal.WithTypeTable(bd.table),
		marshal.WithErrorMode(o.errorMode),
		marshal.WithPrefixSeed(o.prefixSeed),
		marshal.WithNamespacePrefixes(o.prefixes),
	}
	if o.types != nil {
		opts = append(opts, marshal.WithTypes(o.types))
	}
	return marshal.NewBindingContext(bd.file, opts...)
}

// Unmarshal reads an XML document using the specified binding file. When
// only recoverable errors occurred the value is returned together with a
// marshal.ErrorList.
func (b *Binder) Unmarshal(ctx context.Context, data []byte, bindingPath string, opts ...Option) (any, error) {
	options := b.resolveOptions(opts)

	bd, err := b.loadBinding(bindingPath)
	if err != nil {
		return nil, fmt.Errorf("loading bindings: %w", err)
	}
	bc := b.bindingContext(bd, options)

	cursor := xmlcursor.New(bytes.NewReader(data))
	result, err := bc.Unmarshaller().UnmarshalCursor(ctx, cursor)
	var recorded marshal.ErrorList
	if err != nil && !errors.As(err, &recorded) {
		return nil, fmt.Errorf("unmarshalling: %w", err)
	}

	if options.validation && result != nil {
		if bt, ok := elementType(bd.file, cursor.Name()); ok {
			if verr := bd.validator.ForTypes(bc.Types().NameOf).Validate(ctx, result, bt); verr != nil {
				return result, errors.Join(err, verr)
			}
		}
	}
	return result, err
}

// Marshal writes obj as an XML document using the specified binding file
func (b *Binder) Marshal(ctx context.Context, obj any, bindingPath string, opts ...Option) ([]byte, error) {
	options := b.resolveOptions(opts)

	bd, err := b.loadBinding(bindingPath)
	if err != nil {
		return nil, fmt.Errorf("loading bindings: %w", err)
	}
	bc := b.bindingContext(bd, options)

	var (
		result *marshal.MarshalResult
		root   *bts.BindingType
	)
	if options.rootElement != "" {
		name, bt, ok := findElement(bd.file, options.rootElement)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownElement, options.rootElement)
		}
		root = bt
		result, err = bc.Marshaller().MarshalType(ctx, obj, name, bt.Name.Xml, bt.Name.Go)
	} else {
		result, err = bc.Marshaller().Marshal(ctx, obj)
	}
	if err != nil {
		return nil, fmt.Errorf("marshalling: %w", err)
	}

	if options.validation {
		if root == nil {
			root = boundType(bd.file, bc.Types(), obj)
		}
		if root != nil {
			if err := bd.validator.ForTypes(bc.Types().NameOf).Validate(ctx, obj, root); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := writeDocument(&buf, result, options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeDocument encodes result to w in the configured character encoding.
func writeDocument(w io.Writer, result *marshal.MarshalResult, o options) error {
	label := "utf-8"
	var tw *transform.Writer
	if o.encoding != "" {
		enc, err := htmlindex.Get(o.encoding)
		if err != nil {
			return fmt.Errorf("output encoding %q: %w", o.encoding, err)
		}
		if label, err = htmlindex.Name(enc); err != nil {
			return fmt.Errorf("output encoding %q: %w", o.encoding, err)
		}
		if enc != unicode.UTF8 {
			tw = transform.NewWriter(w, enc.NewEncoder())
			w = tw
		}
	}

	xe := xml.NewEncoder(w)
	if o.indent != "" {
		xe.Indent("", o.indent)
	}
	if o.xmlDecl || tw != nil {
		decl := fmt.Sprintf(`version="1.0" encoding="%s"`, strings.ToUpper(label))
		if err := xe.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte(decl)}); err != nil {
			return fmt.Errorf("writing declaration: %w", err)
		}
	}
	err := result.EncodeTo(xe)
	if tw != nil {
		if cerr := tw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("encoding output: %w", cerr)
		}
	}
	return err
}

// XMLToJSON reads an XML document and converts it to JSON
func (b *Binder) XMLToJSON(ctx context.Context, data []byte, bindingPath string, opts ...Option) ([]byte, error) {
	result, err := b.Unmarshal(ctx, data, bindingPath, opts...)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.MarshalIndent(ToStructured(result), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling to JSON: %w", err)
	}
	return jsonData, nil
}

// JSONToXML converts JSON data to an XML document. The JSON object needs
// a root element option or a marshal.TypeKey entry naming a Go type that
// is bound to an element.
func (b *Binder) JSONToXML(ctx context.Context, jsonData []byte, bindingPath string, opts ...Option) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("unmarshaling JSON: %w", err)
	}
	return b.Marshal(ctx, data, bindingPath, opts...)
}

// ValidateBindingFile loads a binding file and compiles its rules without
// reading any document
func (b *Binder) ValidateBindingFile(bindingPath string) error {
	bd, err := b.loadBinding(bindingPath)
	if err != nil {
		return err
	}
	for _, bt := range bd.file.Bindings() {
		if err := bd.validator.Compile(bt); err != nil {
			return err
		}
	}
	return nil
}

// loadBinding loads a binding file from disk with caching support
func (b *Binder) loadBinding(bindingPath string) (*binding, error) {
	if b.options.enableCaching {
		b.cacheMutex.RLock()
		cached, exists := b.bindingCache[bindingPath]
		b.cacheMutex.RUnlock()
		if exists && (b.options.cacheTimeout <= 0 || time.Since(cached.loaded) < b.options.cacheTimeout) {
			return cached, nil
		}
	}

	file, err := bts.LoadBindingFile(bindingPath)
	if err != nil {
		return nil, err
	}
	validator, err := validate.New(file, validate.WithLogger(b.logger))
	if err != nil {
		return nil, err
	}
	bd := &binding{
		file:      file,
		table:     marshal.NewRuntimeTypeTable(b.logger),
		validator: validator,
		loaded:    time.Now(),
	}
	b.logger.Debug("loaded binding file", "path", bindingPath, "bindings", len(file.Bindings()))

	if b.options.enableCaching {
		b.cacheMutex.Lock()
		b.bindingCache[bindingPath] = bd
		b.cacheMutex.Unlock()
	}
	return bd, nil
}

// ClearCache clears the binding file cache
func (b *Binder) ClearCache() {
	b.cacheMutex.Lock()
	defer b.cacheMutex.Unlock()
	b.bindingCache = make(map[string]*binding)
}

// findElement looks up a global element by Clark name or by local name.
func findElement(l bts.BindingLoader, name string) (xml.Name, *bts.BindingType, bool) {
	if strings.HasPrefix(name, "{") {
		ns, local, ok := strings.Cut(name[1:], "}")
		if !ok {
			return xml.Name{}, nil, false
		}
		qn := xml.Name{Space: ns, Local: local}
		bt, ok := elementType(l, qn)
		return qn, bt, ok
	}
	file, ok := l.(*bts.BindingFile)
	if !ok {
		return xml.Name{}, nil, false
	}
	for _, doc := range file.Bindings() {
		if doc.Kind == bts.Document && doc.Name.Xml.Local == name {
			qn := doc.Name.Xml.QName()
			bt, ok := elementType(l, qn)
			return qn, bt, ok
		}
	}
	return xml.Name{}, nil, false
}

// elementType returns the type of the global element called name.
func elementType(l bts.BindingLoader, name xml.Name) (*bts.BindingType, bool) {
	doc, ok := bts.Resolve(l, bts.ForGlobalName(bts.KindElement, name))
	if !ok || doc.Kind != bts.Document {
		return nil, false
	}
	return l.BindingType(doc.ElementType)
}

// boundType returns the binding of obj's Go type, or nil.
func boundType(l bts.BindingLoader, types *marshal.TypeRegistry, obj any) *bts.BindingType {
	gn, ok := types.NameOf(obj)
	if !ok {
		return nil
	}
	name, ok := l.LookupXmlFor(gn)
	if !ok {
		return nil
	}
	bt, _ := l.BindingType(name)
	return bt
}
