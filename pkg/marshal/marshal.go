package marshal

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"

	"github.com/twinfer/xbind/pkg/bts"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// MarshalResult is the state of one marshal call. Tokens are pulled with
// Next or written to an encoder with EncodeTo. Prefixes are allocated once
// per namespace for the whole call and declared on the first element
// that needs them. It is used by one goroutine and only once.
type MarshalResult struct {
	ctx    context.Context
	loader bts.BindingLoader
	table  *RuntimeTypeTable
	types  *TypeRegistry
	logger *slog.Logger
	errorSink

	seed     string
	counter  int
	prefixes map[string]string // uri -> prefix
	taken    map[string]bool
	scopes   [][]string
	pending  []xml.Attr

	stack   []*visitor
	started bool
}

func newMarshalResult(ctx context.Context, bc *BindingContext) *MarshalResult {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &MarshalResult{
		ctx:       ctx,
		loader:    bc.loader,
		table:     bc.table,
		types:     bc.types,
		logger:    bc.logger,
		errorSink: errorSink{mode: bc.mode},
		seed:      bc.prefixSeed,
		prefixes:  make(map[string]string, len(bc.prefixes)+1),
		taken:     map[string]bool{"xml": true, "xmlns": true, "xsi": true},
	}
	for uri, p := range bc.prefixes {
		r.prefixes[uri] = p
		r.taken[p] = true
	}
	return r
}

// marshalRoot prepares the session to write value as element name of
// type bt.
func (r *MarshalResult) marshalRoot(name xml.Name, bt *bts.BindingType, value any) error {
	conv, err := r.table.getOrCreate(bt, r.loader)
	if err != nil {
		return err
	}
	v, err := r.newVisitor(name, conv, addressable(value), true)
	if err != nil {
		return err
	}
	if v != nil {
		r.stack = append(r.stack, v)
	}
	r.logger.DebugContext(r.ctx, "marshalling root",
		"element", name.Local, "type_name", bt.Name.String())
	return nil
}

// addressable turns a struct value into a pointer to a copy so that its
// fields can be read like those of any other complex value.
func addressable(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return v
	}
	return addressableValue(rv).Interface()
}

// Next returns the next token of the document: xml.StartElement,
// xml.CharData or xml.EndElement. It returns io.EOF after the root
// element has been closed.
func (r *MarshalResult) Next() (xml.Token, error) {
	r.started = true
	for {
		if len(r.stack) == 0 {
			return nil, io.EOF
		}
		v := r.stack[len(r.stack)-1]
		switch v.state {
		case stateStart:
			if v.kind == collectionVisitor {
				v.state = stateContent
				continue
			}
			if err := r.ctx.Err(); err != nil {
				return nil, err
			}
			return r.startElement(v)
		case stateChars:
			v.state = stateEnd
			if v.chars != "" {
				return xml.CharData(v.chars), nil
			}
		case stateContent:
			more, err := v.advance(r)
			if err != nil {
				return nil, err
			}
			if !more {
				v.state = stateEnd
				continue
			}
			child, err := v.currentChild(r)
			if err != nil {
				return nil, err
			}
			if child != nil {
				r.stack = append(r.stack, child)
			}
		case stateEnd:
			r.stack = r.stack[:len(r.stack)-1]
			if v.kind == collectionVisitor {
				continue
			}
			r.scopes = r.scopes[:len(r.scopes)-1]
			return xml.EndElement{Name: xml.Name{Local: v.outName}}, nil
		}
	}
}

func (r *MarshalResult) startElement(v *visitor) (xml.Token, error) {
	r.scopes = append(r.scopes, nil)
	r.pending = r.pending[:0]
	name := r.qualified(v.name)
	if err := v.initAttributes(r); err != nil {
		return nil, err
	}
	v.outName = name.Local
	switch {
	case v.kind == simpleVisitor:
		v.state = stateChars
	case v.cc.content != nil:
		v.state = stateChars
	default:
		v.state = stateContent
	}

	attrs := make([]xml.Attr, 0, len(r.pending)+v.attributeCount())
	attrs = append(attrs, r.pending...)
	for i := 0; i < v.attributeCount(); i++ {
		attrs = append(attrs, xml.Attr{Name: v.attributeName(i), Value: v.attributeValue(i)})
	}
	return xml.StartElement{Name: name, Attr: attrs}, nil
}

// qualified returns the prefixed form of n as an unqualified name, which
// is how encoding/xml writes it verbatim.
func (r *MarshalResult) qualified(n xml.Name) xml.Name {
	p := r.ensurePrefix(n.Space)
	if p == "" {
		return xml.Name{Local: n.Local}
	}
	return xml.Name{Local: p + ":" + n.Local}
}

// ensurePrefix returns the prefix for uri, declaring it on the element
// being started if no open element has declared it yet. The empty
// namespace has the empty prefix.
func (r *MarshalResult) ensurePrefix(uri string) string {
	switch uri {
	case "":
		return ""
	case xmlNamespace:
		return "xml"
	}
	p, ok := r.prefixes[uri]
	if !ok {
		p = r.allocPrefix(uri)
		r.prefixes[uri] = p
	}
	if !r.declared(uri) && len(r.scopes) > 0 {
		top := len(r.scopes) - 1
		r.scopes[top] = append(r.scopes[top], uri)
		r.pending = append(r.pending, xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: uri})
	}
	return p
}

func (r *MarshalResult) allocPrefix(uri string) string {
	if uri == bts.XSINamespace {
		return "xsi"
	}
	for {
		r.counter++
		p := r.seed + strconv.Itoa(r.counter)
		if !r.taken[p] {
			r.taken[p] = true
			return p
		}
	}
}

func (r *MarshalResult) declared(uri string) bool {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		for _, u := range r.scopes[i] {
			if u == uri {
				return true
			}
		}
	}
	return false
}

// Prefix returns the prefix allocated to uri so far in this call.
func (r *MarshalResult) Prefix(uri string) (string, bool) {
	p, ok := r.prefixes[uri]
	return p, ok
}

// EncodeTo writes the whole document to enc and flushes it. It fails with
// ErrSessionUsed once tokens have been pulled.
func (r *MarshalResult) EncodeTo(enc *xml.Encoder) error {
	if r.started {
		return ErrSessionUsed
	}
	for {
		tok, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := enc.EncodeToken(tok); err != nil {
			return fmt.Errorf("encoding xml: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("encoding xml: %w", err)
	}
	if len(r.errs) > 0 {
		return r.errs
	}
	return nil
}

// Errors returns the errors recorded so far.
func (r *MarshalResult) Errors() ErrorList { return r.errs }

func (r *MarshalResult) addError(msg string) error {
	r.logger.DebugContext(r.ctx, "recorded marshal error", "error", msg)
	return r.add(msg, nil)
}
