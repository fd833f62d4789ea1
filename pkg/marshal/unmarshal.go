package marshal

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twinfer/xbind/internal/lexical"
	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

const invalid = -1

var (
	xsiType = xml.Name{Space: bts.XSINamespace, Local: "type"}
	xsiNil  = xml.Name{Space: bts.XSINamespace, Local: "nil"}
)

// xsiState caches the xsi attributes of the current start element.
type xsiState struct {
	scanned   bool
	nil      bool
	typ      string
	hasType  bool
	resolved *bts.BindingType
	failed   bool
}

// UnmarshalResult is the state of one unmarshal call: the cursor, the
// attribute position on the current start element, the xsi lookahead and
// the errors recorded so far. It is used by one goroutine and only once.
type UnmarshalResult struct {
	ctx    context.Context
	loader bts.BindingLoader
	table  *RuntimeTypeTable
	types  *TypeRegistry
	logger *slog.Logger
	cursor *xmlcursor.Cursor
	errorSink

	xsi       xsiState
	attrIndex int
	attrCount int
	present   []bool
	used      bool
}

func newUnmarshalResult(ctx context.Context, bc *BindingContext) *UnmarshalResult {
	if ctx == nil {
		ctx = context.Background()
	}
	return &UnmarshalResult{
		ctx:       ctx,
		loader:    bc.loader,
		table:     bc.table,
		types:     bc.types,
		logger:    bc.logger,
		errorSink: errorSink{mode: bc.mode},
		attrIndex: invalid,
		attrCount: invalid,
	}
}

// Unmarshal reads the document at c. The root type is the resolvable
// xsi:type of the root element, else the type of the global element of
// that name. A root that resolves to neither is fatal.
//
// The returned error is an ErrorList when only recoverable errors were
// recorded; the value is returned alongside it.
func (s *UnmarshalResult) Unmarshal(c *xmlcursor.Cursor) (any, error) {
	if err := s.begin(c); err != nil {
		return nil, err
	}
	bt, err := s.determineRootType()
	if err != nil {
		return nil, err
	}
	return s.finish(s.unmarshalRoot(bt))
}

// UnmarshalType reads the element at c as schemaType bound to goType. A
// resolvable xsi:type on the element still takes precedence.
func (s *UnmarshalResult) UnmarshalType(c *xmlcursor.Cursor, schemaType bts.XmlTypeName, goType bts.GoTypeName) (any, error) {
	if err := s.begin(c); err != nil {
		return nil, err
	}
	bt, ok := s.loader.BindingType(bts.ForPair(goType, schemaType))
	if !ok {
		if r, found := bts.Resolve(s.loader, schemaType); found && (goType == "" || r.Name.Go == goType) {
			bt, ok = r, true
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: no binding for %s as %s", ErrRootTypeUnresolved, schemaType, goType)
	}
	if s.scanXsi(); s.xsi.nil {
		return s.finish(s.unmarshalRoot(bt))
	}
	if over := s.xsiBinding(); over != nil {
		bt = over
	} else if s.xsi.failed {
		if err := s.addError("unknown type "+s.xsi.typ, s.locationPtr()); err != nil {
			return nil, err
		}
	}
	return s.finish(s.unmarshalRoot(bt))
}

func (s *UnmarshalResult) begin(c *xmlcursor.Cursor) error {
	if s.used {
		return ErrSessionUsed
	}
	s.used = true
	s.cursor = c
	s.updateAttributeState()
	for !c.IsStartElement() {
		ev, err := s.next()
		if err != nil {
			return err
		}
		if ev == xmlcursor.EndDocument || ev == xmlcursor.EndElement {
			return fmt.Errorf("%w: no root element", ErrRootTypeUnresolved)
		}
	}
	return nil
}

func (s *UnmarshalResult) determineRootType() (*bts.BindingType, error) {
	if s.scanXsi(); !s.xsi.nil {
		if bt := s.xsiBinding(); bt != nil {
			return bt, nil
		}
	}
	name := s.cursor.Name()
	doc, ok := bts.Resolve(s.loader, bts.ForGlobalName(bts.KindElement, name))
	if ok && doc.Kind == bts.Document {
		if bt, ok := s.loader.BindingType(doc.ElementType); ok {
			if s.xsi.failed {
				if err := s.addError("unknown type "+s.xsi.typ, s.locationPtr()); err != nil {
					return nil, err
				}
			}
			return bt, nil
		}
	}
	return nil, fmt.Errorf("%w: element {%s}%s", ErrRootTypeUnresolved, name.Space, name.Local)
}

func (s *UnmarshalResult) unmarshalRoot(bt *bts.BindingType) (any, error) {
	conv, err := s.table.GetOrCreateTypeUnmarshaller(bt, s.loader)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(s.ctx, "unmarshalling root",
		"element", s.cursor.LocalName(), "type_name", bt.Name.String())
	if s.scanXsi(); s.xsi.nil {
		return theNilConverter.Unmarshal(s)
	}
	return conv.Unmarshal(s)
}

func (s *UnmarshalResult) finish(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if len(s.errs) > 0 {
		return v, s.errs
	}
	return v, nil
}

// Errors returns the errors recorded so far.
func (s *UnmarshalResult) Errors() ErrorList { return s.errs }

// Location is the position of the current event.
func (s *UnmarshalResult) Location() xmlcursor.Location { return s.cursor.Location() }

func (s *UnmarshalResult) locationPtr() *xmlcursor.Location {
	loc := s.cursor.Location()
	return &loc
}

// next advances the cursor, giving up if the call's context is done.
func (s *UnmarshalResult) next() (xmlcursor.Event, error) {
	if err := s.ctx.Err(); err != nil {
		return s.cursor.Event(), err
	}
	ev, err := s.cursor.Next()
	s.updateAttributeState()
	return ev, err
}

func (s *UnmarshalResult) skipElement() error {
	err := s.cursor.SkipElement()
	s.updateAttributeState()
	return err
}

func (s *UnmarshalResult) stringValue() (string, error) {
	v, err := s.cursor.StringValue()
	s.updateAttributeState()
	return v, err
}

func (s *UnmarshalResult) updateAttributeState() {
	s.xsi = xsiState{}
	if s.cursor.IsStartElement() {
		s.attrIndex, s.attrCount = 0, s.cursor.AttributeCount()
		return
	}
	s.attrIndex, s.attrCount = invalid, invalid
}

// HasMoreAttributes reports whether the attribute cursor is on an
// attribute. It is only meaningful on a start element.
func (s *UnmarshalResult) HasMoreAttributes() bool {
	assertf(s.attrIndex != invalid, "attribute cursor used off a start element")
	return s.attrIndex >= 0 && s.attrIndex < s.attrCount
}

// AdvanceAttribute moves the attribute cursor to the next attribute.
func (s *UnmarshalResult) AdvanceAttribute() {
	assertf(s.attrIndex != invalid, "attribute cursor used off a start element")
	if s.attrIndex >= 0 && s.attrIndex < s.attrCount {
		s.attrIndex++
	}
}

// CurrentAttributeName is the name of the attribute under the attribute
// cursor.
func (s *UnmarshalResult) CurrentAttributeName() xml.Name {
	if !s.onAttribute() {
		return xml.Name{}
	}
	return s.cursor.AttributeName(s.attrIndex)
}

// CurrentAttributeValue is the value of the attribute under the attribute
// cursor.
func (s *UnmarshalResult) CurrentAttributeValue() string {
	if !s.onAttribute() {
		return ""
	}
	return s.cursor.AttributeValue(s.attrIndex)
}

func (s *UnmarshalResult) onAttribute() bool {
	ok := s.attrIndex >= 0 && s.attrIndex < s.attrCount
	assertf(ok, "no current attribute (index %d of %d)", s.attrIndex, s.attrCount)
	return ok
}

// AttributePresent marks attribute property i of the type being read as
// seen on the current element.
func (s *UnmarshalResult) AttributePresent(i int) {
	if i >= len(s.present) {
		s.present = append(s.present, make([]bool, i+1-len(s.present))...)
	}
	s.present[i] = true
}

// IsAttributePresent reports whether AttributePresent(i) was called since
// the type started reading its attributes.
func (s *UnmarshalResult) IsAttributePresent(i int) bool {
	return i < len(s.present) && s.present[i]
}

func (s *UnmarshalResult) resetAttributePresence(n int) {
	if cap(s.present) < n {
		s.present = make([]bool, n)
		return
	}
	s.present = s.present[:n]
	clear(s.present)
}

// scanXsi reads xsi:type and xsi:nil of the current start element, once
// per position.
func (s *UnmarshalResult) scanXsi() {
	if s.xsi.scanned || !s.cursor.IsStartElement() {
		return
	}
	s.xsi.scanned = true
	if v, ok := s.cursor.AttributeByName(xsiNil); ok {
		v = lexical.Normalize(lexical.Collapse, v)
		s.xsi.nil = v == "true" || v == "1"
	}
	s.xsi.typ, s.xsi.hasType = s.cursor.AttributeByName(xsiType)
}

// xsiBinding returns the binding named by xsi:type on the current element,
// or nil when there is none or it does not resolve. In the latter case
// xsi.failed is set.
func (s *UnmarshalResult) xsiBinding() *bts.BindingType {
	s.scanXsi()
	if !s.xsi.hasType || s.xsi.resolved != nil || s.xsi.failed {
		return s.xsi.resolved
	}
	qn, err := lexical.ParseQName(lexical.Normalize(lexical.Collapse, s.xsi.typ), s.cursor)
	if err == nil {
		if bt, ok := bts.Resolve(s.loader, bts.ForTypeNamed(qn)); ok {
			s.xsi.resolved = bt
			return bt
		}
	}
	s.xsi.failed = true
	return nil
}

// determineTypeUnmarshaller picks the unmarshaller for the current
// element: the nil converter under xsi:nil, else the xsi:type override,
// else the static one. An xsi:type that does not resolve is recorded.
func (s *UnmarshalResult) determineTypeUnmarshaller(static TypeUnmarshaller) (TypeUnmarshaller, error) {
	if s.scanXsi(); s.xsi.nil {
		return theNilConverter, nil
	}
	if bt := s.xsiBinding(); bt != nil {
		conv, err := s.table.GetOrCreateTypeUnmarshaller(bt, s.loader)
		if err == nil {
			s.logger.DebugContext(s.ctx, "xsi:type override",
				"xsi_type", s.xsi.typ, "type_name", bt.Name.String())
			return conv, nil
		}
		if err := s.addError(fmt.Sprintf("no converter for type %s: %v", s.xsi.typ, err), s.locationPtr()); err != nil {
			return nil, err
		}
		return static, nil
	}
	if s.xsi.failed {
		if err := s.addError("unknown type "+s.xsi.typ, s.locationPtr()); err != nil {
			return nil, err
		}
	}
	return static, nil
}

// newInstance creates the Go value for a complex type: a registered
// struct, else a map. Maps record their Go type name when an xsi:type
// selected bt.
func (s *UnmarshalResult) newInstance(bt *bts.BindingType) any {
	if obj, ok := s.types.New(bt.Name.Go); ok {
		return obj
	}
	m := make(map[string]any)
	if s.scanXsi(); s.xsi.resolved != nil && s.xsi.resolved.Name == bt.Name {
		m[TypeKey] = string(bt.Name.Go)
	}
	return m
}

// fillElementProp reads the current child element into p.
func (s *UnmarshalResult) fillElementProp(p *RuntimeBindingProperty, obj any) error {
	v, ok, err := s.unmarshalElement(p)
	if err != nil || !ok {
		return err
	}
	return s.setProp(p, obj, v)
}

// unmarshalElement converts the current child element for p. ok is false
// when the value was invalid and has been recorded.
func (s *UnmarshalResult) unmarshalElement(p *RuntimeBindingProperty) (v any, ok bool, err error) {
	conv, err := s.determineTypeUnmarshaller(p.conv)
	if err != nil {
		return nil, false, err
	}
	if p.Default != nil {
		s.cursor.SetDefaultValue(*p.Default)
	}
	v, err = conv.Unmarshal(s)
	if err != nil {
		var lexErr *xmlcursor.InvalidLexicalValueError
		if errors.As(err, &lexErr) {
			return nil, false, s.recordInvalid(p, err)
		}
		return nil, false, err
	}
	return v, true, nil
}

// fillAttributeProp reads the current attribute into p.
func (s *UnmarshalResult) fillAttributeProp(p *RuntimeBindingProperty, obj any) error {
	v, err := p.conv.UnmarshalAttribute(s)
	if err != nil {
		return s.recordInvalid(p, err)
	}
	return s.setProp(p, obj, v)
}

func (s *UnmarshalResult) fillDefault(p *RuntimeBindingProperty, obj any) error {
	lc, ok := p.conv.(lexicalConverter)
	if !ok {
		return s.addError(fmt.Sprintf("default for %s on complex type %s", p.Name.Local, p.TypeName), s.locationPtr())
	}
	v, err := lc.parseLexical(*p.Default, s, s.Location())
	if err != nil {
		return s.recordInvalid(p, err)
	}
	return s.setProp(p, obj, v)
}

// recordInvalid records a conversion failure for p. Element errors carry
// the location; attribute errors embed it in the message.
func (s *UnmarshalResult) recordInvalid(p *RuntimeBindingProperty, err error) error {
	var lexErr *xmlcursor.InvalidLexicalValueError
	if !errors.As(err, &lexErr) {
		return s.addError(fmt.Sprintf("invalid value for %s: %v", p.Name.Local, err), s.locationPtr())
	}
	if p.Attribute {
		return s.addError(fmt.Sprintf("invalid value for %s: %v", p.Name.Local, lexErr), nil)
	}
	loc := lexErr.Location
	return s.addError(fmt.Sprintf("invalid value for %s: %v", p.Name.Local, lexErr.Err), &loc)
}

func (s *UnmarshalResult) setProp(p *RuntimeBindingProperty, obj, v any) error {
	if err := p.Fill(obj, v); err != nil {
		return s.addError(err.Error(), s.locationPtr())
	}
	return nil
}

func (s *UnmarshalResult) addError(msg string, loc *xmlcursor.Location) error {
	attrs := []any{"error", msg}
	if loc != nil {
		attrs = append(attrs, "location", loc.String())
	}
	s.logger.DebugContext(s.ctx, "recorded unmarshal error", attrs...)
	return s.add(strings.TrimSpace(msg), loc)
}
