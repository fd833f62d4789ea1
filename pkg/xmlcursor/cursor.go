// Package xmlcursor is a pull cursor over an XML token stream.
//
// A Cursor is positioned on one event at a time. On a start element it
// exposes the element name, its attributes (namespace declarations are
// consumed by the cursor and not reported as attributes) and the
// namespace bindings in scope, which stay in scope until the cursor moves
// past the matching end element.
//
// Documents in encodings other than UTF-8 are decoded according to their
// XML declaration.
package xmlcursor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

var (
	// ErrEndOfDocument is returned by Next once the document is exhausted.
	ErrEndOfDocument = errors.New("xmlcursor: no more events")
	// ErrNotStartElement is returned by operations that require the cursor
	// to be on a start element.
	ErrNotStartElement = errors.New("xmlcursor: not positioned on a start element")
	// ErrUnexpectedElement reports a child element inside simple content.
	ErrUnexpectedElement = errors.New("unexpected child element in simple content")
)

// Event is the kind of item the cursor is positioned on.
type Event int

const (
	StartDocument Event = iota
	StartElement
	EndElement
	CharData
	Comment
	ProcInst
	Directive
	EndDocument
)

var eventNames = [...]string{
	StartDocument: "StartDocument",
	StartElement:  "StartElement",
	EndElement:    "EndElement",
	CharData:      "CharData",
	Comment:       "Comment",
	ProcInst:      "ProcInst",
	Directive:     "Directive",
	EndDocument:   "EndDocument",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Location is a position in the input, 1-based.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
}

type binding struct {
	prefix string
	uri    string
}

// Cursor pulls events from an XML document. It is not safe for concurrent
// use.
type Cursor struct {
	dec   *xml.Decoder
	event Event
	name  xml.Name
	attrs []xml.Attr
	text  []byte
	loc   Location
	err   error

	bindings []binding
	marks    []int

	def *string
}

// New returns a cursor reading the document from r.
func New(r io.Reader) *Cursor {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return FromDecoder(dec)
}

// FromDecoder returns a cursor over an existing decoder. The decoder must
// not have consumed any token of the document yet.
func FromDecoder(dec *xml.Decoder) *Cursor {
	line, col := dec.InputPos()
	return &Cursor{dec: dec, event: StartDocument, loc: Location{Line: line, Column: col}}
}

// Next advances to the next event.
func (c *Cursor) Next() (Event, error) {
	if c.err != nil {
		return c.event, c.err
	}
	switch c.event {
	case EndDocument:
		return c.event, ErrEndOfDocument
	case EndElement:
		n := len(c.marks) - 1
		c.bindings = c.bindings[:c.marks[n]]
		c.marks = c.marks[:n]
	}
	c.name, c.attrs, c.text, c.def = xml.Name{}, nil, nil, nil

	line, col := c.dec.InputPos()
	c.loc = Location{Line: line, Column: col}
	tok, err := c.dec.Token()
	if errors.Is(err, io.EOF) {
		if len(c.marks) > 0 {
			c.err = fmt.Errorf("reading xml at %s: %w", c.loc, io.ErrUnexpectedEOF)
			return c.event, c.err
		}
		c.event = EndDocument
		return c.event, nil
	}
	if err != nil {
		c.err = fmt.Errorf("reading xml: %w", err)
		return c.event, c.err
	}

	switch t := tok.(type) {
	case xml.StartElement:
		c.event = StartElement
		c.name = t.Name
		c.marks = append(c.marks, len(c.bindings))
		for _, a := range t.Attr {
			switch {
			case a.Name.Space == "xmlns":
				c.bindings = append(c.bindings, binding{prefix: a.Name.Local, uri: a.Value})
			case a.Name.Space == "" && a.Name.Local == "xmlns":
				c.bindings = append(c.bindings, binding{uri: a.Value})
			default:
				c.attrs = append(c.attrs, a)
			}
		}
	case xml.EndElement:
		c.event = EndElement
		c.name = t.Name
	case xml.CharData:
		c.event = CharData
		c.text = t.Copy()
	case xml.Comment:
		c.event = Comment
		c.text = t.Copy()
	case xml.ProcInst:
		c.event = ProcInst
	case xml.Directive:
		c.event = Directive
	}
	return c.event, nil
}

// Event returns the current event.
func (c *Cursor) Event() Event { return c.event }

// HasNext reports whether Next may be called.
func (c *Cursor) HasNext() bool { return c.event != EndDocument && c.err == nil }

func (c *Cursor) IsStartElement() bool { return c.event == StartElement }

func (c *Cursor) IsEndElement() bool { return c.event == EndElement }

// Name is the name of the current start or end element.
func (c *Cursor) Name() xml.Name { return c.name }

func (c *Cursor) LocalName() string { return c.name.Local }

func (c *Cursor) NamespaceURI() string { return c.name.Space }

// Text returns the character data or comment at the cursor.
func (c *Cursor) Text() string { return string(c.text) }

// Depth is the number of open elements, counting the current start element.
func (c *Cursor) Depth() int { return len(c.marks) }

// Location returns where the current event starts.
func (c *Cursor) Location() Location { return c.loc }

// AttributeCount returns the number of attributes of the current start
// element, or 0 when not on a start element.
func (c *Cursor) AttributeCount() int { return len(c.attrs) }

func (c *Cursor) AttributeName(i int) xml.Name { return c.attrs[i].Name }

func (c *Cursor) AttributeNamespace(i int) string { return c.attrs[i].Name.Space }

func (c *Cursor) AttributeLocalName(i int) string { return c.attrs[i].Name.Local }

func (c *Cursor) AttributeValue(i int) string { return c.attrs[i].Value }

// AttributeByName returns the value of the attribute called name on the
// current start element.
func (c *Cursor) AttributeByName(name xml.Name) (string, bool) {
	for _, a := range c.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// LookupNamespace resolves a prefix in the current scope. The empty prefix
// resolves the default namespace.
func (c *Cursor) LookupNamespace(prefix string) (string, bool) {
	if prefix == "xml" {
		return xmlNamespace, true
	}
	for i := len(c.bindings) - 1; i >= 0; i-- {
		if c.bindings[i].prefix == prefix {
			return c.bindings[i].uri, true
		}
	}
	return "", false
}

// SetDefaultValue sets the text StringValue returns if the current element
// turns out to be empty. It is forgotten when the cursor advances.
func (c *Cursor) SetDefaultValue(v string) {
	c.def = &v
}

// StringValue reads the text content of the current start element and
// leaves the cursor on its end element. Comments and processing
// instructions are ignored. A child element is skipped and reported with
// ErrUnexpectedElement once the end element has been reached.
func (c *Cursor) StringValue() (string, error) {
	if c.event != StartElement {
		return "", ErrNotStartElement
	}
	def := c.def
	var (
		sb         strings.Builder
		unexpected xml.Name
	)
	for {
		ev, err := c.Next()
		if err != nil {
			return "", err
		}
		switch ev {
		case CharData:
			sb.Write(c.text)
		case StartElement:
			if unexpected.Local == "" {
				unexpected = c.name
			}
			if err := c.SkipElement(); err != nil {
				return "", err
			}
		case EndElement:
			if unexpected.Local != "" {
				return sb.String(), fmt.Errorf("%w: %s", ErrUnexpectedElement, unexpected.Local)
			}
			if sb.Len() == 0 && def != nil {
				return *def, nil
			}
			return sb.String(), nil
		}
	}
}

// SkipElement consumes the current start element and everything up to its
// end element, where the cursor is left.
func (c *Cursor) SkipElement() error {
	if c.event != StartElement {
		return ErrNotStartElement
	}
	depth := len(c.marks)
	for {
		ev, err := c.Next()
		if err != nil {
			return err
		}
		if ev == EndElement && len(c.marks) == depth {
			return nil
		}
	}
}
