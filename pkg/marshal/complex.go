package marshal

import (
	"encoding/xml"
	"fmt"

	"github.com/twinfer/xbind/pkg/bts"
	"github.com/twinfer/xbind/pkg/xmlcursor"
)

// complexConverter handles complex types, with element content or with
// simple content. Child elements are matched by name in any order.
type complexConverter struct {
	bt      *bts.BindingType
	props   []*RuntimeBindingProperty
	attrs   []*RuntimeBindingProperty
	elems   []*RuntimeBindingProperty
	byAttr  map[xml.Name]*RuntimeBindingProperty
	byElem  map[xml.Name]*RuntimeBindingProperty
	content *RuntimeBindingProperty
}

func (c *complexConverter) initialize(b *builder) error {
	c.byAttr = make(map[xml.Name]*RuntimeBindingProperty)
	c.byElem = make(map[xml.Name]*RuntimeBindingProperty)
	for _, p := range c.bt.Properties {
		conv, err := b.converterFor(p.TypeName)
		if err != nil {
			return fmt.Errorf("%s: %w", p.String(), err)
		}
		if p.Attribute {
			if !conv.Simple() {
				return fmt.Errorf("%w: attribute %s of %s has complex type %s", ErrNoConverter, p.Name.Local, c.bt.Name, p.TypeName)
			}
			rp := newRuntimeProperty(p, conv, len(c.attrs))
			c.attrs = append(c.attrs, rp)
			c.byAttr[p.Name] = rp
			c.props = append(c.props, rp)
			continue
		}
		rp := newRuntimeProperty(p, conv, len(c.elems))
		c.elems = append(c.elems, rp)
		c.byElem[p.Name] = rp
		c.props = append(c.props, rp)
	}
	if c.bt.Content != nil {
		conv, err := b.lexicalFor("content of "+c.bt.Name.String(), c.bt.Content.TypeName)
		if err != nil {
			return err
		}
		c.content = newRuntimeProperty(*c.bt.Content, conv, 0)
	}
	return nil
}

func (c *complexConverter) BindingType() *bts.BindingType { return c.bt }

// Properties returns the runtime properties in declaration order.
func (c *complexConverter) Properties() []*RuntimeBindingProperty { return c.props }

func (c *complexConverter) Simple() bool { return false }

func (c *complexConverter) Print(any, *MarshalResult) (string, error) {
	return "", fmt.Errorf("complex type %s has no lexical form", c.bt.Name)
}

func (c *complexConverter) UnmarshalAttribute(*UnmarshalResult) (any, error) {
	return nil, fmt.Errorf("complex type %s cannot be an attribute value", c.bt.Name)
}

func (c *complexConverter) Unmarshal(s *UnmarshalResult) (any, error) {
	obj := s.newInstance(c.bt)
	if err := c.fillAttributes(s, obj); err != nil {
		return nil, err
	}
	if c.content != nil {
		return obj, c.fillContent(s, obj)
	}

	seen := make([]bool, len(c.elems))
	var collected [][]any
	for {
		ev, err := s.next()
		if err != nil {
			return nil, err
		}
		if ev == xmlcursor.EndElement {
			break
		}
		if ev != xmlcursor.StartElement {
			continue
		}
		p := c.byElem[s.cursor.Name()]
		if p == nil {
			s.logger.DebugContext(s.ctx, "skipping unknown element",
				"element", s.cursor.LocalName(), "type_name", c.bt.Name.String())
			if err := s.skipElement(); err != nil {
				return nil, err
			}
			continue
		}
		seen[p.index] = true
		if !p.Multiple {
			if err := s.fillElementProp(p, obj); err != nil {
				return nil, err
			}
			continue
		}
		v, ok, err := s.unmarshalElement(p)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := p.checkItem(obj, v); err != nil {
				if err := s.addError(err.Error(), s.locationPtr()); err != nil {
					return nil, err
				}
				continue
			}
			if collected == nil {
				collected = make([][]any, len(c.elems))
			}
			collected[p.index] = append(collected[p.index], v)
		}
	}

	for _, p := range c.elems {
		switch {
		case p.Multiple && collected != nil && len(collected[p.index]) > 0:
			if err := s.setProp(p, obj, collected[p.index]); err != nil {
				return nil, err
			}
		case !p.Multiple && !seen[p.index] && p.Default != nil:
			if err := s.fillDefault(p, obj); err != nil {
				return nil, err
			}
		}
	}
	return obj, nil
}

func (c *complexConverter) fillAttributes(s *UnmarshalResult, obj any) error {
	s.resetAttributePresence(len(c.attrs))
	for ; s.HasMoreAttributes(); s.AdvanceAttribute() {
		name := s.CurrentAttributeName()
		if name.Space == bts.XSINamespace {
			continue
		}
		p := c.byAttr[name]
		if p == nil {
			continue
		}
		s.AttributePresent(p.index)
		if err := s.fillAttributeProp(p, obj); err != nil {
			return err
		}
	}
	for _, p := range c.attrs {
		if p.Default != nil && !s.IsAttributePresent(p.index) {
			if err := s.fillDefault(p, obj); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *complexConverter) fillContent(s *UnmarshalResult, obj any) error {
	v, err := unmarshalText(c.content.conv.(lexicalConverter), s)
	if err != nil {
		return s.recordInvalid(c.content, err)
	}
	return s.setProp(c.content, obj, v)
}
