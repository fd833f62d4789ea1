package bts

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrUnresolvedType is wrapped by errors reporting a type reference that
// names no known binding.
var ErrUnresolvedType = errors.New("unresolved type reference")

// FileSchema is the YAML document of a binding file.
type FileSchema struct {
	TargetNamespace string            `yaml:"target-namespace"`
	Namespaces      map[string]string `yaml:"namespaces"`
	// Qualified puts local elements in the namespace of their type.
	Qualified bool         `yaml:"qualified"`
	Types     []TypeDef    `yaml:"types"`
	Elements  []ElementDef `yaml:"elements"`
	Doc       string       `yaml:"doc"`
}

// TypeDef declares one binding.
type TypeDef struct {
	Name         string        `yaml:"name"`
	Go           string        `yaml:"go,omitempty"`
	Kind         string        `yaml:"kind,omitempty"`
	Base         string        `yaml:"base,omitempty"`
	Properties   []PropertyDef `yaml:"properties,omitempty"`
	Content      string        `yaml:"content,omitempty"`
	ContentField string        `yaml:"content-field,omitempty"`
	Item         string        `yaml:"item,omitempty"`
	As           string        `yaml:"as,omitempty"`
	Rules        []Rule        `yaml:"rules,omitempty"`
	Doc          string        `yaml:"doc,omitempty"`
}

// PropertyDef declares one property of a complex or simple-content type.
type PropertyDef struct {
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"`
	Attribute bool    `yaml:"attribute,omitempty"`
	Nillable  bool    `yaml:"nillable,omitempty"`
	Optional  bool    `yaml:"optional,omitempty"`
	Multiple  bool    `yaml:"multiple,omitempty"`
	Default   *string `yaml:"default,omitempty"`
	Field     string  `yaml:"field,omitempty"`
	Setter    string  `yaml:"setter,omitempty"`
	Getter    string  `yaml:"getter,omitempty"`
	Doc       string  `yaml:"doc,omitempty"`
}

// ElementDef declares a global element and its type.
type ElementDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadBindingFile reads the binding file at path.
func LoadBindingFile(path string) (*BindingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading binding file: %w", err)
	}
	f, err := NewBindingFileFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ReadBindingFile reads a YAML binding file from r.
func ReadBindingFile(r io.Reader) (*BindingFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading binding file: %w", err)
	}
	return NewBindingFileFromYAML(data)
}

// NewBindingFileFromYAML parses a YAML binding file. The returned file is
// layered over the builtin loader and every type reference in it has been
// resolved.
func NewBindingFileFromYAML(data []byte) (*BindingFile, error) {
	var schema FileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing binding file: %w", err)
	}
	return schema.Build()
}

// Build compiles the schema into a BindingFile over the builtin loader.
func (s *FileSchema) Build() (*BindingFile, error) {
	b := &fileBuilder{
		schema: s,
		file:   NewBindingFile(BuiltinLoader()),
		defs:   make(map[XmlTypeName]*TypeDef),
		types:  make(map[XmlTypeName]*BindingType),
		state:  make(map[XmlTypeName]int),
	}
	if err := b.declare(); err != nil {
		return nil, err
	}
	for i := range s.Types {
		if err := b.resolve(&s.Types[i]); err != nil {
			return nil, err
		}
	}
	if err := b.elements(); err != nil {
		return nil, err
	}
	return b.file, nil
}

type fileBuilder struct {
	schema *FileSchema
	file   *BindingFile
	defs   map[XmlTypeName]*TypeDef
	types  map[XmlTypeName]*BindingType
	// 1 while resolving, 2 once resolved.
	state map[XmlTypeName]int
}

func (b *fileBuilder) qname(ref string) (xml.Name, error) {
	prefix, local, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok {
		return xml.Name{Space: b.schema.TargetNamespace, Local: prefix}, nil
	}
	if uri, found := b.schema.Namespaces[prefix]; found {
		return xml.Name{Space: uri, Local: local}, nil
	}
	switch prefix {
	case "xs", "xsd":
		return xml.Name{Space: XSDNamespace, Local: local}, nil
	case "xsi":
		return xml.Name{Space: XSINamespace, Local: local}, nil
	}
	return xml.Name{}, fmt.Errorf("undeclared namespace prefix %q in %q", prefix, ref)
}

// declare registers a placeholder binding for every type so references
// may point forward.
func (b *fileBuilder) declare() error {
	for i := range b.schema.Types {
		def := &b.schema.Types[i]
		qn, err := b.qname(def.Name)
		if err != nil {
			return err
		}
		xname := ForTypeNamed(qn)
		if _, dup := b.defs[xname]; dup {
			return fmt.Errorf("type %s declared twice", def.Name)
		}
		kind, err := parseKind(def.Kind)
		if err != nil {
			return fmt.Errorf("type %s: %w", def.Name, err)
		}
		b.defs[xname] = def
		b.types[xname] = &BindingType{Kind: kind, Name: ForPair(GoTypeName(def.Go), xname), Rules: def.Rules}
	}
	return nil
}

func parseKind(s string) (Kind, error) {
	if s == "" {
		return Complex, nil
	}
	for k, name := range kindNames {
		if name == s && k != Builtin && k != Document {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

func (b *fileBuilder) ref(from, ref string) (BindingTypeName, error) {
	qn, err := b.qname(ref)
	if err != nil {
		return BindingTypeName{}, fmt.Errorf("%s: %w", from, err)
	}
	xname := ForTypeNamed(qn)
	if def, ok := b.defs[xname]; ok {
		if err := b.resolve(def); err != nil {
			return BindingTypeName{}, err
		}
		return b.types[xname].Name, nil
	}
	if name, ok := b.file.LookupPojoFor(xname); ok {
		return name, nil
	}
	return BindingTypeName{}, fmt.Errorf("%s: %w: %s", from, ErrUnresolvedType, ref)
}

// resolve fills in bt for def. Simple types resolve their base before
// their own name is final; complex types only need the names of their
// property types, so recursion through properties stops at types already
// being resolved.
func (b *fileBuilder) resolve(def *TypeDef) error {
	qn, _ := b.qname(def.Name)
	xname := ForTypeNamed(qn)
	bt := b.types[xname]
	switch b.state[xname] {
	case 2:
		return nil
	case 1:
		if bt.Kind == Complex || bt.Kind == SimpleContent {
			if bt.Name.Go == "" {
				bt.Name.Go = GoTypeName(qn.Local)
			}
			return nil
		}
		return fmt.Errorf("type %s: circular definition", def.Name)
	}
	b.state[xname] = 1

	var err error
	switch bt.Kind {
	case SimpleRestriction:
		if bt.AsIf, err = b.ref("type "+def.Name, def.As); err != nil {
			return err
		}
		base, ok := b.file.BindingType(bt.AsIf)
		switch {
		case !ok || !base.Kind.IsSimple():
			return fmt.Errorf("type %s: %s is not a simple type", def.Name, def.As)
		case base.Kind == SimpleRestriction:
			bt.AsIf = base.AsIf
		}
		if bt.Name.Go == "" {
			bt.Name.Go = bt.AsIf.Go
		}
	case List:
		if bt.ItemType, err = b.ref("type "+def.Name, def.Item); err != nil {
			return err
		}
		if bt.Name.Go == "" {
			bt.Name.Go = "[]" + bt.ItemType.Go
		}
	case Complex, SimpleContent:
		if bt.Name.Go == "" {
			bt.Name.Go = GoTypeName(qn.Local)
		}
		if err := b.complex(def, bt); err != nil {
			return err
		}
	}

	b.state[xname] = 2
	if err := b.file.Add(bt); err != nil {
		return err
	}
	b.file.AddPojoFor(xname, bt.Name)
	// Simple types without their own Go type share it with their builtin,
	// which keeps marshalling to the builtin.
	if def.Go != "" || !bt.Kind.IsSimple() {
		b.file.AddXmlFor(bt.Name.Go, bt.Name)
	}
	return nil
}

func (b *fileBuilder) complex(def *TypeDef, bt *BindingType) error {
	if def.Base != "" {
		base, err := b.ref("type "+def.Name, def.Base)
		if err != nil {
			return err
		}
		bt.Base = base
		parent, ok := b.types[base.Xml]
		if !ok || b.state[base.Xml] != 2 {
			return fmt.Errorf("type %s: base %s must be a complex type declared without a cycle", def.Name, def.Base)
		}
		bt.Properties = append(bt.Properties, parent.Properties...)
		if parent.Content != nil && bt.Kind == SimpleContent && def.Content == "" {
			content := *parent.Content
			bt.Content = &content
		}
	}

	for _, pd := range def.Properties {
		p, err := b.property(def, bt, pd)
		if err != nil {
			return err
		}
		bt.Properties = append(bt.Properties, p)
	}

	if bt.Kind == SimpleContent && def.Content != "" {
		name, err := b.ref("content of "+def.Name, def.Content)
		if err != nil {
			return err
		}
		field := def.ContentField
		if field == "" {
			field = "Value"
		}
		bt.Content = &BindingProperty{TypeName: name, Field: field}
	}
	if bt.Kind == SimpleContent && bt.Content == nil {
		return fmt.Errorf("type %s: simple content type without content", def.Name)
	}
	return nil
}

func (b *fileBuilder) property(def *TypeDef, bt *BindingType, pd PropertyDef) (BindingProperty, error) {
	from := fmt.Sprintf("property %s of %s", pd.Name, def.Name)
	if pd.Name == "" {
		return BindingProperty{}, fmt.Errorf("type %s: property without a name", def.Name)
	}
	if bt.Kind == SimpleContent && !pd.Attribute {
		return BindingProperty{}, fmt.Errorf("%s: simple content types only take attributes", from)
	}
	tn, err := b.ref(from, pd.Type)
	if err != nil {
		return BindingProperty{}, err
	}
	name := xml.Name{Local: pd.Name}
	if strings.Contains(pd.Name, ":") {
		if name, err = b.qname(pd.Name); err != nil {
			return BindingProperty{}, fmt.Errorf("%s: %w", from, err)
		}
	} else if b.schema.Qualified && !pd.Attribute {
		name.Space = bt.Name.Xml.Namespace
	}
	if pd.Attribute && pd.Multiple {
		return BindingProperty{}, fmt.Errorf("%s: attributes cannot repeat, use a list type", from)
	}
	return BindingProperty{
		Name:      name,
		Attribute: pd.Attribute,
		TypeName:  tn,
		Nillable:  pd.Nillable,
		Optional:  pd.Optional,
		Multiple:  pd.Multiple,
		Default:   pd.Default,
		Field:     pd.Field,
		Setter:    pd.Setter,
		Getter:    pd.Getter,
	}, nil
}

func (b *fileBuilder) elements() error {
	for _, ed := range b.schema.Elements {
		qn, err := b.qname(ed.Name)
		if err != nil {
			return fmt.Errorf("element %s: %w", ed.Name, err)
		}
		tn, err := b.ref("element "+ed.Name, ed.Type)
		if err != nil {
			return err
		}
		xname := ForGlobalName(KindElement, qn)
		doc := &BindingType{
			Name:        ForPair(tn.Go, xname),
			Kind:        Document,
			ElementType: tn,
		}
		if err := b.file.Add(doc); err != nil {
			return fmt.Errorf("element %s: %w", ed.Name, err)
		}
		b.file.AddPojoFor(xname, doc.Name)
		b.file.AddElementFor(tn.Go, doc.Name)
	}
	return nil
}

// FieldName returns the exported Go field name for an XML name such as
// "first-name" or "zip_code".
func FieldName(local string) string {
	var sb strings.Builder
	upper := true
	for _, r := range local {
		if r == '-' || r == '_' || r == '.' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
