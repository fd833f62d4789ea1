package lexical

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// NamespaceResolver maps an in-scope prefix to its namespace URI. The empty
// prefix resolves the default namespace.
type NamespaceResolver interface {
	LookupNamespace(prefix string) (string, bool)
}

// ParseQName resolves a prefixed name against ns. An unprefixed name takes
// the default namespace when one is in scope.
func ParseQName(s string, ns NamespaceResolver) (xml.Name, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return xml.Name{}, fmt.Errorf("invalid QName: %w", ErrEmpty)
	}
	prefix, local, ok := strings.Cut(v, ":")
	if !ok {
		local, prefix = prefix, ""
	}
	if local == "" || strings.ContainsAny(local, ": ") {
		return xml.Name{}, fmt.Errorf("invalid QName: %q", s)
	}
	uri, found := ns.LookupNamespace(prefix)
	if !found && prefix != "" {
		return xml.Name{}, fmt.Errorf("invalid QName %q: prefix %q is not bound", s, prefix)
	}
	return xml.Name{Space: uri, Local: local}, nil
}

// PrintQName joins prefix and local part.
func PrintQName(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
