package lexical

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseBase64 decodes xs:base64Binary. Whitespace anywhere in the value is
// ignored.
func ParseBase64(s string) ([]byte, error) {
	v := strings.Join(Fields(s), "")
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid base64Binary: %w", err)
	}
	return b, nil
}

// PrintBase64 encodes b as xs:base64Binary.
func PrintBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// ParseHex decodes xs:hexBinary.
func ParseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(Normalize(Collapse, s))
	if err != nil {
		return nil, fmt.Errorf("invalid hexBinary: %w", err)
	}
	return b, nil
}

// PrintHex encodes b in the canonical upper-case hexBinary form.
func PrintHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
