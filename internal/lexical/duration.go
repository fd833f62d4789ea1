package lexical

import (
	"fmt"

	"github.com/rickb777/period"
)

// ParseDuration parses an xs:duration.
func ParseDuration(s string) (period.Period, error) {
	v := Normalize(Collapse, s)
	if v == "" {
		return period.Period{}, fmt.Errorf("invalid duration: %w", ErrEmpty)
	}
	p, err := period.Parse(v)
	if err != nil {
		return period.Period{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return p, nil
}

// PrintDuration returns the ISO 8601 form of p.
func PrintDuration(p period.Period) string {
	return p.String()
}
