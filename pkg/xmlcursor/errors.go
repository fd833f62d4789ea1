package xmlcursor

import "fmt"

// InvalidLexicalValueError reports text that cannot be converted to the
// value space of its type. It is a recoverable condition: the caller
// records it and carries on with the next value.
type InvalidLexicalValueError struct {
	Value    string
	Err      error
	Location Location
}

// NewInvalidLexicalValue returns an error for value at loc.
func NewInvalidLexicalValue(value string, err error, loc Location) *InvalidLexicalValueError {
	return &InvalidLexicalValueError{Value: value, Err: err, Location: loc}
}

func (e *InvalidLexicalValueError) Error() string {
	return fmt.Sprintf("%v at %s", e.Err, e.Location)
}

func (e *InvalidLexicalValueError) Unwrap() error { return e.Err }
