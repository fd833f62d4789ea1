package marshal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twinfer/xbind/pkg/xmlcursor"
)

var (
	// ErrRootTypeUnresolved is returned when no binding matches the root
	// of a document or of a value being marshalled.
	ErrRootTypeUnresolved = errors.New("root type unresolved")
	// ErrSessionUsed is returned when a finished session is used again.
	ErrSessionUsed = errors.New("session already used")
	// ErrNoConverter is returned when the type table cannot build a
	// converter for a binding.
	ErrNoConverter = errors.New("no converter")
)

// ErrorMode selects what happens when a recoverable error is recorded.
type ErrorMode int

const (
	// CollectErrors records every recoverable error and carries on.
	CollectErrors ErrorMode = iota
	// FailFast aborts the call on the first recorded error.
	FailFast
)

func (m ErrorMode) String() string {
	if m == FailFast {
		return "fail-fast"
	}
	return "collect"
}

// XmlError is one recorded error. Location is nil when the error has no
// position in a source document.
type XmlError struct {
	Message  string
	Location *xmlcursor.Location
}

func (e *XmlError) Error() string {
	if e.Location == nil {
		return e.Message
	}
	return e.Location.String() + ": " + e.Message
}

// ErrorList is the ordered list of errors recorded during one call.
type ErrorList []*XmlError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:", len(l))
	for _, e := range l {
		sb.WriteString("\n\t")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// errorSink is shared by both session kinds.
type errorSink struct {
	mode ErrorMode
	errs ErrorList
}

// add records an error. In FailFast mode the returned error aborts the
// call; it is nil otherwise.
func (s *errorSink) add(msg string, loc *xmlcursor.Location) error {
	s.errs = append(s.errs, &XmlError{Message: msg, Location: loc})
	if s.mode == FailFast {
		return s.errs
	}
	return nil
}
