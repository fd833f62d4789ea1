//go:build xbind_debug

package marshal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/xbind/pkg/xmlcursor"
)

func TestAttributeCursorOffStartElementPanics(t *testing.T) {
	s := mapContext(t).Unmarshaller().NewResult(context.Background())
	require.NoError(t, s.begin(xmlcursor.New(strings.NewReader(`<a x="1"><b y="2"/></a>`))))
	require.True(t, s.HasMoreAttributes())

	for {
		ev, err := s.next()
		require.NoError(t, err)
		if ev == xmlcursor.EndElement {
			break
		}
	}

	tests := []struct {
		name string
		call func()
	}{
		{"HasMoreAttributes", func() { s.HasMoreAttributes() }},
		{"AdvanceAttribute", func() { s.AdvanceAttribute() }},
		{"CurrentAttributeName", func() { s.CurrentAttributeName() }},
		{"CurrentAttributeValue", func() { s.CurrentAttributeValue() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, tt.call)
		})
	}
}
