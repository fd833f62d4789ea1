//go:build xbind_debug

package marshal

import "fmt"

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("xbind: contract violation: " + fmt.Sprintf(format, args...))
	}
}
