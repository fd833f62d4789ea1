//go:build !xbind_debug

package marshal

// assertf checks internal contracts. Release builds compile it away; build
// with -tags xbind_debug to turn violations into panics.
func assertf(bool, string, ...any) {}
