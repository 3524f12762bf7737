// Package transfer runs one HTTP(S) request for a resource from a byte offset
// and streams the body into a caller-supplied writer.
//
// An attempt either succeeds once the whole remaining body has been written,
// or fails with an *Error whose Kind is one of:
//
//	KindInterrupted        body ended early; resume from the bytes on disk
//	KindRangeNotSupported  server refused the offset; resuming is impossible
//	KindOther              anything else; give up
//
// Progress callbacks run synchronously on the caller's goroutine after every
// buffer written, so they should return quickly.
package transfer
