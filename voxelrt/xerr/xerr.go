// Package xerr holds the sentinel error kinds shared across the engine
// core, matched against with errors.Is by callers that need to branch on
// kind rather than message.
package xerr

import "errors"

var (
	// ErrInvalidInput covers malformed spans, mismatched buffer sizes, and
	// non-power-of-two dimensions where one is required.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDeserialize covers a bad magic number or truncated length during
	// Chunk.Deserialize.
	ErrDeserialize = errors.New("deserialize error")
	// ErrCancelled names the cancellation kind. Worker-facing operations in
	// this module report a fired cancellation token through the Cancelled
	// sample status and do not return this error.
	ErrCancelled = errors.New("cancelled")
	// ErrStorage names an I/O failure inside the persistence source. No code
	// in this module returns it: region loads have no error result, and a
	// span that fails to decode is reported as a Miss.
	ErrStorage = errors.New("storage error")
)
