// Package errs defines the error-kind taxonomy shared across every layer
// of the store, from the header codec up to the public façade.
//
// Errors that the internal packages classify themselves wrap one of these
// sentinels with fmt.Errorf("%w: ..."), so callers anywhere classify with
// errors.Is(err, errs.InvalidData) rather than type assertions. Filesystem
// errors are passed up wrapped with context but without a sentinel.
package errs

import "errors"

var (
	// InvalidData marks a corrupted or mis-formatted on-disk record: a
	// truncated header, an entry whose declared size doesn't match its
	// bytes, or similar.
	InvalidData = errors.New("invalid data")

	// InvalidInput marks a programmer error: an out-of-range address, or
	// a redundant-block index beyond the header's geometry.
	InvalidInput = errors.New("invalid input")

	// Other covers everything else: lock-acquisition failures and
	// collision saturation (all index blocks probed, none free).
	Other = errors.New("other")
)
