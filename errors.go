package scdb

import "github.com/sopherapps/scdb/internal/errs"

// Error classification sentinels. Errors that scdb classifies itself wrap
// one of these; classify with errors.Is, not string matching or type
// assertions. Filesystem errors are returned wrapped with context but
// without a sentinel.
var (
	// ErrInvalidData marks a corrupted or mis-formatted on-disk record.
	ErrInvalidData = errs.InvalidData

	// ErrInvalidInput marks a bad argument: an out-of-range address or
	// index-block number, or a config file that does not parse.
	ErrInvalidInput = errs.InvalidInput

	// ErrOther covers everything else, including collision saturation (all
	// redundant blocks probed, none free) and lock-acquisition failures.
	ErrOther = errs.Other
)
