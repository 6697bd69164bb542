// Package apfserr defines the error taxonomy shared by every layer of the
// recovery engine: IO, Corruption, NotFound, Unsupported and Allocation.
// Each kind is a sentinel that call sites wrap with fmt.Errorf("...: %w", ...)
// and callers unwrap with errors.Is, following the pattern already used
// throughout the teacher's parsers and services.
package apfserr

import "errors"

var (
	// IO marks a failure to open, seek, or read that isn't explained by EOF.
	IO = errors.New("io error")

	// Corruption marks a checksum mismatch, bad magic, or an impossible
	// structural field for a hard-coded assumption.
	Corruption = errors.New("corruption")

	// NotFound marks an absent OID, missing directory entry, or missing
	// file extents.
	NotFound = errors.New("not found")

	// Unsupported marks a structurally valid but unhandled on-disk shape:
	// non-contiguous checkpoint descriptor areas, non-physical object maps,
	// or a checkpoint with no older valid fallback.
	Unsupported = errors.New("unsupported")

	// Allocation marks a failed buffer allocation.
	Allocation = errors.New("allocation failed")
)
