// Package errors defines the sentinel error values shared across the index
// build and merge pipeline. Call sites wrap them with fmt.Errorf and %w;
// callers classify failures with errors.Is.
package errors

import "errors"

var (
	// ErrFormatMismatch indicates segments with incompatible posting options
	// were combined, or a file's recorded option flag disagrees with the
	// caller's.
	ErrFormatMismatch = errors.New("posting format mismatch")

	// ErrCorruptSegment indicates a segment file failed structural validation:
	// bad magic, truncated dictionary, or a posting offset past the end of the
	// posting file.
	ErrCorruptSegment = errors.New("corrupt segment")

	// ErrDocIDOverlap indicates two segments offered for merging claim
	// overlapping document-id ranges.
	ErrDocIDOverlap = errors.New("overlapping doc id ranges")

	// ErrTermsOutOfOrder indicates a term stream violated the strict
	// ascending order required by the dictionary and FST writers.
	ErrTermsOutOfOrder = errors.New("terms out of order")

	// ErrCorruptSpill indicates a spill file run failed structural
	// validation: truncated header, a record length that does not cover its
	// fixed fields, or a broken run chain.
	ErrCorruptSpill = errors.New("corrupt spill file")

	// ErrInvalidState indicates an inverter operation was called outside its
	// legal state (e.g. Commit before Sort).
	ErrInvalidState = errors.New("invalid inverter state")
)
