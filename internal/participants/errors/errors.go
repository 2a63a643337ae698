package errors

import "errors"

var (
	ErrNotFound = errors.New("participant not found")

	ErrInvalidID = errors.New("invalid participant ID format")

	// ErrBibConflict is returned when the unique (category, bib) index rejects a write.
	ErrBibConflict = errors.New("bib already assigned in category")

	// ErrStaleAssignment is returned when the participant's bib changed between read and write.
	ErrStaleAssignment = errors.New("participant bib changed concurrently")
)
