package bib

import "errors"

var (
	// ErrInvalidCategory is returned for a category with no configured range.
	ErrInvalidCategory = errors.New("invalid bib category")

	// ErrRangeExhausted is returned when every value of a category range is taken.
	ErrRangeExhausted = errors.New("bib range exhausted")

	// ErrInvalidRange wraps every range configuration problem.
	ErrInvalidRange = errors.New("invalid bib range")
)
