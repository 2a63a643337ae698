package bib

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Allocate picks the next bib for category given the values already assigned.
//
// The highest assigned value plus one is preferred so that bibs stay sequential
// during normal registration. Once the top of the range is taken, the lowest free
// value in the range is reclaimed instead. Values in existing that fall outside
// the category range are ignored.
func (rs Ranges) Allocate(category Category, existing Set) (Identifier, error) {
	r, err := rs.Lookup(category)
	if err != nil {
		return Identifier{}, err
	}

	v, ok := r.next(existing)
	if !ok {
		return Identifier{}, fmt.Errorf("%w: category %s (%s) has no free bib", ErrRangeExhausted, category, r)
	}
	return Identifier{Category: category, Value: v}, nil
}

func (r Range) next(existing Set) (int, bool) {
	if r.Upper < r.Lower {
		return 0, false
	}

	highest, count := r.Lower-1, 0
	for v := range existing {
		if !r.Contains(v) {
			continue
		}
		count++
		if v > highest {
			highest = v
		}
	}

	if count == 0 {
		return r.Lower, true
	}
	if highest < r.Upper {
		return highest + 1, true
	}
	return r.lowestGap(existing, count)
}

// lowestGap scans for the first free value. With count values in range the
// answer, if any, lies within the first count+1 slots, so the bitset is sized by
// the snapshot rather than by the range.
func (r Range) lowestGap(existing Set, count int) (int, bool) {
	window := uint(count) + 1
	if size := r.Size(); uint(size) < window {
		window = uint(size)
	}

	occupied := bitset.New(window)
	for v := range existing {
		if !r.Contains(v) {
			continue
		}
		if off := uint(v - r.Lower); off < window {
			occupied.Set(off)
		}
	}

	idx, ok := occupied.NextClear(0)
	if !ok || idx >= window {
		return 0, false
	}
	return r.Lower + int(idx), true
}
