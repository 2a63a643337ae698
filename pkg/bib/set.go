package bib

import "sort"

// Set is a snapshot of bib values observed for one category.
type Set map[int]struct{}

// NewSet builds a set holding values.
func NewSet(values ...int) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add marks v as occupied.
func (s Set) Add(v int) {
	s[v] = struct{}{}
}

// Contains reports whether v is occupied.
func (s Set) Contains(v int) bool {
	_, ok := s[v]
	return ok
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Sorted returns the values in ascending order.
func (s Set) Sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
