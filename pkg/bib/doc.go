// Package bib chooses race-bib numbers.
//
// Each category owns an inclusive numeric range. Allocation is a pure function of
// the configured ranges and a snapshot of the values already assigned in the
// category: it never locks, never touches storage and keeps no counters between
// calls. Two callers holding the same snapshot get the same candidate, so the
// result is only safe when it is persisted under a unique (category, bib)
// constraint and the whole read-allocate-write cycle is retried on conflict.
package bib
