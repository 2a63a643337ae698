package bib

import (
	"math"
	"math/rand"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(lo, hi int, skip ...int) Set {
	s := NewSet()
	for v := lo; v <= hi; v++ {
		s.Add(v)
	}
	for _, v := range skip {
		delete(s, v)
	}
	return s
}

func TestAllocate_EmptySnapshotReturnsLower(t *testing.T) {
	rs := DefaultRanges()
	for _, c := range rs.Categories() {
		id, err := rs.Allocate(c, NewSet())
		require.NoError(t, err)
		assert.Equal(t, rs[c].Lower, id.Value, "category %s", c)
		assert.Equal(t, c, id.Category)
	}
}

func TestAllocate_ShortScenarios(t *testing.T) {
	rs := DefaultRanges()

	tests := []struct {
		name     string
		existing Set
		want     int
	}{
		{"highest plus one preferred over gap", NewSet(5001, 5002, 5004), 5005},
		{"gap reclaimed once top is saturated", fill(5001, 5999, 5003), 5003},
		{"start of range reclaimed first", fill(5001, 5999, 5001, 5500), 5001},
		{"single value", NewSet(5001), 5002},
		{"top only", NewSet(5999), 5001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := rs.Allocate(Short, tt.existing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.Value)
		})
	}
}

func TestAllocate_GapFillingOnlyAfterTopUnavailable(t *testing.T) {
	lo := 100

	wide := Ranges{"X": {Lower: lo, Upper: lo + 10}}
	id, err := wide.Allocate("X", NewSet(lo, lo+1, lo+3))
	require.NoError(t, err)
	assert.Equal(t, lo+4, id.Value)

	tight := Ranges{"X": {Lower: lo, Upper: lo + 3}}
	id, err = tight.Allocate("X", NewSet(lo, lo+1, lo+3))
	require.NoError(t, err)
	assert.Equal(t, lo+2, id.Value)
}

func TestAllocate_RangeExhausted(t *testing.T) {
	rs := DefaultRanges()

	_, err := rs.Allocate(Short, fill(5001, 5999))
	require.ErrorIs(t, err, ErrRangeExhausted)
	assert.Contains(t, err.Error(), "SHORT")
}

func TestAllocate_InvalidCategory(t *testing.T) {
	rs := DefaultRanges()

	_, err := rs.Allocate("HALF", NewSet())
	require.ErrorIs(t, err, ErrInvalidCategory)
}

func TestAllocate_IgnoresOutOfRangeValues(t *testing.T) {
	rs := DefaultRanges()

	id, err := rs.Allocate(Short, NewSet(10500, 7000, -3, 5000))
	require.NoError(t, err)
	assert.Equal(t, 5001, id.Value)

	id, err = rs.Allocate(Short, NewSet(5001, 5002, 6000, 99999))
	require.NoError(t, err)
	assert.Equal(t, 5003, id.Value)
}

func TestAllocate_DoesNotMutateSnapshot(t *testing.T) {
	rs := DefaultRanges()
	existing := NewSet(5001, 5003)

	_, err := rs.Allocate(Short, existing)
	require.NoError(t, err)
	assert.Equal(t, NewSet(5001, 5003), existing)
}

func TestAllocate_SequentialUseIsUniqueAndInRange(t *testing.T) {
	rs := Ranges{"X": {Lower: 1, Upper: 50}}
	existing := NewSet()
	seen := map[int]bool{}

	for i := 0; i < 50; i++ {
		id, err := rs.Allocate("X", existing)
		require.NoError(t, err, "allocation %d", i)
		require.False(t, seen[id.Value], "value %d returned twice", id.Value)
		require.True(t, rs["X"].Contains(id.Value))
		seen[id.Value] = true
		existing.Add(id.Value)
	}

	_, err := rs.Allocate("X", existing)
	require.ErrorIs(t, err, ErrRangeExhausted)
}

func TestAllocate_RandomSnapshotsStayInRangeAndFree(t *testing.T) {
	rs := Ranges{"X": {Lower: 10, Upper: 40}}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		existing := NewSet()
		for j := 0; j < rng.Intn(31); j++ {
			existing.Add(5 + rng.Intn(40))
		}

		id, err := rs.Allocate("X", existing)
		if err != nil {
			require.ErrorIs(t, err, ErrRangeExhausted)
			for v := 10; v <= 40; v++ {
				require.True(t, existing.Contains(v))
			}
			continue
		}
		assert.True(t, rs["X"].Contains(id.Value))
		assert.False(t, existing.Contains(id.Value))
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	rs := DefaultRanges()
	existing := fill(10001, 10999, 10020, 10400)

	first, err := rs.Allocate(Long, existing)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := rs.Allocate(Long, existing)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 10020, first.Value)
}

func allocatedBytes(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestAllocate_WideRangeCostFollowsSnapshot(t *testing.T) {
	rs := Ranges{"X": {Lower: 1, Upper: 1_000_000_000}}
	require.NoError(t, rs.Validate())

	var empty, next, gap Identifier
	used := allocatedBytes(func() {
		var err error
		empty, err = rs.Allocate("X", NewSet())
		require.NoError(t, err)
		next, err = rs.Allocate("X", NewSet(1, 2, 3))
		require.NoError(t, err)
		gap, err = rs.Allocate("X", NewSet(1, 2, 4, 1_000_000_000))
		require.NoError(t, err)
	})

	assert.Equal(t, 1, empty.Value)
	assert.Equal(t, 4, next.Value)
	assert.Equal(t, 3, gap.Value)
	assert.Less(t, used, uint64(1<<20), "allocation must not scale with the range size")
}

func TestAllocate_UnvalidatedHugeRange(t *testing.T) {
	rs := Ranges{"X": {Lower: 0, Upper: math.MaxInt}}

	id, err := rs.Allocate("X", NewSet())
	require.NoError(t, err)
	assert.Equal(t, 0, id.Value)

	id, err = rs.Allocate("X", NewSet(0, math.MaxInt))
	require.NoError(t, err)
	assert.Equal(t, 1, id.Value)
}

func TestAllocate_GapAtTopOfSnapshotWindow(t *testing.T) {
	rs := Ranges{"X": {Lower: 10, Upper: 20}}

	id, err := rs.Allocate("X", NewSet(10, 11, 12, 20))
	require.NoError(t, err)
	assert.Equal(t, 13, id.Value)

	id, err = rs.Allocate("X", NewSet(20))
	require.NoError(t, err)
	assert.Equal(t, 10, id.Value)
}

func TestIdentifier_String(t *testing.T) {
	assert.Equal(t, "5001", Identifier{Category: Short, Value: 5001}.String())
	assert.Equal(t, "10999", Identifier{Category: Long, Value: 10999}.String())
}
