package bib

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRanges(t *testing.T) {
	rs, err := ParseRanges("short=5001-5999, LONG = 10001 - 10999")
	require.NoError(t, err)
	assert.Equal(t, DefaultRanges(), rs)
	assert.Equal(t, "LONG=10001-10999,SHORT=5001-5999", rs.String())
}

func TestParseRanges_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing bounds", "SHORT"},
		{"missing dash", "SHORT=5001"},
		{"non numeric", "SHORT=a-b"},
		{"inverted", "SHORT=5999-5001"},
		{"negative lower", "SHORT=-5-10"},
		{"duplicate", "SHORT=1-10,short=20-30"},
		{"overlap", "SHORT=1-10,LONG=10-20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRanges(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestLoadRangesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	content := "categories:\n  short: {lower: 5001, upper: 5999}\n  HALF:\n    lower: 20001\n    upper: 20500\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rs, err := LoadRangesFile(path)
	require.NoError(t, err)
	assert.Equal(t, Ranges{
		Short:  {Lower: 5001, Upper: 5999},
		"HALF": {Lower: 20001, Upper: 20500},
	}, rs)
}

func TestLoadRangesFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  SHORT: {lower: 10, upper: 1}\n"), 0o600))

	_, err := LoadRangesFile(path)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = LoadRangesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_CapsRangeBounds(t *testing.T) {
	tests := []struct {
		name   string
		ranges Ranges
		ok     bool
	}{
		{"largest parseable bib", Ranges{"X": {Lower: 1, Upper: MaxValue}}, true},
		{"upper beyond 18 digits", Ranges{"X": {Lower: 0, Upper: MaxValue + 1}}, false},
		{"upper at max int", Ranges{"X": {Lower: 0, Upper: math.MaxInt}}, false},
		{"lower beyond 18 digits", Ranges{"X": {Lower: MaxValue + 1, Upper: math.MaxInt}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ranges.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, MaxValue, tt.ranges["X"].Size())
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestParseRanges_RejectsValuesBeyondBibLength(t *testing.T) {
	_, err := ParseRanges("SHORT=1-1000000000000000000")
	assert.ErrorIs(t, err, ErrInvalidRange)
}
