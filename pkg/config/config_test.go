package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racereg/pkg/bib"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv("test")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultBibMaxAttempts, cfg.BibMaxAttempts)
	assert.Equal(t, DefaultBibRetryBackoff, cfg.BibRetryBackoff)
	assert.Equal(t, bib.DefaultRanges(), cfg.BibRanges)
	assert.Empty(t, cfg.PickupTokenKey)
}

func TestFromEnv_BibRanges(t *testing.T) {
	t.Setenv(EnvBibRanges, "SHORT=1-9,LONG=100-199,KIDS=50-59")
	t.Setenv(EnvBibMaxAttempts, "3")
	t.Setenv(EnvBibRetryBackoff, "5ms")

	cfg := FromEnv("test")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, bib.Range{Lower: 50, Upper: 59}, cfg.BibRanges[bib.Category("KIDS")])
	assert.Equal(t, 3, cfg.BibMaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.BibRetryBackoff)
}

func TestFromEnv_RangesFileWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  SHORT: {lower: 1, upper: 5}\n"), 0o600))
	t.Setenv(EnvBibRanges, "SHORT=5001-5999,LONG=10001-10999")
	t.Setenv(EnvBibRangesFile, path)

	cfg := FromEnv("test")

	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.BibRanges, 1)
	assert.Equal(t, bib.Range{Lower: 1, Upper: 5}, cfg.BibRanges[bib.Short])
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Setenv(EnvBibRanges, "SHORT=10-20,LONG=15-30")
	t.Setenv(EnvPort, "99999")
	t.Setenv(EnvBibMaxAttempts, "0")
	t.Setenv(EnvPickupTokenKey, "short")

	err := FromEnv("test").Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "BIB_RANGES")
	assert.Contains(t, err.Error(), "Port must be between 1 and 65535")
	assert.Contains(t, err.Error(), "BibMaxAttempts must be at least 1")
	assert.Contains(t, err.Error(), "PickupTokenKey must be at least 32 characters")
}

func TestValidate_BadMongoURI(t *testing.T) {
	t.Setenv(EnvMongoURI, "postgres://localhost")

	err := FromEnv("test").Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MongoURI must start with")
}

func TestNormalizePagination(t *testing.T) {
	assert.Equal(t, 10, NormalizePaginationLimit(0))
	assert.Equal(t, 10, NormalizePaginationLimit(-3))
	assert.Equal(t, 25, NormalizePaginationLimit(25))
	assert.Equal(t, DefaultPaginationLimit, NormalizePaginationLimit(1000))
	assert.Equal(t, int64(0), NormalizeOffset(-1))
	assert.Equal(t, int64(7), NormalizeOffset(7))
}

func TestRedactMongoURI(t *testing.T) {
	assert.Equal(t, "mongodb://***:***@db:27017", redactMongoURI("mongodb://user:secret@db:27017"))
	assert.Equal(t, "mongodb://localhost:27017", redactMongoURI("mongodb://localhost:27017"))
}
