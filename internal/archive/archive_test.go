package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(ts string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, ts)
	return func() time.Time { return t }
}

func TestArchive_CopiesBytesWithTimestampedName(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dummy_sdg.csv")
	content := []byte("source,year\nUNSDG,2020\n")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	store := NewStore(filepath.Join(t.TempDir(), "archive"), WithClock(fixedClock("2024-03-05T07:08:09Z")))
	path, err := store.Archive(src)
	require.NoError(t, err)

	assert.Equal(t, "dummy_sdg_20240305_070809.csv", filepath.Base(path))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestArchive_SameSecondNeverOverwrites(t *testing.T) {
	src := filepath.Join(t.TempDir(), "data.xlsx")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o644))

	store := NewStore(t.TempDir(), WithClock(fixedClock("2024-03-05T07:08:09Z")))
	first, err := store.Archive(src)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	second, err := store.Archive(src)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "data_20240305_070809_1.xlsx", filepath.Base(second))

	b1, _ := os.ReadFile(first)
	b2, _ := os.ReadFile(second)
	assert.Equal(t, "v1", string(b1))
	assert.Equal(t, "v2", string(b2))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"data_20240305_070809.xlsx", "data_20240305_070809_1.xlsx"}, names)
}

func TestArchive_MissingSource(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Archive(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: open")
}

func TestList_MissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"))
	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTimestamp_UsesUTC(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	ts := time.Date(2024, 1, 1, 2, 0, 0, 0, loc)
	assert.Equal(t, "20231231_230000", Timestamp(ts))
}
