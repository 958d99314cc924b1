package csvfeed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func drain(f *Feed) int {
	n := 0
	for {
		if _, ok := f.Next(); !ok {
			return n
		}
		n++
	}
}

func TestFeedHeaderless(t *testing.T) {
	path := writeCSV(t, "1709283600,10,12,9,11,100\n1709283660,11,13,10,12,150\n")
	f, err := New(path)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())

	bar, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1709283600, 0).UTC(), bar.Time)
	assert.Equal(t, 10.0, bar.Open)
	assert.Equal(t, 12.0, bar.High)
	assert.Equal(t, 9.0, bar.Low)
	assert.Equal(t, 11.0, bar.Close)
	assert.Equal(t, 100.0, bar.Volume)
	assert.Equal(t, int64(0), bar.OpenInterest)
}

func TestFeedHeaderReordersColumns(t *testing.T) {
	path := writeCSV(t, "close,open,high,low,volume,time,openinterest\n11,10,12,9,100,1709283600,5\n")
	f, err := New(path)
	require.NoError(t, err)

	bar, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, 10.0, bar.Open)
	assert.Equal(t, 11.0, bar.Close)
	assert.Equal(t, int64(5), bar.OpenInterest)
}

func TestFeedRFC3339Time(t *testing.T) {
	path := writeCSV(t, "time,open,high,low,close,volume\n2024-03-01T09:00:00Z,10,12,9,11,100\n")
	f, err := New(path)
	require.NoError(t, err)

	bar, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), bar.Time)
}

func TestFeedExhaustion(t *testing.T) {
	path := writeCSV(t, "1709283600,10,12,9,11,100\n")
	f, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 1, drain(f))

	// stays exhausted
	_, ok := f.Next()
	assert.False(t, ok)
}

func TestFeedEmptyFile(t *testing.T) {
	path := writeCSV(t, "")
	f, err := New(path)
	require.NoError(t, err)
	assert.Zero(t, f.Len())
	_, ok := f.Next()
	assert.False(t, ok)
}

func TestFeedErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "absent.csv"))
		assert.Error(t, err)
	})
	t.Run("bad price", func(t *testing.T) {
		_, err := New(writeCSV(t, "1709283600,ten,12,9,11,100\n"))
		assert.Error(t, err)
	})
	t.Run("bad time", func(t *testing.T) {
		_, err := New(writeCSV(t, "time,open,high,low,close,volume\nyesterday,10,12,9,11,100\n"))
		assert.Error(t, err)
	})
	t.Run("missing column", func(t *testing.T) {
		_, err := New(writeCSV(t, "time,open,high,low,close\n1709283600,10,12,9,11\n"))
		assert.Error(t, err)
	})
}
