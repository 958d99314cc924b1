package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ibfeed/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(Config{
		DBPath:    path,
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Logger:    nopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func barAt(ts time.Time, close float64) domain.Bar {
	return domain.Bar{Time: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestStoreAppendAndLast(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "bars.db"))
	_, ok := s.Last()
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(barAt(base, 10)))
	require.NoError(t, s.Append(barAt(base.Add(time.Minute), 11)))

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), last.Time)
	assert.Equal(t, 11.0, last.Close)
	assert.Equal(t, 2, s.Len())
}

func TestStoreDuplicateTimestampReplaces(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "bars.db"))
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(barAt(ts, 10)))
	require.NoError(t, s.Append(barAt(ts, 12)))

	assert.Equal(t, 1, s.Len(), "a rewritten bar must not grow the series")
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 12.0, last.Close)
}

func TestStoreTailSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t, path)
	require.NoError(t, s.Append(barAt(base, 10)))
	require.NoError(t, s.Append(barAt(base.Add(time.Minute), 11)))
	require.NoError(t, s.Close())

	reopened := newTestStore(t, path)
	assert.Equal(t, 2, reopened.Len())
	last, ok := reopened.Last()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), last.Time)
	assert.Equal(t, 11.0, last.Close)
}

func TestStoreSeedReplaysInOrder(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "bars.db"))
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// Insert out of order; replay must come back sorted by timestamp.
	require.NoError(t, s.Append(barAt(base.Add(time.Minute), 11)))
	require.NoError(t, s.Append(barAt(base, 10)))

	seed, err := s.Seed()
	require.NoError(t, err)
	require.Equal(t, 2, seed.Len())

	first, ok := seed.Next()
	require.True(t, ok)
	assert.Equal(t, base, first.Time)

	second, ok := seed.Next()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), second.Time)

	_, ok = seed.Next()
	assert.False(t, ok)
}

func TestStoreSeedEmpty(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "bars.db"))
	seed, err := s.Seed()
	require.NoError(t, err)
	assert.Zero(t, seed.Len())
	_, ok := seed.Next()
	assert.False(t, ok)
}

func TestStoreIsolatesSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	s := newTestStore(t, path)
	require.NoError(t, s.Append(barAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 10)))

	other, err := NewStore(Config{
		DBPath:    path,
		Symbol:    "ETHUSDT",
		Timeframe: "1m",
		Logger:    nopLogger{},
	})
	require.NoError(t, err)
	defer other.Close()

	assert.Zero(t, other.Len())
	_, ok := other.Last()
	assert.False(t, ok)
}

func TestStoreConfigValidation(t *testing.T) {
	_, err := NewStore(Config{Symbol: "BTCUSDT", Timeframe: "1m"})
	assert.Error(t, err, "logger is required")

	_, err = NewStore(Config{Logger: nopLogger{}, Timeframe: "1m"})
	assert.Error(t, err, "symbol is required")
}
