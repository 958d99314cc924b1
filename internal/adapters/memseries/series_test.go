package memseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ibfeed/internal/domain"
)

func barAt(ts time.Time, close float64) domain.Bar {
	return domain.Bar{Time: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestSeriesAppendAndLast(t *testing.T) {
	s := New(4)
	_, ok := s.Last()
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(barAt(base, 10)))
	require.NoError(t, s.Append(barAt(base.Add(time.Minute), 11)))

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 11.0, last.Close)
	assert.Equal(t, 2, s.Len())
}

func TestSeriesLookback(t *testing.T) {
	s := New(0)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(barAt(base.Add(time.Duration(i)*time.Minute), float64(10+i))))
	}

	bar, ok := s.At(0)
	require.True(t, ok)
	assert.Equal(t, 12.0, bar.Close)

	bar, ok = s.At(2)
	require.True(t, ok)
	assert.Equal(t, 10.0, bar.Close)

	_, ok = s.At(3)
	assert.False(t, ok)
	_, ok = s.At(-1)
	assert.False(t, ok)
}

func TestSeriesBarsIsACopy(t *testing.T) {
	s := New(1)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(barAt(base, 10)))

	bars := s.Bars()
	bars[0].Close = 999

	last, _ := s.Last()
	assert.Equal(t, 10.0, last.Close)
}
