package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ibfeed/internal/ports"
)

func floatPtr(v float64) *float64 { return &v }

func zeroOffsetNormalizer(lateThrough bool) *normalizer {
	return newNormalizer(lateThrough, floatPtr(0))
}

func TestNormalizerTick(t *testing.T) {
	n := zeroOffsetNormalizer(false)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bar, accepted := n.fromTick(ports.RawTick{Time: ts, Price: 101.5, Size: 3}, time.Time{}, false)
	require.True(t, accepted)
	assert.Equal(t, ts, bar.Time)
	assert.Equal(t, 101.5, bar.Open)
	assert.Equal(t, 101.5, bar.High)
	assert.Equal(t, 101.5, bar.Low)
	assert.Equal(t, 101.5, bar.Close)
	assert.Equal(t, 3.0, bar.Volume)
	assert.Equal(t, int64(0), bar.OpenInterest)
}

func TestNormalizerLatePolicy(t *testing.T) {
	n := zeroOffsetNormalizer(false)
	last := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, accepted := n.fromTick(ports.RawTick{Time: last.Add(-time.Second), Price: 1, Size: 1}, last, true)
	assert.False(t, accepted, "earlier tick must be rejected")

	// A duplicate timestamp is never delivered twice.
	_, accepted = n.fromTick(ports.RawTick{Time: last, Price: 1, Size: 1}, last, true)
	assert.False(t, accepted, "equal timestamp must be rejected")

	_, accepted = n.fromTick(ports.RawTick{Time: last.Add(time.Second), Price: 1, Size: 1}, last, true)
	assert.True(t, accepted)
}

func TestNormalizerLateThrough(t *testing.T) {
	n := zeroOffsetNormalizer(true)
	last := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bar, accepted := n.fromTick(ports.RawTick{Time: last.Add(-time.Minute), Price: 2, Size: 1}, last, true)
	require.True(t, accepted, "late-through delivers out-of-order ticks")
	assert.Equal(t, last.Add(-time.Minute), bar.Time)
}

func TestNormalizerHistoricalOffset(t *testing.T) {
	n := newNormalizer(false, floatPtr(2))
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bar, accepted := n.fromHistorical(ports.RawBar{
		Time: ts, Open: floatPtr(10), High: 12, Low: 9, Close: 11, Volume: 100,
	}, time.Time{}, false)
	require.True(t, accepted)
	assert.Equal(t, ts.Add(2*time.Hour), bar.Time, "configured offset shifts historical timestamps")
	assert.Equal(t, 10.0, bar.Open)
	assert.Equal(t, int64(0), bar.OpenInterest)
}

func TestNormalizerHistoricalOffsetNotAppliedToLive(t *testing.T) {
	n := newNormalizer(false, floatPtr(2))
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bar, accepted := n.fromLiveBar(ports.RawBar{
		Time: ts, Open: floatPtr(10), High: 12, Low: 9, Close: 11, Volume: 100,
	}, time.Time{}, false)
	require.True(t, accepted)
	assert.Equal(t, ts, bar.Time)
}

func TestNormalizerOpenAlias(t *testing.T) {
	n := zeroOffsetNormalizer(false)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bar, accepted := n.fromHistorical(ports.RawBar{
		Time: ts, OpenAlias: floatPtr(42), High: 43, Low: 41, Close: 42.5, Volume: 7,
	}, time.Time{}, false)
	require.True(t, accepted)
	assert.Equal(t, 42.0, bar.Open, "aliased open field must be accepted")
}

func TestNormalizerDerivedOffsetMatchesMachine(t *testing.T) {
	n := newNormalizer(false, nil)
	_, secsEast := time.Now().Zone()
	want := time.Duration(float64(-secsEast) / 3600.0 * float64(time.Hour))
	assert.Equal(t, want, n.histOffset)
}
