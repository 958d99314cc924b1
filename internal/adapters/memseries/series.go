// Package memseries provides the in-memory bar sink: an append-only series
// matching the downstream consumer's line-buffer semantics (write the current
// slot, look back at the previous one).
package memseries

import "ibfeed/internal/domain"

// Series implements ports.BarSink in memory. It is not synchronized: per the
// feed's concurrency model a single consuming goroutine is the only writer
// and reader.
type Series struct {
	bars []domain.Bar
}

// New creates an empty series with room for capacity bars.
func New(capacity int) *Series {
	if capacity < 0 {
		capacity = 0
	}
	return &Series{bars: make([]domain.Bar, 0, capacity)}
}

// Append writes one bar at the end of the series.
func (s *Series) Append(bar domain.Bar) error {
	s.bars = append(s.bars, bar)
	return nil
}

// Last returns the most recently appended bar, or false when empty.
func (s *Series) Last() (domain.Bar, bool) {
	if len(s.bars) == 0 {
		return domain.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Len returns the number of bars appended so far.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar i positions back from the end; At(0) is the last bar.
func (s *Series) At(i int) (domain.Bar, bool) {
	idx := len(s.bars) - 1 - i
	if idx < 0 || idx >= len(s.bars) {
		return domain.Bar{}, false
	}
	return s.bars[idx], true
}

// Bars returns a copy of the whole series.
func (s *Series) Bars() []domain.Bar {
	out := make([]domain.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}
