package ports

import "ibfeed/internal/domain"

// BarSink is the downstream consumer's bar buffer: an append-only series
// that exposes the most recently written bar for lookback. The feed is the
// only writer; reads and writes happen on the single consuming goroutine.
type BarSink interface {
	// Append writes one bar into the current slot and advances the series.
	Append(bar domain.Bar) error

	// Last returns the most recently appended bar, or false when empty.
	Last() (domain.Bar, bool)

	// Len returns the number of bars appended so far.
	Len() int
}
