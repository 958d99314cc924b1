package ports

import "ibfeed/internal/domain"

// SeedFeed is an optional external bar source consumed before any broker
// data, typically a file or database of previously stored bars. Records are
// returned in the source's own order; ordering across the seed/broker
// boundary is the caller's responsibility.
type SeedFeed interface {
	// Next returns the next seed bar, or false when the source is exhausted.
	// Once exhausted a seed feed stays exhausted.
	Next() (domain.Bar, bool)
}
