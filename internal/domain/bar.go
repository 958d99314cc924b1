package domain

import "time"

// Bar is one canonical OHLCV sample. Every data source (seed feed, historical
// download, live aggregated bars, single ticks) is normalized into this form
// before delivery. Time is an absolute instant in the feed's working timezone.
type Bar struct {
	Time         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest int64 // 0 when the source does not report it
}

// FeedStatus is a lifecycle notification emitted by the feed to its host.
type FeedStatus int

const (
	StatusConnected FeedStatus = iota
	StatusDisconnected
	StatusDelayed // backfilling, bars are historical
	StatusLive    // real-time delivery resumed
)

// String returns the notification name.
func (s FeedStatus) String() string {
	switch s {
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusDelayed:
		return "DELAYED"
	case StatusLive:
		return "LIVE"
	default:
		return "UNKNOWN"
	}
}
