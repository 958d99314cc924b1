package feed

import (
	"time"

	"ibfeed/internal/domain"
	"ibfeed/internal/ports"
)

// normalizer converts raw gateway messages into canonical bars, applying the
// late-arrival policy against the sink's last delivered timestamp and the
// timezone correction for historical bars.
type normalizer struct {
	lateThrough bool
	histOffset  time.Duration
}

// newNormalizer builds a normalizer. When offsetHours is nil the historical
// correction is derived from the machine's own UTC offset, west-positive.
// That conflates the data's timezone with the machine's and mis-timestamps
// bars on machines not colocated with the broker session's expectations;
// kept because existing deployments depend on it.
func newNormalizer(lateThrough bool, offsetHours *float64) *normalizer {
	hours := 0.0
	if offsetHours != nil {
		hours = *offsetHours
	} else {
		_, secsEast := time.Now().Zone()
		hours = float64(-secsEast) / 3600.0
	}
	return &normalizer{
		lateThrough: lateThrough,
		histOffset:  time.Duration(hours * float64(time.Hour)),
	}
}

// accepts applies the late-arrival policy: a timestamp that does not advance
// past the last delivered one is rejected unless late-through is enabled.
func (n *normalizer) accepts(ts time.Time, last time.Time, haveLast bool) bool {
	if n.lateThrough || !haveLast {
		return true
	}
	return ts.After(last)
}

// fromHistorical normalizes one historical download bar. The timezone
// correction is applied before the late-arrival check.
func (n *normalizer) fromHistorical(raw ports.RawBar, last time.Time, haveLast bool) (domain.Bar, bool) {
	ts := raw.Time.Add(n.histOffset)
	if !n.accepts(ts, last, haveLast) {
		return domain.Bar{}, false
	}
	return domain.Bar{
		Time:   ts,
		Open:   openOf(raw),
		High:   raw.High,
		Low:    raw.Low,
		Close:  raw.Close,
		Volume: raw.Volume,
	}, true
}

// fromLiveBar normalizes one real-time aggregated bar. Its timestamp is used
// as delivered by the broker.
func (n *normalizer) fromLiveBar(raw ports.RawBar, last time.Time, haveLast bool) (domain.Bar, bool) {
	if !n.accepts(raw.Time, last, haveLast) {
		return domain.Bar{}, false
	}
	return domain.Bar{
		Time:   raw.Time,
		Open:   openOf(raw),
		High:   raw.High,
		Low:    raw.Low,
		Close:  raw.Close,
		Volume: raw.Volume,
	}, true
}

// fromTick degenerates a single trade/quote into a one-price bar.
func (n *normalizer) fromTick(tick ports.RawTick, last time.Time, haveLast bool) (domain.Bar, bool) {
	if !n.accepts(tick.Time, last, haveLast) {
		return domain.Bar{}, false
	}
	return domain.Bar{
		Time:   tick.Time,
		Open:   tick.Price,
		High:   tick.Price,
		Low:    tick.Price,
		Close:  tick.Price,
		Volume: tick.Size,
	}, true
}

// openOf picks the open price out of whichever wire field carries it.
func openOf(raw ports.RawBar) float64 {
	if raw.Open != nil {
		return *raw.Open
	}
	if raw.OpenAlias != nil {
		return *raw.OpenAlias
	}
	return 0
}
