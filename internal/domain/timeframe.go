package domain

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Timeframe is the unit of a bar interval. The ordering of the constants is
// meaningful: a (Timeframe, compression) pair compares like a tuple, which is
// how the minimum granularity of broker-aggregated bars is checked.
type Timeframe int

const (
	TimeframeTicks Timeframe = iota
	TimeframeSeconds
	TimeframeMinutes
	TimeframeDays
	TimeframeWeeks
	TimeframeMonths
)

// String returns the timeframe unit name.
func (tf Timeframe) String() string {
	switch tf {
	case TimeframeTicks:
		return "Ticks"
	case TimeframeSeconds:
		return "Seconds"
	case TimeframeMinutes:
		return "Minutes"
	case TimeframeDays:
		return "Days"
	case TimeframeWeeks:
		return "Weeks"
	case TimeframeMonths:
		return "Months"
	default:
		return "Unknown"
	}
}

// AtLeast reports whether (tf, compression) is a granularity equal to or
// coarser than (other, otherCompression), comparing unit first and
// compression second.
func AtLeast(tf Timeframe, compression int, other Timeframe, otherCompression int) bool {
	if tf != other {
		return tf > other
	}
	return compression >= otherCompression
}

// ParseTimeframe converts a human duration string such as "5s", "1m", "4h" or
// "1d" into a timeframe unit and compression. Day-suffixed strings are
// supported ("1d", "1w" as "7d") on top of the standard duration units.
func ParseTimeframe(s string) (Timeframe, int, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid timeframe %q: %w", s, err)
	}
	if d <= 0 {
		return 0, 0, fmt.Errorf("invalid timeframe %q: must be positive", s)
	}
	switch {
	case d >= 7*24*time.Hour && d%(7*24*time.Hour) == 0:
		return TimeframeWeeks, int(d / (7 * 24 * time.Hour)), nil
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return TimeframeDays, int(d / (24 * time.Hour)), nil
	case d >= time.Minute && d%time.Minute == 0:
		return TimeframeMinutes, int(d / time.Minute), nil
	case d >= time.Second && d%time.Second == 0:
		return TimeframeSeconds, int(d / time.Second), nil
	default:
		return 0, 0, fmt.Errorf("invalid timeframe %q: finer than one second", s)
	}
}
